package diskspace

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	info, err := Check(t.TempDir())
	require.NoError(t, err)
	assert.NotZero(t, info.Total)
	assert.LessOrEqual(t, info.Available, info.Total)
	assert.GreaterOrEqual(t, info.UsedPct, 0)
	assert.LessOrEqual(t, info.UsedPct, 100)
}

func TestCheckMissingPathUsesAncestor(t *testing.T) {
	dir := t.TempDir()
	want, err := Check(dir)
	require.NoError(t, err)

	got, err := Check(filepath.Join(dir, "not", "yet", "created"))
	require.NoError(t, err)
	assert.Equal(t, want.Total, got.Total)
}

func TestRequireHugeWrite(t *testing.T) {
	info, err := Require(t.TempDir(), 1<<62)
	assert.ErrorIs(t, err, ErrInsufficient)
	assert.NotNil(t, info)
}

func TestUsedPercent(t *testing.T) {
	assert.Equal(t, 0, usedPercent(0, 0))
	assert.Equal(t, 50, usedPercent(200, 100))
	assert.Equal(t, 90, usedPercent(100, 10))
	assert.True(t, (&Info{UsedPct: 95}).Low())
	assert.False(t, (&Info{UsedPct: 10}).Low())
}
