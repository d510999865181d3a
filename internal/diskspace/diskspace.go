// Package diskspace reports free space on the filesystem holding a path.
package diskspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// MinFreeBytes is the free space every write leaves untouched.
	MinFreeBytes = 10 * 1024 * 1024

	// WarningPercent is the usage above which Info.Low reports true.
	WarningPercent = 90
)

// ErrInsufficient indicates there is not enough free space for a write.
var ErrInsufficient = errors.New("diskspace: insufficient disk space")

// Info contains disk usage information
type Info struct {
	Total     uint64 `json:"total"`     // Total disk space in bytes
	Free      uint64 `json:"free"`      // Free disk space in bytes
	Available uint64 `json:"available"` // Available to non-root users
	UsedPct   int    `json:"used_pct"`  // Percentage of disk used
}

// Low reports whether usage is at or above WarningPercent.
func (i *Info) Low() bool {
	return i.UsedPct >= WarningPercent
}

// Check returns usage for the filesystem containing path. If path does not
// exist yet, its nearest existing ancestor is used.
func Check(path string) (*Info, error) {
	target, err := existingAncestor(path)
	if err != nil {
		return nil, err
	}
	info, err := statfs(target)
	if err != nil {
		return nil, fmt.Errorf("diskspace: failed to get disk stats for %s: %w", target, err)
	}
	return info, nil
}

// Require checks that size bytes can be written under path while keeping
// MinFreeBytes (or twice size, whichever is larger) available.
// The returned Info is nil when the filesystem could not be queried.
func Require(path string, size int) (*Info, error) {
	info, err := Check(path)
	if err != nil {
		return nil, err
	}

	required := uint64(MinFreeBytes)
	if need := uint64(size) * 2; need > required {
		required = need
	}
	if info.Available < required {
		return info, fmt.Errorf("%w: only %d MB available, need at least %d MB",
			ErrInsufficient, info.Available/(1024*1024), required/(1024*1024))
	}
	return info, nil
}

func existingAncestor(path string) (string, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("diskspace: %w", err)
	}
	for {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p, nil
		}
		p = parent
	}
}

func usedPercent(total, free uint64) int {
	if total == 0 {
		return 0
	}
	return int(100 * (total - free) / total)
}
