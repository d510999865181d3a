package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// LockFileName holds the failed-attempt counter beside the container.
const LockFileName = "vault.lock"

// ThrottleStep starts a cooldown once the failure count reaches Threshold.
type ThrottleStep struct {
	Threshold int
	Cooldown  time.Duration
}

// ThrottlePolicy slows down password guessing against one directory.
// Steps are matched highest threshold first.
type ThrottlePolicy struct {
	Steps []ThrottleStep
}

// DefaultThrottlePolicy returns 5 failures -> 30s, 10 -> 5min, 20 -> 30min.
func DefaultThrottlePolicy() *ThrottlePolicy {
	return &ThrottlePolicy{Steps: []ThrottleStep{
		{Threshold: 5, Cooldown: 30 * time.Second},
		{Threshold: 10, Cooldown: 5 * time.Minute},
		{Threshold: 20, Cooldown: 30 * time.Minute},
	}}
}

// cooldownFor returns the cooldown triggered by the given failure count.
func (p *ThrottlePolicy) cooldownFor(failures int) time.Duration {
	steps := append([]ThrottleStep(nil), p.Steps...)
	sort.Slice(steps, func(i, j int) bool { return steps[i].Threshold > steps[j].Threshold })
	for _, s := range steps {
		if failures >= s.Threshold {
			return s.Cooldown
		}
	}
	return 0
}

// LockState tracks failed password checks for cooldown enforcement
type LockState struct {
	FailedAttempts int       `json:"failed_attempts"`
	LastAttempt    time.Time `json:"last_attempt"`
	CooldownUntil  time.Time `json:"cooldown_until"`
	LockoutCount   int       `json:"lockout_count"` // Number of times cooldown was triggered
}

func lockStatePath(dir string) string {
	return filepath.Join(dir, LockFileName)
}

// loadLockState reads the lock state. A missing or unreadable-as-JSON file
// is treated as no failures.
func loadLockState(dir string) (*LockState, error) {
	data, err := os.ReadFile(lockStatePath(dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &LockState{}, nil
		}
		return nil, &StorageError{Op: "read", Path: lockStatePath(dir), Err: err}
	}

	var state LockState
	if err := json.Unmarshal(data, &state); err != nil {
		return &LockState{}, nil
	}
	return &state, nil
}

func saveLockState(dir string, state *LockState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("vault: failed to marshal lock state: %w", err)
	}
	if err := writeFileAtomic(lockStatePath(dir), data, FileMode); err != nil {
		return &StorageError{Op: "write", Path: lockStatePath(dir), Err: err}
	}
	return nil
}

func clearLockState(dir string) error {
	if err := os.Remove(lockStatePath(dir)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &StorageError{Op: "delete", Path: lockStatePath(dir), Err: err}
	}
	return nil
}

// remainingCooldown returns how long password checks on dir stay blocked.
func remainingCooldown(dir string, now time.Time) (time.Duration, error) {
	state, err := loadLockState(dir)
	if err != nil {
		return 0, err
	}
	if !state.CooldownUntil.IsZero() && now.Before(state.CooldownUntil) {
		return state.CooldownUntil.Sub(now), nil
	}
	return 0, nil
}

// recordFailedAttempt bumps the counter and returns any cooldown it starts.
func (p *ThrottlePolicy) recordFailedAttempt(dir string, now time.Time) (time.Duration, error) {
	state, err := loadLockState(dir)
	if err != nil {
		return 0, err
	}

	state.FailedAttempts++
	state.LastAttempt = now

	cooldown := p.cooldownFor(state.FailedAttempts)
	if cooldown > 0 {
		state.CooldownUntil = now.Add(cooldown)
		state.LockoutCount++
	}

	return cooldown, saveLockState(dir, state)
}
