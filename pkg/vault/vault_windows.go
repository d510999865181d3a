//go:build windows

package vault

import "log/slog"

// checkPermissions is a no-op on Windows, where access is governed by ACLs
// rather than mode bits.
func checkPermissions(*slog.Logger, string, ...string) {}

// syncDir is a no-op on Windows; directories cannot be opened for fsync.
func syncDir(string) {}
