//go:build !windows

package vault

import (
	"log/slog"
	"os"
)

// checkPermissions logs a warning when the vault directory or any of the
// given files is readable by group or others. Advisory only.
func checkPermissions(log *slog.Logger, dir string, files ...string) {
	if info, err := os.Stat(dir); err == nil {
		if perm := info.Mode().Perm(); perm&0077 != 0 {
			log.Warn("vault directory has insecure permissions",
				"dir", dir, "mode", perm.String(), "expected", os.FileMode(DirMode).String())
		}
	}

	for _, path := range files {
		if info, err := os.Stat(path); err == nil {
			if perm := info.Mode().Perm(); perm&0077 != 0 {
				log.Warn("vault file has insecure permissions",
					"path", path, "mode", perm.String(), "expected", os.FileMode(FileMode).String())
			}
		}
	}
}

// syncDir flushes a directory entry after a rename. Errors are ignored;
// some filesystems do not support fsync on directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
