//go:build windows

package config

import (
	"fmt"
	"os"
)

// openConfigFile opens the file. Windows has no O_NOFOLLOW.
func openConfigFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return f, nil
}

// checkFileSecurity is a no-op; Windows uses ACLs.
func checkFileSecurity(_ string, _ os.FileInfo) error {
	return nil
}
