//go:build !unix && !windows

package diskspace

import "errors"

func statfs(string) (*Info, error) {
	return nil, errors.New("not supported on this platform")
}
