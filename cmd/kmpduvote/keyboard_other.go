//go:build !linux && !darwin && !windows

package main

import "errors"

// makeRaw is unsupported here, so keyboard shortcuts stay off
func makeRaw(fd int) (func(), error) {
	return nil, errors.New("keyboard shortcuts not supported on this platform")
}
