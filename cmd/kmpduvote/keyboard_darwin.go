//go:build darwin

package main

import "golang.org/x/sys/unix"

// makeRaw disables canonical mode and echo so single key presses are read
// without Enter
func makeRaw(fd int) (func(), error) {
	oldState, err := unix.IoctlGetTermios(fd, unix.TIOCGETA)
	if err != nil {
		return nil, err
	}

	newState := *oldState
	newState.Lflag &^= unix.ICANON | unix.ECHO
	newState.Cc[unix.VMIN] = 1
	newState.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TIOCSETA, &newState); err != nil {
		return nil, err
	}

	return func() { unix.IoctlSetTermios(fd, unix.TIOCSETA, oldState) }, nil
}
