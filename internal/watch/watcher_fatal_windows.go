// SPDX-License-Identifier: MPL-2.0

//go:build windows

package watch

import (
	"errors"
	"syscall"
)

// Win32 error codes.
const (
	errTooManyOpenFiles = syscall.Errno(4)
	errInvalidHandle    = syscall.Errno(6)
	errNotEnoughMemory  = syscall.Errno(8)
)

// exhausted reports handle and memory exhaustion, or a watched directory
// that disappeared, after which the watcher cannot recover.
func exhausted(err error) bool {
	return errors.Is(err, errTooManyOpenFiles) || errors.Is(err, errInvalidHandle) || errors.Is(err, errNotEnoughMemory)
}
