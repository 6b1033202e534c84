//go:build windows

package splitter

import (
	"errors"

	"golang.org/x/sys/windows"
)

// lockErrno reports the sharing and lock violations Windows returns while
// another process has the export open for writing.
func lockErrno(err error) bool {
	return errors.Is(err, windows.ERROR_SHARING_VIOLATION) ||
		errors.Is(err, windows.ERROR_LOCK_VIOLATION)
}
