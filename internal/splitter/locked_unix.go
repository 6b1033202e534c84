//go:build unix

package splitter

import (
	"errors"

	"golang.org/x/sys/unix"
)

// lockErrno reports errnos a mandatory lock or busy text file surfaces as.
func lockErrno(err error) bool {
	return errors.Is(err, unix.EAGAIN) ||
		errors.Is(err, unix.EWOULDBLOCK) ||
		errors.Is(err, unix.EBUSY) ||
		errors.Is(err, unix.ETXTBSY)
}
