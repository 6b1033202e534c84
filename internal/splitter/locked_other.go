//go:build !unix && !windows

package splitter

func lockErrno(error) bool { return false }
