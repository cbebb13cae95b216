//go:build linux || darwin

package bundlestore

import (
	"os"
	"syscall"
)

// lockExclusive and lockShared take an advisory POSIX lock on path
// (creating it if absent), blocking until it is acquired. The returned
// func releases the lock and closes the underlying descriptor. Pattern
// grounded on the standard fcntl(F_SETLKW) idiom for whole-file advisory
// locks in Go storage code (e.g. transparency-log posix file stores).
func lockExclusive(path string) (func(), error) {
	return lock(path, syscall.F_WRLCK)
}

func lockShared(path string) (func(), error) {
	return lock(path, syscall.F_RDLCK)
}

func lock(path string, lockType int16) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	flockT := syscall.Flock_t{
		Type:   lockType,
		Whence: int16(os.SEEK_SET),
		Start:  0,
		Len:    0,
	}
	for {
		err := syscall.FcntlFlock(f.Fd(), syscall.F_SETLKW, &flockT)
		if err == nil {
			break
		}
		if err == syscall.EINTR {
			continue
		}
		f.Close()
		return nil, err
	}

	return func() {
		unlockT := syscall.Flock_t{Type: syscall.F_UNLCK, Whence: int16(os.SEEK_SET)}
		syscall.FcntlFlock(f.Fd(), syscall.F_SETLK, &unlockT)
		f.Close()
	}, nil
}
