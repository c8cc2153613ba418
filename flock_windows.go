//go:build windows

package mtphost

import (
	"os"

	"golang.org/x/sys/windows"
)

// dirLock is an advisory exclusive lock on a single file, held for the
// lifetime of a Journal, so two host processes never race on the same
// journal directory.
type dirLock struct {
	f *os.File
}

func acquireDirLock(path string) (*dirLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	ol := new(windows.Overlapped)
	err = windows.LockFileEx(
		windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0, 1, 0, ol,
	)
	if err != nil {
		f.Close()
		return nil, &PreconditionFailed{Reason: "journal directory is locked by another process"}
	}
	return &dirLock{f: f}, nil
}

func (l *dirLock) release() error {
	ol := new(windows.Overlapped)
	_ = windows.UnlockFileEx(windows.Handle(l.f.Fd()), 0, 1, 0, ol)
	return l.f.Close()
}
