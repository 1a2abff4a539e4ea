package proc

import "errors"

var (
	// ErrProcessNotFound means the pid had no /proc entry when the handle
	// was opened.
	ErrProcessNotFound = errors.New("process not found")

	// ErrAccessDenied means the kernel refused to open or read the target.
	ErrAccessDenied = errors.New("access denied")

	// ErrHandleStale means the target exited while the handle was held.
	// Multi-step operations abort on it rather than finishing with stale
	// data.
	ErrHandleStale = errors.New("process handle stale")

	// ErrReadFailure means the read transferred nothing at all. A short
	// read is not a failure; callers get the transferred bytes and a nil
	// error.
	ErrReadFailure = errors.New("memory read failed")

	ErrClosed = errors.New("handle closed")
)
