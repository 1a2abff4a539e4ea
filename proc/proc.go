// Package proc owns the process handle and the memory region catalog of a
// target process. Everything else in the module borrows a *Handle; proc is
// the only place that talks to /proc directly.
package proc

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Access is the permission intent declared when a handle is opened. The
// handle never holds more privilege than the call site asked for.
type Access uint8

const (
	AccessRead Access = 1 << iota
	AccessWrite
)

// Handle is an open view of a target's address space, backed by a
// /proc/<pid>/mem descriptor. The target keeps running; reads race with it
// by design.
type Handle struct {
	pid    int
	fd     int
	access Access
}

func Open(pid int, access Access) (*Handle, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("pid %d: %w", pid, ErrProcessNotFound)
	}
	if _, err := os.Stat(fmt.Sprintf("/proc/%d", pid)); err != nil {
		return nil, fmt.Errorf("pid %d: %w", pid, ErrProcessNotFound)
	}

	flags := unix.O_RDONLY
	if access&AccessWrite != 0 {
		flags = unix.O_RDWR
	}

	fd, err := unix.Open(fmt.Sprintf("/proc/%d/mem", pid), flags|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, openError(pid, err)
	}

	return &Handle{pid: pid, fd: fd, access: access}, nil
}

func openError(pid int, err error) error {
	switch {
	case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ESRCH):
		return fmt.Errorf("pid %d: %w", pid, ErrProcessNotFound)
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return fmt.Errorf("pid %d: %w", pid, ErrAccessDenied)
	}
	return fmt.Errorf("pid %d: %w", pid, err)
}

func (h *Handle) Pid() int { return h.pid }

func (h *Handle) Alive() bool {
	if h.pid <= 0 {
		return false
	}
	_, err := os.Stat(fmt.Sprintf("/proc/%d", h.pid))
	return err == nil
}

// Close releases the descriptor. Closing twice is fine.
func (h *Handle) Close() error {
	if h.fd < 0 {
		return nil
	}
	err := unix.Close(h.fd)
	h.fd = -1
	return err
}

// Read returns up to n bytes at addr. The read advances page by page so a
// request spanning an unmapped boundary returns the bytes transferred up
// to the boundary with a nil error; callers must check the length. Only a
// read that transfers nothing is an error: ErrHandleStale if the target
// exited, ErrReadFailure otherwise.
func (h *Handle) Read(addr uint64, n int) ([]byte, error) {
	if h.fd < 0 {
		return nil, ErrClosed
	}
	if n <= 0 {
		return nil, nil
	}

	page := uint64(unix.Getpagesize())
	buf := make([]byte, n)
	got := 0

	for got < n {
		cur := addr + uint64(got)
		chunk := n - got
		if rem := int(page - cur%page); chunk > rem {
			chunk = rem
		}

		m, err := unix.Pread(h.fd, buf[got:got+chunk], int64(cur))
		if err != nil || m == 0 {
			if got > 0 {
				return buf[:got], nil
			}
			return nil, h.readError(addr, err)
		}
		got += m
		if m < chunk {
			return buf[:got], nil
		}
	}

	return buf, nil
}

func (h *Handle) readError(addr uint64, err error) error {
	if !h.Alive() {
		return fmt.Errorf("read 0x%x: %w", addr, ErrHandleStale)
	}
	if errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) {
		return fmt.Errorf("read 0x%x: %w", addr, ErrAccessDenied)
	}
	if err != nil {
		return fmt.Errorf("read 0x%x: %v: %w", addr, err, ErrReadFailure)
	}
	return fmt.Errorf("read 0x%x: %w", addr, ErrReadFailure)
}
