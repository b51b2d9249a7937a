// Package liveness answers "is this pid still alive" the same way the
// original checks a subscription's owning process: a failure-free signal-0
// probe (spec §5 Cancellation, §9 design notes).
package liveness

import (
	"os"

	"golang.org/x/sys/unix"
)

// Alive reports whether pid names a live process. It issues a signal-0
// probe (kill(pid, 0)): ESRCH means the process is gone, anything else
// (including EPERM — it exists but we lack permission to signal it) counts
// as alive. This is a read-only, side-effect-free check.
func Alive(pid int32) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(int(pid), 0)
	if err == nil {
		return true
	}
	return err != unix.ESRCH
}

// CurrentPID returns this process's pid, used to stamp sub.owner on a
// successful subscribe.
func CurrentPID() int32 {
	return int32(os.Getpid())
}
