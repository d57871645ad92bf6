//go:build linux

package device

import (
	"golang.org/x/sys/unix"
)

// setThreadNice sets the niceness of the calling OS thread. On Linux
// PRIO_PROCESS with a thread id applies to that thread only.
func setThreadNice(nice int) error {
	return unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), nice)
}
