//go:build linux

// ABOUTME: OS thread id for log events on Linux
// ABOUTME: Lets logs show which thread drove the output
package visualization

import "golang.org/x/sys/unix"

// threadID returns the kernel id of the calling OS thread
func threadID() int {
	return unix.Gettid()
}
