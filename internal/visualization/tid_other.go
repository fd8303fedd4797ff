//go:build !linux

// ABOUTME: Thread id fallback for platforms without gettid
// ABOUTME: Always reports -1
package visualization

// threadID is unavailable off Linux
func threadID() int {
	return -1
}
