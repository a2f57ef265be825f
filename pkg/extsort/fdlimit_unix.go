//go:build unix

package extsort

import "golang.org/x/sys/unix"

// openFileLimit returns the soft limit on open file descriptors, or 0 if it
// cannot be determined.
func openFileLimit() int {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return 0
	}
	if rl.Cur > 1<<20 {
		return 1 << 20
	}
	return int(rl.Cur)
}
