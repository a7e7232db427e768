//go:build unix

package privilege

import "golang.org/x/sys/unix"

func isElevated() bool {
	return unix.Geteuid() == 0
}
