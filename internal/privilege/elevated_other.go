//go:build !unix && !windows

package privilege

func isElevated() bool { return false }
