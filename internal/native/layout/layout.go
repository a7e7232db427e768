// Package layout decodes fixed binary structures defined by the Windows kernel. All
// offsets are for 64-bit builds and little-endian byte order; every decoder checks the
// buffer length before reading and never trusts a count or offset it has not validated.
package layout

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTruncated is returned when a buffer is shorter than the structure it claims to hold.
var ErrTruncated = errors.New("layout: truncated buffer")

var le = binary.LittleEndian

func need(b []byte, off, size int) error {
	if off < 0 || size < 0 || off+size > len(b) {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, size, off, len(b))
	}
	return nil
}

// FiletimeUnit is the resolution of kernel time counters (100ns).
const FiletimeUnit = 100
