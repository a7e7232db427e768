package layout

import "fmt"

// SYSTEM_HANDLE_INFORMATION_EX, as returned for SystemExtendedHandleInformation (64).
//
//	offset size field
//	0      8    NumberOfHandles (ULONG_PTR)
//	8      8    Reserved
//	16     40*n Handles[n] (SYSTEM_HANDLE_TABLE_ENTRY_INFO_EX)
//
// SYSTEM_HANDLE_TABLE_ENTRY_INFO_EX:
//
//	0  8 Object
//	8  8 UniqueProcessId
//	16 8 HandleValue
//	24 4 GrantedAccess
//	28 2 CreatorBackTraceIndex
//	30 2 ObjectTypeIndex
//	32 4 HandleAttributes
//	36 4 Reserved
const (
	SystemExtendedHandleInformation = 64

	HandleTableHeaderSize = 16
	HandleTableEntrySize  = 40
)

// HandleTableEntry is one decoded handle table row.
type HandleTableEntry struct {
	Object     uint64
	PID        uint64
	Handle     uint64
	Access     uint32
	TypeIndex  uint16
	Attributes uint32
}

// HandleTableBytes is the buffer size that holds n entries.
func HandleTableBytes(n int) int {
	return HandleTableHeaderSize + n*HandleTableEntrySize
}

// HandleTableCapacity is the number of entries a buffer of size bytes can hold.
func HandleTableCapacity(size int) int {
	if size <= HandleTableHeaderSize {
		return 0
	}
	return (size - HandleTableHeaderSize) / HandleTableEntrySize
}

// HandleCount reads the entry count from the header.
func HandleCount(b []byte) (int, error) {
	if err := need(b, 0, HandleTableHeaderSize); err != nil {
		return 0, err
	}
	n := le.Uint64(b[0:8])
	if n > uint64(HandleTableCapacity(len(b))) {
		return 0, fmt.Errorf("%w: header claims %d handles", ErrTruncated, n)
	}
	return int(n), nil
}

// DecodeHandleEntry decodes entry i.
func DecodeHandleEntry(b []byte, i int) (HandleTableEntry, error) {
	off := HandleTableHeaderSize + i*HandleTableEntrySize
	if err := need(b, off, HandleTableEntrySize); err != nil {
		return HandleTableEntry{}, err
	}
	e := b[off : off+HandleTableEntrySize]
	return HandleTableEntry{
		Object:     le.Uint64(e[0:8]),
		PID:        le.Uint64(e[8:16]),
		Handle:     le.Uint64(e[16:24]),
		Access:     le.Uint32(e[24:28]),
		TypeIndex:  le.Uint16(e[30:32]),
		Attributes: le.Uint32(e[32:36]),
	}, nil
}

// DecodeHandleTable decodes every entry the header announces.
func DecodeHandleTable(b []byte) ([]HandleTableEntry, error) {
	n, err := HandleCount(b)
	if err != nil {
		return nil, err
	}
	out := make([]HandleTableEntry, 0, n)
	for i := 0; i < n; i++ {
		e, err := DecodeHandleEntry(b, i)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
