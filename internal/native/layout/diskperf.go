package layout

// DISK_PERFORMANCE, as returned by IOCTL_DISK_PERFORMANCE.
//
//	0  8 BytesRead
//	8  8 BytesWritten
//	16 8 ReadTime
//	24 8 WriteTime
//	32 8 IdleTime
//	40 4 ReadCount
//	44 4 WriteCount
//	48 4 QueueDepth
//	52 4 SplitCount
//	56 8 QueryTime
//	64 4 StorageDeviceNumber
//	68 16 StorageManagerName
//	88   end (padded)
const (
	IOCTLDiskPerformance = 0x70020
	DiskPerformanceSize  = 88
)

// DiskPerformance is the decoded counter block.
type DiskPerformance struct {
	BytesRead    uint64
	BytesWritten uint64
	ReadCount    uint32
	WriteCount   uint32
	QueueDepth   uint32
}

// DecodeDiskPerformance decodes the counter block. Negative byte counters are clamped
// to zero.
func DecodeDiskPerformance(b []byte) (DiskPerformance, error) {
	if err := need(b, 0, 68); err != nil {
		return DiskPerformance{}, err
	}
	clamp := func(v int64) uint64 {
		if v < 0 {
			return 0
		}
		return uint64(v)
	}
	return DiskPerformance{
		BytesRead:    clamp(int64(le.Uint64(b[0:8]))),
		BytesWritten: clamp(int64(le.Uint64(b[8:16]))),
		ReadCount:    le.Uint32(b[40:44]),
		WriteCount:   le.Uint32(b[44:48]),
		QueueDepth:   le.Uint32(b[48:52]),
	}, nil
}
