package layout

import "fmt"

// SYSTEM_PROCESS_INFORMATION, as returned for SystemProcessInformation (5). Entries are
// chained by NextEntryOffset; each is followed by NumberOfThreads thread records.
//
//	offset size field
//	0      4    NextEntryOffset
//	4      4    NumberOfThreads
//	32     8    CreateTime
//	40     8    UserTime
//	48     8    KernelTime
//	72     4    BasePriority
//	80     8    UniqueProcessId
//	88     8    InheritedFromUniqueProcessId
//	96     4    HandleCount
//	100    4    SessionId
//	128    4    PageFaultCount
//	144    8    WorkingSetSize
//	256         end of fixed part
//
// SYSTEM_THREAD_INFORMATION:
//
//	0  8 KernelTime
//	8  8 UserTime
//	16 8 CreateTime
//	24 4 WaitTime
//	32 8 StartAddress
//	40 8 ClientId.UniqueProcess
//	48 8 ClientId.UniqueThread
//	56 4 Priority
//	60 4 BasePriority
//	64 4 ContextSwitches
//	68 4 ThreadState
//	72 4 WaitReason
//	80   end
const (
	SystemProcessInformation = 5

	ProcessInfoSize = 256
	ThreadInfoSize  = 80
)

// ProcessInfo is the subset of a process entry the collectors consume.
type ProcessInfo struct {
	PID         uint64
	ParentPID   uint64
	UserTime    int64 // 100ns units
	KernelTime  int64 // 100ns units
	HandleCount uint32
	SessionID   uint32
	Threads     []ThreadInfo
}

// ThreadInfo is one decoded thread record.
type ThreadInfo struct {
	KernelTime      int64
	UserTime        int64
	StartAddress    uint64
	PID             uint64
	TID             uint64
	Priority        int32
	BasePriority    int32
	ContextSwitches uint32
	State           uint32
	WaitReason      uint32
}

// DecodeProcessList walks the entry chain.
func DecodeProcessList(b []byte) ([]ProcessInfo, error) {
	var out []ProcessInfo
	off := 0
	for {
		if err := need(b, off, ProcessInfoSize); err != nil {
			return nil, err
		}
		e := b[off:]
		next := int(le.Uint32(e[0:4]))
		nThreads := int(le.Uint32(e[4:8]))
		span := ProcessInfoSize + nThreads*ThreadInfoSize
		if err := need(b, off, span); err != nil {
			return nil, err
		}
		p := ProcessInfo{
			UserTime:    int64(le.Uint64(e[40:48])),
			KernelTime:  int64(le.Uint64(e[48:56])),
			PID:         le.Uint64(e[80:88]),
			ParentPID:   le.Uint64(e[88:96]),
			HandleCount: le.Uint32(e[96:100]),
			SessionID:   le.Uint32(e[100:104]),
			Threads:     make([]ThreadInfo, 0, nThreads),
		}
		for i := 0; i < nThreads; i++ {
			t := e[ProcessInfoSize+i*ThreadInfoSize:]
			p.Threads = append(p.Threads, ThreadInfo{
				KernelTime:      int64(le.Uint64(t[0:8])),
				UserTime:        int64(le.Uint64(t[8:16])),
				StartAddress:    le.Uint64(t[32:40]),
				PID:             le.Uint64(t[40:48]),
				TID:             le.Uint64(t[48:56]),
				Priority:        int32(le.Uint32(t[56:60])),
				BasePriority:    int32(le.Uint32(t[60:64])),
				ContextSwitches: le.Uint32(t[64:68]),
				State:           le.Uint32(t[68:72]),
				WaitReason:      le.Uint32(t[72:76]),
			})
		}
		out = append(out, p)
		if next == 0 {
			return out, nil
		}
		if next < span {
			return nil, fmt.Errorf("%w: next entry offset %d overlaps entry of %d bytes", ErrTruncated, next, span)
		}
		off += next
	}
}
