package model

// ThreadState is the scheduler state of a thread.
type ThreadState int

const (
	ThreadInitialized ThreadState = iota
	ThreadReady
	ThreadRunning
	ThreadStandby
	ThreadTerminated
	ThreadWaiting
	ThreadTransition
	ThreadDeferredReady
	ThreadGateWait
	ThreadUnknown
)

var threadStateNames = [...]string{
	"Initialized", "Ready", "Running", "Standby", "Terminated",
	"Waiting", "Transition", "DeferredReady", "GateWait", Unknown,
}

// ThreadStateFromCode maps a kernel thread-state number; anything out of range is Unknown.
func ThreadStateFromCode(code uint32) ThreadState {
	if code >= uint32(ThreadUnknown) {
		return ThreadUnknown
	}
	return ThreadState(code)
}

func (s ThreadState) String() string {
	if s < 0 || s > ThreadUnknown {
		return Unknown
	}
	return threadStateNames[s]
}

func (s ThreadState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// WaitReason is the reason a waiting thread is blocked. Values 0-36 follow the kernel's
// numbering; WaitUnknown is the fallback.
type WaitReason int

const (
	WaitExecutive WaitReason = iota
	WaitFreePage
	WaitPageIn
	WaitPoolAllocation
	WaitDelayExecution
	WaitSuspended
	WaitUserRequest
	WaitWrExecutive
	WaitWrFreePage
	WaitWrPageIn
	WaitWrPoolAllocation
	WaitWrDelayExecution
	WaitWrSuspended
	WaitWrUserRequest
	WaitWrEventPair
	WaitWrQueue
	WaitWrLpcReceive
	WaitWrLpcReply
	WaitWrVirtualMemory
	WaitWrPageOut
	WaitWrRendezvous
	WaitWrKeyedEvent
	WaitWrTerminated
	WaitWrProcessInSwap
	WaitWrCpuRateControl
	WaitWrCalloutStack
	WaitWrKernel
	WaitWrResource
	WaitWrPushLock
	WaitWrMutex
	WaitWrQuantumEnd
	WaitWrDispatchInt
	WaitWrPreempted
	WaitWrYieldExecution
	WaitWrFastMutex
	WaitWrGuardedMutex
	WaitWrRundown
	WaitUnknown
)

var waitReasonNames = [...]string{
	"Executive", "FreePage", "PageIn", "PoolAllocation", "DelayExecution",
	"Suspended", "UserRequest", "WrExecutive", "WrFreePage", "WrPageIn",
	"WrPoolAllocation", "WrDelayExecution", "WrSuspended", "WrUserRequest", "WrEventPair",
	"WrQueue", "WrLpcReceive", "WrLpcReply", "WrVirtualMemory", "WrPageOut",
	"WrRendezvous", "WrKeyedEvent", "WrTerminated", "WrProcessInSwap", "WrCpuRateControl",
	"WrCalloutStack", "WrKernel", "WrResource", "WrPushLock", "WrMutex",
	"WrQuantumEnd", "WrDispatchInt", "WrPreempted", "WrYieldExecution", "WrFastMutex",
	"WrGuardedMutex", "WrRundown", Unknown,
}

// WaitReasonFromCode maps a kernel wait-reason number; anything out of range is Unknown.
func WaitReasonFromCode(code uint32) WaitReason {
	if code >= uint32(WaitUnknown) {
		return WaitUnknown
	}
	return WaitReason(code)
}

func (w WaitReason) String() string {
	if w < 0 || w > WaitUnknown {
		return Unknown
	}
	return waitReasonNames[w]
}

func (w WaitReason) MarshalText() ([]byte, error) { return []byte(w.String()), nil }

// HandleType classifies the kernel object behind a handle.
type HandleType string

const (
	HandleFile      HandleType = "File"
	HandleMutex     HandleType = "Mutex"
	HandleSemaphore HandleType = "Semaphore"
	HandlePipe      HandleType = "Pipe"
	HandleSocket    HandleType = "Socket"
	HandleOther     HandleType = "Other"
	HandleUnknown   HandleType = Unknown
)

// DriveType classifies a logical volume. The numeric order follows the OS drive-type codes.
type DriveType int

const (
	DriveUnknown DriveType = iota
	DriveNoRootDir
	DriveRemovable
	DriveFixed
	DriveNetwork
	DriveOptical
	DriveRAM
)

// MinReportedDrive is the lowest drive type included in disk listings.
const MinReportedDrive = DriveRemovable

var driveTypeNames = [...]string{Unknown, "NoRootDir", "Removable", "Fixed", "Network", "Optical", "RAM"}

func (d DriveType) String() string {
	if d < 0 || int(d) >= len(driveTypeNames) {
		return Unknown
	}
	return driveTypeNames[d]
}

func (d DriveType) MarshalText() ([]byte, error) { return []byte(d.String()), nil }
