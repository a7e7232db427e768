package model

import "time"

// Unknown is the explicit placeholder for a text field that could not be obtained.
const Unknown = "Unknown"

// SystemSummary aggregates host-wide CPU, memory and OS facts.
type SystemSummary struct {
	CPUTotal           float64   `json:"cpu_total" yaml:"cpu_total"`       // percent 0-100
	CPUPerCore         []float64 `json:"cpu_per_core" yaml:"cpu_per_core"` // percent 0-100, same window as CPUTotal
	PhysicalCores      int       `json:"cpu_physical_cores" yaml:"cpu_physical_cores"`
	LogicalProcessors  int       `json:"cpu_logical_processors" yaml:"cpu_logical_processors"`
	BaseSpeedMHz       uint64    `json:"cpu_base_speed_mhz" yaml:"cpu_base_speed_mhz"`
	CPUVendor          string    `json:"cpu_vendor" yaml:"cpu_vendor"`
	CPUBrand           string    `json:"cpu_brand" yaml:"cpu_brand"`
	MemoryTotalBytes   uint64    `json:"memory_total_bytes" yaml:"memory_total_bytes"`
	MemoryUsedBytes    uint64    `json:"memory_used_bytes" yaml:"memory_used_bytes"`
	MemoryFreeBytes    uint64    `json:"memory_free_bytes" yaml:"memory_free_bytes"`
	MemoryPercent      float64   `json:"memory_percent" yaml:"memory_percent"`
	UptimeSeconds      uint64    `json:"uptime_secs" yaml:"uptime_secs"`
	Uptime             string    `json:"uptime" yaml:"uptime"` // "{h}h {m}m"
	BootTime           time.Time `json:"boot_time" yaml:"boot_time"`
	Hostname           string    `json:"hostname" yaml:"hostname"`
	OSName             string    `json:"os_name" yaml:"os_name"`
	OSVersion          string    `json:"os_version" yaml:"os_version"`
	OSBuild            string    `json:"os_build" yaml:"os_build"`
	ProcessCount       int       `json:"process_count" yaml:"process_count"` // enumerated PIDs
	ThreadCount        int       `json:"thread_count" yaml:"thread_count"`
	SampleWindowMillis int64     `json:"sample_window_ms" yaml:"sample_window_ms"`

	// Unavailable names the fields that could not be obtained.
	Unavailable []string `json:"unavailable,omitempty" yaml:"unavailable,omitempty"`
}

// MemoryCounters mirrors the per-process memory accounting. Pool usage is nil where the
// platform has no such notion.
type MemoryCounters struct {
	WorkingSetBytes     uint64  `json:"working_set_bytes" yaml:"working_set_bytes"`
	PeakWorkingSetBytes uint64  `json:"peak_working_set_bytes" yaml:"peak_working_set_bytes"`
	PageFaultCount      uint64  `json:"page_faults" yaml:"page_faults"`
	PagedPoolBytes      *uint64 `json:"paged_pool_bytes,omitempty" yaml:"paged_pool_bytes,omitempty"`
	NonPagedPoolBytes   *uint64 `json:"non_paged_pool_bytes,omitempty" yaml:"non_paged_pool_bytes,omitempty"`
	PageFileBytes       uint64  `json:"pagefile_bytes" yaml:"pagefile_bytes"`
}

// IOCounters holds optional per-process I/O totals; nil means "could not be obtained".
type IOCounters struct {
	ReadBytes  *uint64 `json:"read_bytes" yaml:"read_bytes"`
	WriteBytes *uint64 `json:"write_bytes" yaml:"write_bytes"`
	ReadOps    *uint64 `json:"read_ops" yaml:"read_ops"`
	WriteOps   *uint64 `json:"write_ops" yaml:"write_ops"`
}

// ProcessRecord is one live process at sample time. CPU and memory percentages are only
// meaningful relative to the sampling window of the enclosing snapshot.
type ProcessRecord struct {
	PID           uint32          `json:"pid" yaml:"pid"`
	ParentPID     *uint32         `json:"parent_pid" yaml:"parent_pid"`
	Name          string          `json:"name" yaml:"name"`
	ExePath       string          `json:"exe_path" yaml:"exe_path"`
	Status        string          `json:"status" yaml:"status"`
	Username      string          `json:"username" yaml:"username"`
	CPU           float64         `json:"cpu" yaml:"cpu"` // percent of one logical core, up to 100 per core
	MemoryKB      uint64          `json:"memory_kb" yaml:"memory_kb"`
	MemoryPercent float64         `json:"memory_percent" yaml:"memory_percent"`
	Arch          string          `json:"arch" yaml:"arch"`
	Memory        *MemoryCounters `json:"memory" yaml:"memory"`
	IO            IOCounters      `json:"io" yaml:"io"`
	HandleCount   *uint32         `json:"handle_count" yaml:"handle_count"`
	ThreadCount   *uint32         `json:"thread_count" yaml:"thread_count"`
	Priority      *int32          `json:"priority" yaml:"priority"`
	StartTime     *time.Time      `json:"creation_time" yaml:"creation_time"`
	SessionID     *uint32         `json:"session_id" yaml:"session_id"`
	CommandLine   string          `json:"command_line" yaml:"command_line"`
	Environment   []string        `json:"environment" yaml:"environment"`
	Threads       []ThreadRecord  `json:"threads" yaml:"threads"`
	OpenResources []HandleRecord  `json:"open_resources" yaml:"open_resources"`

	// Unavailable names the fields that could not be obtained for this process.
	Unavailable []string `json:"unavailable,omitempty" yaml:"unavailable,omitempty"`
}

// ThreadRecord is one thread belonging to a process.
type ThreadRecord struct {
	TID           uint32      `json:"tid" yaml:"tid"`
	BasePriority  int32       `json:"base_priority" yaml:"base_priority"`
	DeltaPriority int32       `json:"delta_priority" yaml:"delta_priority"`
	StartAddress  uint64      `json:"start_address" yaml:"start_address"`
	State         ThreadState `json:"state" yaml:"state"`
	WaitReason    WaitReason  `json:"wait_reason" yaml:"wait_reason"`
	ContextSwitch *uint64     `json:"context_switches" yaml:"context_switches"`
	UserTimeMS    *uint64     `json:"user_time_ms" yaml:"user_time_ms"`
	KernelTimeMS  *uint64     `json:"kernel_time_ms" yaml:"kernel_time_ms"`
}

// HandleRecord describes one open kernel object of a process. An empty Name is valid.
type HandleRecord struct {
	Handle      uint64     `json:"handle" yaml:"handle"`
	Type        HandleType `json:"object_type" yaml:"object_type"`
	TypeIndex   uint16     `json:"object_type_index" yaml:"object_type_index"`
	Access      uint32     `json:"access" yaml:"access"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
}

// DiskRecord is one logical volume.
type DiskRecord struct {
	Name          string    `json:"name" yaml:"name"`
	TotalBytes    uint64    `json:"total_bytes" yaml:"total_bytes"`
	FreeBytes     uint64    `json:"free_bytes" yaml:"free_bytes"`
	UsedBytes     uint64    `json:"used_bytes" yaml:"used_bytes"`
	PercentUsed   float64   `json:"percent_used" yaml:"percent_used"`
	FileSystem    string    `json:"file_system" yaml:"file_system"`
	IsSystem      bool      `json:"is_system" yaml:"is_system"`
	HasPageFile   bool      `json:"has_pagefile" yaml:"has_pagefile"`
	DriveType     DriveType `json:"disk_type" yaml:"disk_type"`
	ReadBytes     *uint64   `json:"read_bytes" yaml:"read_bytes"`
	WriteBytes    *uint64   `json:"write_bytes" yaml:"write_bytes"`
	TransferBytes *uint64   `json:"transfer_bytes" yaml:"transfer_bytes"`
	IOSource      string    `json:"io_source,omitempty" yaml:"io_source,omitempty"`

	Unavailable []string `json:"unavailable,omitempty" yaml:"unavailable,omitempty"`
}

// Snapshot is the full, immutable result of one request.
type Snapshot struct {
	ID        string          `json:"id" yaml:"id"`
	Timestamp time.Time       `json:"timestamp" yaml:"timestamp"`
	Interval  time.Duration   `json:"interval" yaml:"interval"`
	System    SystemSummary   `json:"system" yaml:"system"`
	Processes []ProcessRecord `json:"processes" yaml:"processes"`
	Disks     []DiskRecord    `json:"disks" yaml:"disks"`
}
