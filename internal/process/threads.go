package process

import (
	"log/slog"

	apperrors "github.com/Dicklesworthstone/hostprobe/internal/errors"
	"github.com/Dicklesworthstone/hostprobe/internal/model"
	"github.com/Dicklesworthstone/hostprobe/internal/native"
)

// ThreadTable is the system-wide thread snapshot grouped by owning process.
type ThreadTable struct {
	byPID map[uint32][]model.ThreadRecord
}

// LoadThreads takes one thread snapshot and augments each row with the detailed
// thread query. Rows the detailed query does not cover keep Unknown state and wait
// reason.
func LoadThreads(src native.Source, log *slog.Logger) (*ThreadTable, error) {
	if log == nil {
		log = slog.Default()
	}
	entries, err := src.ThreadSnapshot()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodePartialUnavailable, "thread snapshot failed", err)
	}
	details, err := src.ThreadDetails()
	if err != nil {
		log.Debug("thread details unavailable", "error", err)
		details = nil
	}

	t := &ThreadTable{byPID: make(map[uint32][]model.ThreadRecord)}
	for _, e := range entries {
		rec := model.ThreadRecord{
			TID:           e.TID,
			BasePriority:  e.BasePriority,
			DeltaPriority: e.DeltaPriority,
			State:         model.ThreadUnknown,
			WaitReason:    model.WaitUnknown,
		}
		if d, ok := details[e.TID]; ok {
			applyDetail(&rec, d)
		}
		t.byPID[e.OwnerPID] = append(t.byPID[e.OwnerPID], rec)
	}
	return t, nil
}

func applyDetail(rec *model.ThreadRecord, d native.ThreadDetail) {
	rec.StartAddress = d.StartAddress
	if d.StateKnown {
		rec.State = model.ThreadStateFromCode(d.State)
	}
	if d.WaitKnown {
		rec.WaitReason = model.WaitReasonFromCode(d.WaitReason)
	}
	rec.ContextSwitch = d.ContextSwitches
	if d.UserTime != nil {
		ms := uint64(d.UserTime.Milliseconds())
		rec.UserTimeMS = &ms
	}
	if d.KernelTime != nil {
		ms := uint64(d.KernelTime.Milliseconds())
		rec.KernelTimeMS = &ms
	}
}

// ForProcess returns the threads owned by pid, in snapshot order.
func (t *ThreadTable) ForProcess(pid uint32) []model.ThreadRecord {
	if t == nil {
		return nil
	}
	return t.byPID[pid]
}

// Count is the number of threads in the snapshot.
func (t *ThreadTable) Count() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, recs := range t.byPID {
		n += len(recs)
	}
	return n
}
