// Package handles reads the system-wide handle table and classifies each entry.
//
// Names are only filled where the source reports them directly. Resolving the name
// of an arbitrary handle requires duplicating it into this process, which is not done.
package handles

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Dicklesworthstone/hostprobe/internal/growbuf"
	"github.com/Dicklesworthstone/hostprobe/internal/model"
	"github.com/Dicklesworthstone/hostprobe/internal/native"
	"github.com/Dicklesworthstone/hostprobe/internal/sanitize"
)

// DefaultPolicy starts large because the table routinely holds tens of thousands of
// entries.
var DefaultPolicy = growbuf.Policy{Initial: 32 << 10, Max: 16 << 20, MaxRetries: 6}

// typeIndexes maps kernel object-type numbers to handle types.
var typeIndexes = map[uint16]model.HandleType{
	0x1A: model.HandleSocket,
	0x1B: model.HandlePipe,
	0x1C: model.HandleFile,
	0x1D: model.HandleSemaphore,
	0x1E: model.HandleMutex,
	0x1F: model.HandleFile,
}

// typeNames maps object-type names reported by the source.
var typeNames = map[string]model.HandleType{
	"file":       model.HandleFile,
	"mutant":     model.HandleMutex,
	"mutex":      model.HandleMutex,
	"semaphore":  model.HandleSemaphore,
	"pipe":       model.HandlePipe,
	"socket":     model.HandleSocket,
	"anon_inode": model.HandleOther,
}

// Classify resolves the handle type, preferring the reported type name.
func Classify(typeName string, typeIndex uint16) model.HandleType {
	if typeName != "" {
		if t, ok := typeNames[strings.ToLower(typeName)]; ok {
			return t
		}
		return model.HandleOther
	}
	if typeIndex == 0 {
		return model.HandleUnknown
	}
	if t, ok := typeIndexes[typeIndex]; ok {
		return t
	}
	return model.HandleOther
}

// Describe renders the display form of a handle, e.g. "File: Handle=0x1C".
func Describe(t model.HandleType, handle uint64) string {
	return fmt.Sprintf("%s: Handle=0x%X", t, handle)
}

// Table is one successful read of the handle table, grouped by owning process.
type Table struct {
	byPID map[uint32][]model.HandleRecord
	total int
}

// Enumerator reads the handle table through the growth protocol.
type Enumerator struct {
	src    native.Source
	log    *slog.Logger
	policy growbuf.Policy
}

func NewEnumerator(src native.Source, log *slog.Logger, policy growbuf.Policy) *Enumerator {
	if log == nil {
		log = slog.Default()
	}
	if policy.Initial <= 0 {
		policy = DefaultPolicy
	}
	return &Enumerator{src: src, log: log, policy: policy}
}

// Load reads the whole table once. Exhausting the growth bound returns a
// QUERY_OVERFLOW error.
func (e *Enumerator) Load() (*Table, error) {
	entries, err := growbuf.Read(e.policy, e.src.ReadHandleTable)
	if err != nil {
		e.log.Debug("handle table unavailable", "error", err)
		return nil, err
	}
	t := &Table{byPID: make(map[uint32][]model.HandleRecord), total: len(entries)}
	for _, h := range entries {
		typ := Classify(h.TypeName, h.TypeIndex)
		t.byPID[h.PID] = append(t.byPID[h.PID], model.HandleRecord{
			Handle:      h.Handle,
			Type:        typ,
			TypeIndex:   h.TypeIndex,
			Access:      h.Access,
			Name:        sanitize.Decode(h.Name),
			Description: Describe(typ, h.Handle),
		})
	}
	return t, nil
}

// ForProcess filters the table to pid. The result is empty, not nil, when pid owns
// no handles.
func (t *Table) ForProcess(pid uint32) []model.HandleRecord {
	recs := t.byPID[pid]
	if recs == nil {
		return []model.HandleRecord{}
	}
	return recs
}

// Len is the number of entries read.
func (t *Table) Len() int { return t.total }
