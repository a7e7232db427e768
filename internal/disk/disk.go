// Package disk lists logical volumes with capacity and I/O counters.
package disk

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/Dicklesworthstone/hostprobe/internal/model"
	"github.com/Dicklesworthstone/hostprobe/internal/native"
)

// Field names reported in DiskRecord.Unavailable.
const (
	FieldSpace      = "space"
	FieldFileSystem = "file_system"
	FieldIO         = "io"
)

// Provider is one source of per-volume read/write counters.
type Provider struct {
	Name string
	Read func(root string) (native.DiskIO, error)
}

// DefaultProviders is the priority order: the per-device query, then the aggregate
// counters.
func DefaultProviders(src native.Source) []Provider {
	return []Provider{
		{Name: "device", Read: src.DeviceIO},
		{Name: "aggregate", Read: src.AggregateIO},
	}
}

// Aggregator builds DiskRecords.
type Aggregator struct {
	src       native.Source
	log       *slog.Logger
	providers []Provider
}

func NewAggregator(src native.Source, log *slog.Logger, providers []Provider) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	if providers == nil {
		providers = DefaultProviders(src)
	}
	return &Aggregator{src: src, log: log, providers: providers}
}

// Enumerate describes every volume at or above the minimum reported drive type. A
// failing volume listing yields an empty result.
func (a *Aggregator) Enumerate() []model.DiskRecord {
	roots, err := a.src.Volumes()
	if err != nil {
		a.log.Warn("volume enumeration failed", "error", err)
		return []model.DiskRecord{}
	}
	systemRoot := a.src.SystemRoot()
	out := make([]model.DiskRecord, 0, len(roots))
	for _, root := range roots {
		dt, err := a.src.DriveType(root)
		if err != nil {
			a.log.Debug("drive type unavailable", "path", root, "error", err)
			continue
		}
		if model.DriveType(dt) < model.MinReportedDrive {
			continue
		}
		out = append(out, a.describe(root, model.DriveType(dt), systemRoot))
	}
	return out
}

// describe reports Name and FileSystem verbatim. They are identifiers, not free text,
// and short labels such as "NTFS" would pass the base64 check in sanitize.
func (a *Aggregator) describe(root string, dt model.DriveType, systemRoot string) model.DiskRecord {
	rec := model.DiskRecord{
		Name:        root,
		DriveType:   dt,
		FileSystem:  model.Unknown,
		IsSystem:    systemRoot != "" && strings.EqualFold(root, systemRoot),
		HasPageFile: a.src.HasPageFile(root),
	}
	miss := func(field string, err error) {
		rec.Unavailable = append(rec.Unavailable, field)
		a.log.Debug("disk field unavailable", "path", root, "field", field, "error", err)
	}

	if space, err := a.src.DiskSpace(root); err == nil {
		rec.TotalBytes = space.Total
		rec.FreeBytes = space.Free
		if rec.FreeBytes > rec.TotalBytes {
			rec.FreeBytes = rec.TotalBytes
		}
		rec.UsedBytes = rec.TotalBytes - rec.FreeBytes
		if rec.TotalBytes > 0 {
			rec.PercentUsed = 100 * float64(rec.UsedBytes) / float64(rec.TotalBytes)
		}
	} else {
		miss(FieldSpace, err)
	}

	if fs, err := a.src.FileSystem(root); err == nil && fs != "" {
		rec.FileSystem = fs
	} else if err != nil {
		miss(FieldFileSystem, err)
	}

	if io, name, err := a.readIO(root); err == nil {
		read, write, transfer := io.ReadBytes, io.WriteBytes, io.ReadBytes+io.WriteBytes
		rec.ReadBytes, rec.WriteBytes, rec.TransferBytes = &read, &write, &transfer
		rec.IOSource = name
	} else {
		miss(FieldIO, err)
	}
	return rec
}

var errNoProvider = errors.New("every io provider failed")

// readIO walks the providers in order; the first non-empty result wins. An idle volume
// reports the zero reading of the first provider that answered. Only when every
// provider fails are the counters unknown.
func (a *Aggregator) readIO(root string) (native.DiskIO, string, error) {
	var idle string
	for _, p := range a.providers {
		io, err := p.Read(root)
		if err != nil {
			a.log.Debug("disk io provider failed", "path", root, "provider", p.Name, "error", err)
			continue
		}
		if !io.Empty() {
			return io, p.Name, nil
		}
		if idle == "" {
			idle = p.Name
		}
	}
	if idle != "" {
		return native.DiskIO{}, idle, nil
	}
	return native.DiskIO{}, "", errNoProvider
}
