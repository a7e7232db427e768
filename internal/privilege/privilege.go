// Package privilege decides whether a request may issue privileged queries.
package privilege

import (
	apperrors "github.com/Dicklesworthstone/hostprobe/internal/errors"
)

// Gate is evaluated once per request, before any query.
type Gate interface {
	Check() error
}

// GateFunc adapts a function to Gate.
type GateFunc func() error

func (f GateFunc) Check() error { return f() }

// Elevation refuses requests unless the collector runs with elevated rights.
type Elevation struct {
	elevated func() bool
}

// New returns the gate for the configuration. When elevation is not required every
// request is allowed.
func New(requireElevation bool) Gate {
	if !requireElevation {
		return AllowAll()
	}
	return &Elevation{elevated: isElevated}
}

func (e *Elevation) Check() error {
	if e.elevated() {
		return nil
	}
	return apperrors.New(apperrors.ErrCodeUnauthorized, "elevated privileges required")
}

// AllowAll never refuses.
func AllowAll() Gate { return GateFunc(func() error { return nil }) }
