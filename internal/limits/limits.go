package limits

import (
	"context"
)

// Usage is a single current-usage observation for a limit. ResourceID is
// empty when the observation is not tied to one specific resource.
type Usage struct {
	Value      float64
	ResourceID string
}

// Limit is a quota ceiling together with the current-usage observations
// taken at the last refresh.
type Limit struct {
	Value float64
	Usage []Usage
}

// Report is one region's usage snapshot: service name -> limit name -> limit.
type Report map[string]map[string]Limit

// Checker is the usage-checking backend boundary. One Checker is bound per
// region for the process lifetime; successive Refresh calls replace its
// internal snapshot.
type Checker interface {
	// Refresh queries the backend and replaces the current snapshot.
	Refresh(ctx context.Context) error

	// Limits returns the snapshot taken by the last successful Refresh.
	// The returned report is read-only.
	Limits() Report

	// SetOverride replaces the ceiling reported for one limit. Overrides
	// must be set before the first Refresh.
	SetOverride(service, limitName string, value float64)
}
