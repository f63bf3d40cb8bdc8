// Package check classifies the most recent overutilization event against
// the configured thresholds and alert window.
package check

import (
	"context"

	"codeberg.org/mutker/bwcheck/internal/errors"
	"codeberg.org/mutker/bwcheck/internal/logline"
)

// Status represents the monitoring state of a check.
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusCritical
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarning:
		return "WARNING"
	case StatusCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Fetcher retrieves the raw log text from the appliance. An empty string
// with a nil error means nothing matched on the remote side.
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context) (string, error)

func (f FetcherFunc) Fetch(ctx context.Context) (string, error) {
	return f(ctx)
}

// Thresholds holds the utilization levels in percent and the alert window
// in minutes.
type Thresholds struct {
	Warning    int
	Critical   int
	AlertAge   int
	NoAlertAge int
}

// DefaultThresholds returns the default threshold values.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Warning:    75,
		Critical:   80,
		AlertAge:   5,
		NoAlertAge: 10,
	}
}

// Validate checks the ordering of both threshold pairs.
func (t Thresholds) Validate() error {
	errFactory := errors.New()

	if t.Warning >= t.Critical {
		return errFactory.WithData(errors.ErrInvalidThresholds, struct {
			Warning  int
			Critical int
		}{t.Warning, t.Critical}).WithMessage("warning threshold must be below critical threshold")
	}
	if t.AlertAge < 0 {
		return errFactory.WithData(errors.ErrInvalidThresholds, t.AlertAge).
			WithMessage("alert age must not be negative")
	}
	if t.AlertAge >= t.NoAlertAge {
		return errFactory.WithData(errors.ErrInvalidThresholds, struct {
			AlertAge   int
			NoAlertAge int
		}{t.AlertAge, t.NoAlertAge}).WithMessage("alert age must be below no-alert age")
	}

	return nil
}

// Graph is the value published for trend graphing; Known is false for the
// undefined sentinel.
type Graph struct {
	Value float64
	Known bool
}

// GraphValue returns a known graph value.
func GraphValue(v float64) Graph {
	return Graph{Value: v, Known: true}
}

// Result is the outcome of one check run.
type Result struct {
	Status  Status
	Message string
	Graph   Graph

	// Event and AgeMinutes describe the event the result was derived from,
	// if any.
	Event      *logline.Event
	AgeMinutes int
	Err        error
}
