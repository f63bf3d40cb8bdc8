// Package report renders a check result as a monitoring plugin status line.
package report

import (
	"fmt"
	"io"
	"strings"

	"codeberg.org/mutker/bwcheck/internal/check"
)

const (
	serviceName = "BANDWIDTH"
	metricName  = "bandwidth_percent"

	// Graph range leaves room to show usage above the licensed rate.
	graphMin = 0
	graphMax = 150
)

// ExitCode maps a status onto the standard plugin exit codes.
func ExitCode(s check.Status) int {
	switch s {
	case check.StatusOK:
		return 0
	case check.StatusWarning:
		return 1
	case check.StatusCritical:
		return 2
	default:
		return 3
	}
}

// Message returns the human readable part of the status line.
func Message(r check.Result) string {
	// the pipe separates perfdata, so it cannot appear in the message
	msg := strings.ReplaceAll(strings.Join(strings.Fields(r.Message), " "), "|", "/")
	return fmt.Sprintf("%s %s - %s", serviceName, r.Status, msg)
}

// Perfdata returns the performance data part of the status line.
func Perfdata(r check.Result, t check.Thresholds) string {
	value := "U"
	if r.Graph.Known {
		value = fmt.Sprintf("%.2f", r.Graph.Value)
	}
	return fmt.Sprintf("%s=%s%%;%d;%d;%d;%d", metricName, value, t.Warning, t.Critical, graphMin, graphMax)
}

// Line renders the full single-line plugin output.
func Line(r check.Result, t check.Thresholds) string {
	return Message(r) + " | " + Perfdata(r, t)
}

// Write prints the status line and returns the exit code to use.
func Write(w io.Writer, r check.Result, t check.Thresholds) (int, error) {
	if _, err := fmt.Fprintln(w, Line(r, t)); err != nil {
		return ExitCode(check.StatusUnknown), err
	}
	return ExitCode(r.Status), nil
}
