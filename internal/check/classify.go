package check

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/mutker/bwcheck/internal/age"
	"codeberg.org/mutker/bwcheck/internal/logline"
)

// Classify turns a matched log line and its age into a Result. It has no
// side effects; the same inputs always give the same Result.
func Classify(m logline.Match, a age.Age, t Thresholds) Result {
	switch m.Kind {
	case logline.KindNoEvent:
		return Result{
			Status:  StatusOK,
			Message: "no bandwidth overutilization history found",
			Graph:   GraphValue(0),
		}
	case logline.KindFormatError, logline.KindDataError:
		return Unknown(m.Err)
	case logline.KindMatched:
	default:
		return Unknown(fmt.Errorf("unexpected match kind %v", m.Kind))
	}

	ev := m.Event
	minutes := a.Minutes()
	res := Result{Event: &ev, AgeMinutes: minutes}

	switch {
	case minutes > t.NoAlertAge:
		res.Status = StatusOK
		res.Message = fmt.Sprintf("no recent overutilization (last was %.2f%% %s ago)", ev.Percent, formatAge(minutes))
		res.Graph = GraphValue(0)
	case minutes > t.AlertAge:
		res.Status = StatusOK
		res.Message = fmt.Sprintf("last overutilization was %.2f%% %s ago", ev.Percent, formatAge(minutes))
		res.Graph = GraphValue(0)
	case ev.Percent >= float64(t.Critical):
		res.Status = StatusCritical
		res.Message = usage(ev, minutes)
		res.Graph = GraphValue(ev.Percent)
	case ev.Percent >= float64(t.Warning):
		res.Status = StatusWarning
		res.Message = usage(ev, minutes)
		res.Graph = GraphValue(ev.Percent)
	default:
		res.Status = StatusOK
		res.Message = fmt.Sprintf("bandwidth at %.2f%% (%d of %d Mbps licensed)", ev.Percent, ev.UsedMbps, ev.LicensedMbps)
		res.Graph = GraphValue(ev.Percent)
	}

	return res
}

// Unknown reports a failed run. The graph value is left undefined.
func Unknown(err error) Result {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Result{Status: StatusUnknown, Message: msg, Err: err}
}

// Evaluate runs one fetch through matching, age resolution and
// classification. Every failure is folded into an UNKNOWN result.
func Evaluate(ctx context.Context, f Fetcher, t Thresholds, now time.Time) Result {
	if err := t.Validate(); err != nil {
		return Unknown(err)
	}

	text, err := f.Fetch(ctx)
	if err != nil {
		return Unknown(err)
	}

	m := logline.Parse(text)
	if m.Kind != logline.KindMatched {
		return Classify(m, 0, t)
	}

	a, err := age.Resolve(m.Event.Timestamp, now)
	if err != nil {
		res := Unknown(err)
		res.Event = &m.Event
		return res
	}

	return Classify(m, a, t)
}

func usage(ev logline.Event, minutes int) string {
	return fmt.Sprintf("bandwidth at %.2f%% (%d of %d Mbps licensed) %s ago",
		ev.Percent, ev.UsedMbps, ev.LicensedMbps, formatAge(minutes))
}

func formatAge(minutes int) string {
	switch {
	case minutes < 60:
		return fmt.Sprintf("%d min", minutes)
	case minutes < 24*60:
		return fmt.Sprintf("%dh%02dm", minutes/60, minutes%60)
	default:
		return fmt.Sprintf("%dd%02dh", minutes/(24*60), minutes%(24*60)/60)
	}
}
