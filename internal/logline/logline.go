// Package logline recognises the appliance's bandwidth overutilization log
// entry (BIG-IP message 01010045, written to /var/log/ltm) and extracts the
// measured and licensed bandwidth from it:
//
//	Oct 19 10:40:07 bigip1 warning tmm[1234]: 01010045:4: Bandwidth utilization is 1070 Mbps, exceeded 75% of Licensed 1000 Mbps.
package logline

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"codeberg.org/mutker/bwcheck/internal/errors"
)

// Signature is the token whose presence marks a line as an overutilization
// event. Matched case-insensitively.
const Signature = "bandwidth utilization is"

var reEvent = regexp.MustCompile(
	`^\s*([A-Za-z]{3}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2})\b.*?\bis (\d+) Mbps,.*\bLicensed (\d+) Mbps\.`,
)

type Kind int

const (
	KindNoEvent Kind = iota
	KindMatched
	KindFormatError
	KindDataError
)

func (k Kind) String() string {
	switch k {
	case KindMatched:
		return "matched"
	case KindFormatError:
		return "format_error"
	case KindDataError:
		return "data_error"
	default:
		return "no_event"
	}
}

// Event is one logged overutilization occurrence.
type Event struct {
	UsedMbps     int
	LicensedMbps int
	Timestamp    string
	Percent      float64
	Line         string
}

// Match is the outcome of matching fetched text. Event is set only for
// KindMatched and Err only for KindFormatError and KindDataError.
type Match struct {
	Kind  Kind
	Event Event
	Err   error
}

// NewEvent builds an Event and derives its percentage.
func NewEvent(used, licensed int, timestamp string) (Event, error) {
	errFactory := errors.New()
	if licensed == 0 {
		return Event{}, errFactory.WithData(errors.ErrZeroLicensed, struct {
			Used     int
			Licensed int
		}{used, licensed})
	}
	if used < 0 || licensed < 0 {
		return Event{}, errFactory.WithData(errors.ErrLogFormat, struct {
			Used     int
			Licensed int
		}{used, licensed})
	}

	return Event{
		UsedMbps:     used,
		LicensedMbps: licensed,
		Timestamp:    timestamp,
		Percent:      Percent(used, licensed),
	}, nil
}

// Percent returns 100*used/licensed rounded to two decimals.
func Percent(used, licensed int) float64 {
	return math.Round(float64(used)*10000/float64(licensed)) / 100
}

// Parse matches the fetched text against the overutilization entry.
// Only the last non-empty line is considered.
func Parse(text string) Match {
	line := lastLine(text)
	if line == "" || !strings.Contains(strings.ToLower(line), Signature) {
		return Match{Kind: KindNoEvent}
	}

	errFactory := errors.New()
	m := reEvent.FindStringSubmatch(line)
	if m == nil {
		return Match{Kind: KindFormatError, Err: errFactory.WithData(errors.ErrLogFormat, line)}
	}

	used, err := strconv.Atoi(m[2])
	if err != nil {
		return Match{Kind: KindFormatError, Err: errFactory.Wrap(errors.ErrLogFormat, err)}
	}
	licensed, err := strconv.Atoi(m[3])
	if err != nil {
		return Match{Kind: KindFormatError, Err: errFactory.Wrap(errors.ErrLogFormat, err)}
	}

	ev, err := NewEvent(used, licensed, normalizeSpace(m[1]))
	if err != nil {
		kind := KindFormatError
		if errors.KindOf(err) == errors.KindData {
			kind = KindDataError
		}
		return Match{Kind: kind, Err: err}
	}
	ev.Line = line

	return Match{Kind: KindMatched, Event: ev}
}

func lastLine(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

// syslog pads single-digit days with a second space
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
