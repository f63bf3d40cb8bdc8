// Package age turns a year-less syslog timestamp into minutes elapsed.
package age

import (
	"regexp"
	"strconv"
	"time"

	"codeberg.org/mutker/bwcheck/internal/errors"
)

const (
	// Entries more than this far in the future are assumed to be from last year.
	rolloverSeconds = 3600

	MinMinutes = -60
	MaxMinutes = 525600
)

var months = map[string]time.Month{
	"Jan": time.January,
	"Feb": time.February,
	"Mar": time.March,
	"Apr": time.April,
	"May": time.May,
	"Jun": time.June,
	"Jul": time.July,
	"Aug": time.August,
	"Sep": time.September,
	"Oct": time.October,
	"Nov": time.November,
	"Dec": time.December,
}

var reTimestamp = regexp.MustCompile(`^\s*([A-Za-z]{3})\s+(\d{1,2})\s+(\d{2}):(\d{2}):(\d{2})\s*$`)

// Age is the whole number of minutes since an event, never negative.
type Age int

func (a Age) Minutes() int {
	return int(a)
}

func (a Age) Duration() time.Duration {
	return time.Duration(a) * time.Minute
}

type stamp struct {
	month               time.Month
	day, hour, min, sec int
}

func parse(text string) (stamp, error) {
	errFactory := errors.New()

	m := reTimestamp.FindStringSubmatch(text)
	if m == nil {
		return stamp{}, errFactory.WithData(errors.ErrInvalidTimestamp, text)
	}

	month, ok := months[m[1]]
	if !ok {
		return stamp{}, errFactory.WithData(errors.ErrUnknownMonth, m[1])
	}

	var st stamp
	st.month = month
	for i, dst := range []*int{&st.day, &st.hour, &st.min, &st.sec} {
		v, err := strconv.Atoi(m[i+2])
		if err != nil {
			return stamp{}, errFactory.Wrap(errors.ErrInvalidTimestamp, err)
		}
		*dst = v
	}

	if st.day < 1 || st.day > 31 || st.hour > 23 || st.min > 59 || st.sec > 59 {
		return stamp{}, errFactory.WithData(errors.ErrInvalidTimestamp, text)
	}

	return st, nil
}

func (st stamp) in(year int, loc *time.Location) (time.Time, bool) {
	t := time.Date(year, st.month, st.day, st.hour, st.min, st.sec, 0, loc)
	// time.Date normalises Feb 30 into March
	return t, t.Month() == st.month && t.Day() == st.day
}

// Resolve returns how many minutes before now the timestamp lies. The
// timestamp carries no year or zone: it is read in now's location and
// year, or the previous year when that would put it over an hour ahead.
func Resolve(text string, now time.Time) (Age, error) {
	errFactory := errors.New()

	st, err := parse(text)
	if err != nil {
		return 0, err
	}

	year := now.Year()
	candidate, ok := st.in(year, now.Location())
	if !ok {
		// Feb 29 read in a non-leap year can only be last year's
		year--
		if candidate, ok = st.in(year, now.Location()); !ok {
			return 0, errFactory.WithData(errors.ErrInvalidTimestamp, text)
		}
	}

	seconds := now.Unix() - candidate.Unix()
	if seconds < -rolloverSeconds && year == now.Year() {
		if candidate, ok = st.in(year-1, now.Location()); !ok {
			return 0, errFactory.WithData(errors.ErrInvalidTimestamp, text)
		}
		seconds = now.Unix() - candidate.Unix()
	}

	minutes := seconds / 60
	switch {
	case minutes < MinMinutes:
		return 0, errFactory.WithData(errors.ErrClockSkew, struct {
			Timestamp string
			Minutes   int64
		}{text, minutes})
	case minutes > MaxMinutes:
		return 0, errFactory.WithData(errors.ErrLogTooOld, struct {
			Timestamp string
			Minutes   int64
		}{text, minutes})
	case minutes < 0:
		return 0, nil
	}

	return Age(minutes), nil
}
