package check_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"codeberg.org/mutker/bwcheck/internal/age"
	"codeberg.org/mutker/bwcheck/internal/check"
	"codeberg.org/mutker/bwcheck/internal/errors"
	"codeberg.org/mutker/bwcheck/internal/logline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func matched(t *testing.T, used, licensed int) logline.Match {
	t.Helper()
	ev, err := logline.NewEvent(used, licensed, "Oct 19 10:40:07")
	require.NoError(t, err)
	return logline.Match{Kind: logline.KindMatched, Event: ev}
}

func TestClassifyNoEvent(t *testing.T) {
	res := check.Classify(logline.Match{Kind: logline.KindNoEvent}, 0, check.DefaultThresholds())

	assert.Equal(t, check.StatusOK, res.Status)
	assert.Contains(t, res.Message, "no bandwidth overutilization history found")
	assert.Equal(t, check.GraphValue(0), res.Graph)
	assert.Nil(t, res.Event)
}

func TestClassifyScenarios(t *testing.T) {
	th := check.Thresholds{Warning: 75, Critical: 80, AlertAge: 5, NoAlertAge: 10}

	tests := []struct {
		name     string
		used     int
		age      age.Age
		status   check.Status
		graph    float64
		contains string
	}{
		{"critical in alert window", 1070, 2, check.StatusCritical, 107.00, "107.00%"},
		{"critical at alert age boundary", 1070, 5, check.StatusCritical, 107.00, "1070 of 1000 Mbps"},
		{"warning in alert window", 770, 0, check.StatusWarning, 77.00, "77.00%"},
		{"warning at exact threshold", 750, 1, check.StatusWarning, 75.00, "75.00%"},
		{"critical at exact threshold", 800, 1, check.StatusCritical, 80.00, "80.00%"},
		{"below warning in alert window", 500, 1, check.StatusOK, 50.00, "500 of 1000 Mbps"},
		{"dead zone", 1070, 7, check.StatusOK, 0, "last overutilization was 107.00% 7 min ago"},
		{"dead zone upper boundary", 1070, 10, check.StatusOK, 0, "last overutilization was 107.00%"},
		{"stale", 1070, 15, check.StatusOK, 0, "no recent overutilization"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := check.Classify(matched(t, tt.used, 1000), tt.age, th)

			assert.Equal(t, tt.status, res.Status)
			assert.True(t, res.Graph.Known)
			assert.InDelta(t, tt.graph, res.Graph.Value, 1e-9)
			assert.Contains(t, res.Message, tt.contains)
			require.NotNil(t, res.Event)
			assert.Equal(t, tt.age.Minutes(), res.AgeMinutes)
		})
	}
}

func TestClassifyCriticalInsideWindow(t *testing.T) {
	for _, th := range []check.Thresholds{
		{Warning: 75, Critical: 80, AlertAge: 5, NoAlertAge: 10},
		{Warning: 10, Critical: 20, AlertAge: 0, NoAlertAge: 1},
		{Warning: 90, Critical: 100, AlertAge: 60, NoAlertAge: 1440},
	} {
		for a := 0; a <= th.AlertAge; a++ {
			for _, used := range []int{th.Critical * 10, th.Critical*10 + 1, 1500} {
				res := check.Classify(matched(t, used, 1000), age.Age(a), th)
				assert.Equal(t, check.StatusCritical, res.Status, "thresholds %+v age %d used %d", th, a, used)
			}
		}
	}
}

func TestClassifyStaleGraphIsZero(t *testing.T) {
	th := check.DefaultThresholds()
	for _, used := range []int{0, 500, 770, 1070, 1500} {
		for _, a := range []age.Age{11, 60, 1440, age.MaxMinutes} {
			res := check.Classify(matched(t, used, 1000), a, th)
			assert.Equal(t, check.StatusOK, res.Status)
			assert.Equal(t, check.GraphValue(0), res.Graph, "used %d age %d", used, a)
		}
	}
}

func TestClassifyFormatError(t *testing.T) {
	err := errors.New().WithData(errors.ErrLogFormat, "garbage")
	res := check.Classify(logline.Match{Kind: logline.KindFormatError, Err: err}, 0, check.DefaultThresholds())

	assert.Equal(t, check.StatusUnknown, res.Status)
	assert.False(t, res.Graph.Known)
	assert.Contains(t, res.Message, "garbage")
}

func TestClassifyDataError(t *testing.T) {
	m := logline.Parse("Oct 19 10:40:07 bigip1 warning tmm[1234]: 01010045:4: Bandwidth utilization is 10 Mbps, exceeded 75% of Licensed 0 Mbps.")
	require.Equal(t, logline.KindDataError, m.Kind)

	res := check.Classify(m, 0, check.DefaultThresholds())
	assert.Equal(t, check.StatusUnknown, res.Status)
	assert.False(t, res.Graph.Known)
	assert.Equal(t, errors.KindData, errors.KindOf(res.Err))
}

func TestClassifyIsIdempotent(t *testing.T) {
	m := matched(t, 1070, 1000)
	th := check.DefaultThresholds()

	first := check.Classify(m, 3, th)
	second := check.Classify(m, 3, th)
	assert.Equal(t, first, second)
}

func TestThresholdsValidate(t *testing.T) {
	require.NoError(t, check.DefaultThresholds().Validate())

	tests := map[string]check.Thresholds{
		"warning above critical":    {Warning: 80, Critical: 75, AlertAge: 5, NoAlertAge: 10},
		"warning equals critical":   {Warning: 80, Critical: 80, AlertAge: 5, NoAlertAge: 10},
		"alert age above no-alert":  {Warning: 75, Critical: 80, AlertAge: 10, NoAlertAge: 5},
		"alert age equals no-alert": {Warning: 75, Critical: 80, AlertAge: 5, NoAlertAge: 5},
		"negative alert age":        {Warning: 75, Critical: 80, AlertAge: -1, NoAlertAge: 5},
	}
	for name, th := range tests {
		t.Run(name, func(t *testing.T) {
			err := th.Validate()
			require.Error(t, err)
			assert.Equal(t, errors.ErrInvalidThresholds, errors.CodeOf(err))
			assert.Equal(t, errors.KindConfig, errors.KindOf(err))
		})
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "OK", check.StatusOK.String())
	assert.Equal(t, "WARNING", check.StatusWarning.String())
	assert.Equal(t, "CRITICAL", check.StatusCritical.String())
	assert.Equal(t, "UNKNOWN", check.StatusUnknown.String())
}

func fetchText(text string) check.Fetcher {
	return check.FetcherFunc(func(context.Context) (string, error) {
		return text, nil
	})
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, time.October, 19, 10, 42, 7, 0, time.Local)
	th := check.Thresholds{Warning: 75, Critical: 80, AlertAge: 5, NoAlertAge: 10}
	line := func(ts string, used, licensed int) string {
		return ts + " bigip1 warning tmm[1234]: 01010045:4: Bandwidth utilization is " +
			itoa(used) + " Mbps, exceeded 75% of Licensed " + itoa(licensed) + " Mbps.\n"
	}

	t.Run("no matching line", func(t *testing.T) {
		res := check.Evaluate(context.Background(), fetchText(""), th, now)
		assert.Equal(t, check.StatusOK, res.Status)
		assert.Equal(t, check.GraphValue(0), res.Graph)
	})

	t.Run("recent critical", func(t *testing.T) {
		res := check.Evaluate(context.Background(), fetchText(line("Oct 19 10:40:07", 1070, 1000)), th, now)
		assert.Equal(t, check.StatusCritical, res.Status)
		assert.InDelta(t, 107.00, res.Graph.Value, 1e-9)
		assert.Equal(t, 2, res.AgeMinutes)
	})

	t.Run("dead zone", func(t *testing.T) {
		res := check.Evaluate(context.Background(), fetchText(line("Oct 19 10:35:07", 1070, 1000)), th, now)
		assert.Equal(t, check.StatusOK, res.Status)
		assert.Equal(t, check.GraphValue(0), res.Graph)
		assert.Contains(t, res.Message, "107.00%")
	})

	t.Run("stale", func(t *testing.T) {
		res := check.Evaluate(context.Background(), fetchText(line("Oct 19 10:27:07", 1070, 1000)), th, now)
		assert.Equal(t, check.StatusOK, res.Status)
		assert.Equal(t, check.GraphValue(0), res.Graph)
		assert.Contains(t, res.Message, "no recent overutilization")
	})

	t.Run("zero licensed", func(t *testing.T) {
		res := check.Evaluate(context.Background(), fetchText(line("Oct 19 10:40:07", 10, 0)), th, now)
		assert.Equal(t, check.StatusUnknown, res.Status)
		assert.False(t, res.Graph.Known)
		assert.Equal(t, errors.ErrZeroLicensed, errors.CodeOf(res.Err))
	})

	t.Run("unknown month", func(t *testing.T) {
		res := check.Evaluate(context.Background(), fetchText(line("Okt 19 10:40:07", 1070, 1000)), th, now)
		assert.Equal(t, check.StatusUnknown, res.Status)
		assert.Equal(t, errors.ErrUnknownMonth, errors.CodeOf(res.Err))
		require.NotNil(t, res.Event)
	})

	t.Run("transport failure", func(t *testing.T) {
		fetch := check.FetcherFunc(func(context.Context) (string, error) {
			return "", errors.New().Wrap(errors.ErrTransport, context.DeadlineExceeded)
		})
		res := check.Evaluate(context.Background(), fetch, th, now)
		assert.Equal(t, check.StatusUnknown, res.Status)
		assert.Equal(t, errors.KindTransport, errors.KindOf(res.Err))
		assert.Contains(t, res.Message, "deadline exceeded")
	})

	t.Run("invalid thresholds never fetch", func(t *testing.T) {
		fetched := false
		fetch := check.FetcherFunc(func(context.Context) (string, error) {
			fetched = true
			return "", nil
		})
		bad := check.Thresholds{Warning: 80, Critical: 75, AlertAge: 5, NoAlertAge: 10}
		res := check.Evaluate(context.Background(), fetch, bad, now)
		assert.Equal(t, check.StatusUnknown, res.Status)
		assert.Equal(t, errors.KindConfig, errors.KindOf(res.Err))
		assert.False(t, fetched)
	})
}

func itoa(i int) string {
	return fmt.Sprint(i)
}
