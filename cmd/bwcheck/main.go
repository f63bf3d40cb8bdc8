package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/bwcheck/internal/age"
	"codeberg.org/mutker/bwcheck/internal/check"
	"codeberg.org/mutker/bwcheck/internal/config"
	"codeberg.org/mutker/bwcheck/internal/errors"
	"codeberg.org/mutker/bwcheck/internal/exporter"
	"codeberg.org/mutker/bwcheck/internal/journal"
	"codeberg.org/mutker/bwcheck/internal/lock"
	"codeberg.org/mutker/bwcheck/internal/logger"
	"codeberg.org/mutker/bwcheck/internal/report"
	"codeberg.org/mutker/bwcheck/internal/transport"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
)

const journalTimeout = 5 * time.Second

// clock and newFetcher are replaced in tests
var clock = time.Now

var newFetcher = func(cfg transport.Config, log logger.Logger) (check.Fetcher, error) {
	f, err := transport.New(cfg, log)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout io.Writer) int {
	cfg, err := config.Load(args)
	if errors.Is(err, pflag.ErrHelp) {
		return report.ExitCode(check.StatusUnknown)
	}

	thresholds := check.DefaultThresholds()
	if cfg != nil {
		thresholds = cfg.Thresholds()
	}
	if err != nil {
		return emit(stdout, check.Unknown(err), thresholds)
	}

	// Already validated by config.Load
	level, _ := logger.ParseLevel(cfg.LogLevel)
	logger.Init(level, logger.IsService())

	runID := uuid.New()
	log := logger.New().With("run_id", runID.String()).With("host", cfg.Host)
	log.Debug().Msg("Config loaded")

	if cfg.Lock {
		l := lock.New(cfg.Host)
		if err := l.Acquire(); err != nil {
			log.Debug().Err(err).Str("path", l.Path()).Msg("Lock held by another run")
			return emit(stdout, check.Unknown(err), thresholds)
		}
		defer func() {
			if err := l.Release(); err != nil {
				log.Warn().Err(err).Msg("Failed to release lock")
			}
		}()
	}

	// Read once for the whole run
	now := clock()

	r := evaluate(ctx, cfg, thresholds, now, log)
	code := emit(stdout, r, thresholds)

	recordJournal(cfg, runID, now, r, log)
	if cfg.Textfile != "" {
		if err := exporter.WriteTextfile(cfg.Textfile, cfg.Host, r, thresholds); err != nil {
			log.Warn().Err(err).Str("path", cfg.Textfile).Msg("Failed to write textfile")
		}
	}

	return code
}

func evaluate(ctx context.Context, cfg *config.Config, t check.Thresholds, now time.Time, log logger.Logger) check.Result {
	f, err := newFetcher(cfg.Transport(), log)
	if err != nil {
		return check.Unknown(err)
	}

	traced := check.FetcherFunc(func(ctx context.Context) (string, error) {
		text, err := f.Fetch(ctx)
		log.Debug().Str("text", text).Err(err).Msg("Fetched log line")
		return text, err
	})

	r := check.Evaluate(ctx, traced, t, now)

	ev := log.Debug().
		Str("status", r.Status.String()).
		Bool("graph_known", r.Graph.Known).
		Float64("graph", r.Graph.Value)
	if r.Event != nil {
		ev = ev.Str("line", r.Event.Line).
			Int("used_mbps", r.Event.UsedMbps).
			Int("licensed_mbps", r.Event.LicensedMbps).
			Str("timestamp", r.Event.Timestamp).
			Dur("age", age.Age(r.AgeMinutes).Duration())
	}
	ev.Msg("Check evaluated")

	if r.Err != nil {
		var appErr errors.Error
		if errors.As(r.Err, &appErr) {
			log.ErrorWithCode(appErr).Str("kind", errors.KindOf(r.Err).String()).Msg("Check failed")
		} else {
			log.Error().Err(r.Err).Msg("Check failed")
		}
	}

	return r
}

func emit(w io.Writer, r check.Result, t check.Thresholds) int {
	if _, err := report.Write(w, r, t); err != nil {
		logger.Error().Err(err).Msg("Failed to write status line")
	}
	return report.ExitCode(r.Status)
}

// recordJournal never changes the outcome of the run
func recordJournal(cfg *config.Config, runID uuid.UUID, now time.Time, r check.Result, log logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()

	rec, err := journal.NewService(ctx, cfg.JournalSettings(), log)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to open journal")
		return
	}
	defer func() {
		if err := rec.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close journal")
		}
	}()

	if err := rec.Record(ctx, newEntry(cfg.Host, runID, now, r)); err != nil {
		log.Warn().Err(err).Msg("Failed to record check")
	}
}

func newEntry(host string, runID uuid.UUID, now time.Time, r check.Result) *journal.Entry {
	entry := &journal.Entry{
		RunID:     runID,
		CheckedAt: now,
		Host:      host,
		Status:    r.Status.String(),
		Message:   report.Message(r),
	}

	if r.Graph.Known {
		v := r.Graph.Value
		entry.GraphPercent = &v
	}
	if r.Event != nil {
		used, licensed := r.Event.UsedMbps, r.Event.LicensedMbps
		entry.UsedMbps = &used
		entry.LicensedMbps = &licensed
		if r.Err == nil {
			age := r.AgeMinutes
			entry.AgeMinutes = &age
		}
	}
	if r.Err != nil {
		entry.ErrorCode = string(errors.CodeOf(r.Err))
	}

	return entry
}
