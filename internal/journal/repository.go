package journal

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	"codeberg.org/mutker/bwcheck/internal/errors"
	"codeberg.org/mutker/bwcheck/internal/logger"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db      *sql.DB
	dialect dialect
	logger  logger.Logger
	cfg     Config
}

func NewRepository(ctx context.Context, cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DSN == "" {
		return nil, errFactory.New(ErrInvalidDSN)
	}

	d, err := dialectFor(cfg.driver())
	if err != nil {
		return nil, err
	}

	dsn := cfg.DSN
	if d.name == DriverSQLite {
		if dsn, err = prepareSQLite(cfg.DSN); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(d.sqlDriver, dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "connect",
			Error: err.Error(),
		})
	}

	// Validate if schema is current, with backup if needed
	if err := ValidateAndUpdateSchema(ctx, db, d, cfg, log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Debug().
		Str("driver", d.name).
		Int("schema_version", SchemaVersion).
		Msg("Journal repository initialized")

	return &repository{
		db:      db,
		dialect: d,
		logger:  log,
		cfg:     cfg,
	}, nil
}

// prepareSQLite creates the parent directory of a file database and adds
// the connection pragmas unless the DSN already carries options.
func prepareSQLite(dsn string) (string, error) {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return dsn, nil
	}

	if err := os.MkdirAll(filepath.Dir(dsn), defaultDirPerm); err != nil {
		return "", errors.New().WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  dsn,
			Error: err.Error(),
		})
	}

	if strings.Contains(dsn, "?") {
		return dsn, nil
	}
	return dsn + "?_journal=WAL&_busy_timeout=5000", nil
}

func (r *repository) Insert(ctx context.Context, entry *Entry) error {
	errFactory := errors.New()

	values := []interface{}{
		entry.RunID.String(),
		entry.CheckedAt.UTC().Unix(),
		entry.Host,
		entry.Status,
		entry.GraphPercent,
		entry.UsedMbps,
		entry.LicensedMbps,
		entry.AgeMinutes,
		entry.ErrorCode,
		entry.Message,
	}

	if _, err := r.db.ExecContext(ctx, r.dialect.rebind(insertCheckSQL), values...); err != nil {
		r.logger.Debug().Err(err).Msg("Failed to execute insert")
		return errFactory.Wrap(ErrRecord, err)
	}

	return nil
}

func (r *repository) Close() error {
	// Checkpoint WAL before closing
	if r.dialect.name == DriverSQLite {
		if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			r.logger.Debug().Err(err).Msg("Failed to checkpoint WAL")
		}
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Debug().Msg("Journal repository closed")

	return nil
}
