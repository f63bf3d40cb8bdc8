package journal

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/bwcheck/internal/errors"
	"codeberg.org/mutker/bwcheck/internal/logger"
)

const (
	SchemaVersion = 1

	insertCheckSQL = `
    INSERT INTO checks (
        run_id, checked_at, host, status,
        percent, used_mbps, licensed_mbps, age_minutes,
        error_code, message
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertVersionSQL = `
    INSERT INTO schema_versions (version, applied_at)
    VALUES (?, ?)`
)

// Executed one statement at a time
var createTablesSQL = []string{
	`CREATE TABLE IF NOT EXISTS schema_versions (
	    version     INTEGER PRIMARY KEY,
	    applied_at  TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS checks (
	    run_id         TEXT PRIMARY KEY,
	    checked_at     BIGINT NOT NULL,
	    host           TEXT NOT NULL,
	    status         TEXT NOT NULL CHECK (status IN ('OK', 'WARNING', 'CRITICAL', 'UNKNOWN')),
	    percent        DOUBLE PRECISION,
	    used_mbps      INTEGER,
	    licensed_mbps  INTEGER,
	    age_minutes    INTEGER,
	    error_code     TEXT NOT NULL,
	    message        TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS checks_host_checked_at ON checks (host, checked_at)`,
}

var journalTables = []string{"checks", "schema_versions"}

type dialect struct {
	name        string
	sqlDriver   string
	numbered    bool
	tableExists string
}

var dialects = map[string]dialect{
	DriverSQLite: {
		name:      DriverSQLite,
		sqlDriver: "sqlite3",
		tableExists: `SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )`,
	},
	DriverPostgres: {
		name:      DriverPostgres,
		sqlDriver: "pgx",
		numbered:  true,
		tableExists: `SELECT EXISTS (
            SELECT 1 FROM information_schema.tables
            WHERE table_schema = current_schema() AND table_name = ?
        )`,
	},
}

func dialectFor(name string) (dialect, error) {
	d, ok := dialects[name]
	if !ok {
		return dialect{}, errors.New().WithData(ErrInvalidDriver, name)
	}
	return d, nil
}

// rebind rewrites ? placeholders into $n for drivers that need it
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// InitSchema creates a new database schema with the current version
func InitSchema(ctx context.Context, db *sql.DB, d dialect, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating journal schema...")

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	// Track transaction state
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback transaction")
			}
		}
	}()

	for _, stmt := range createTablesSQL {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errFactory.WithData(ErrSchemaInitFailed, struct {
				Error string
				SQL   string
			}{
				Error: err.Error(),
				SQL:   stmt,
			})
		}
	}

	appliedAt := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, d.rebind(insertVersionSQL), SchemaVersion, appliedAt); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Int("version", SchemaVersion).
		Msg("Journal schema initialized")

	return nil
}

// GetSchemaVersion returns the current schema version, 0 for an empty database
func GetSchemaVersion(ctx context.Context, db *sql.DB, d dialect) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(ctx, db, d, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRowContext(ctx, `
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(ctx context.Context, db *sql.DB, d dialect, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, d.rebind(d.tableExists), tableName).Scan(&exists)
	if err != nil {
		return false, errors.New().WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}
	return exists, nil
}
