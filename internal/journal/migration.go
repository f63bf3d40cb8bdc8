package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/mutker/bwcheck/internal/errors"
	"codeberg.org/mutker/bwcheck/internal/logger"
)

const backupDirName = "backups"

// backupPath places backups next to the database file
func backupPath(dsn string, version int, now time.Time) string {
	path := dsn
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return filepath.Join(filepath.Dir(path), backupDirName,
		fmt.Sprintf("journal_v%d_%s.db", version, now.UTC().Format("20060102T150405Z")))
}

func backupDatabase(ctx context.Context, db *sql.DB, cfg Config, version int, log logger.Logger) (string, error) {
	errFactory := errors.New()

	target := backupPath(cfg.DSN, version, time.Now())

	// Ensure backup directory exists
	if err := os.MkdirAll(filepath.Dir(target), defaultDirPerm); err != nil {
		return "", errFactory.WithData(ErrSchemaMigrationFailed, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_backup_dir",
			Path:  filepath.Dir(target),
			Error: err.Error(),
		})
	}

	// VACUUM INTO requires no active transaction
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", target); err != nil {
		return "", errFactory.WithData(ErrSchemaMigrationFailed, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_backup",
			Path:  target,
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", target).
		Int("version", version).
		Msg("Journal backup created")

	return target, nil
}

// ValidateAndUpdateSchema checks the schema version and creates the schema
// for a new database. On a version mismatch a SQLite journal is backed up
// and recreated; a PostgreSQL journal is left untouched and an error is
// returned.
func ValidateAndUpdateSchema(ctx context.Context, db *sql.DB, d dialect, cfg Config, log logger.Logger) error {
	errFactory := errors.New()

	version, err := GetSchemaVersion(ctx, db, d)
	if err != nil {
		return errFactory.Wrap(ErrSchemaValidationFailed, err)
	}

	log.Debug().
		Int("version", version).
		Bool("init_db", version == 0).
		Msg("Current journal schema version")

	switch {
	case version == SchemaVersion:
		return nil
	case version == 0:
		return InitSchema(ctx, db, d, log)
	case d.name != DriverSQLite:
		return errFactory.WithData(ErrSchemaMigrationFailed, struct {
			Phase    string
			Found    int
			Expected int
		}{
			Phase:    "version_mismatch",
			Found:    version,
			Expected: SchemaVersion,
		})
	}

	if _, err := backupDatabase(ctx, db, cfg, version, log); err != nil {
		return err
	}
	if err := dropTables(ctx, db, log); err != nil {
		return err
	}
	return InitSchema(ctx, db, d, log)
}

func dropTables(ctx context.Context, db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errFactory.Wrap(ErrSchemaMigrationFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback drop tables")
			}
		}
	}()

	for _, table := range journalTables {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return errFactory.WithData(ErrSchemaMigrationFailed, struct {
				Phase string
				Table string
				Error string
			}{
				Phase: "drop_table",
				Table: table,
				Error: err.Error(),
			})
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaMigrationFailed, err)
	}
	committed = true

	return nil
}
