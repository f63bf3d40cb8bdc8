package journal

import (
	"strings"

	"codeberg.org/mutker/bwcheck/internal/errors"
)

const (
	// File system permissions and paths
	defaultDirPerm = 0o755
	defaultDSN     = "/var/lib/bwcheck/journal.db"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Enabled bool
	Driver  string
	DSN     string
}

func DefaultConfig() Config {
	return Config{
		Driver:  DriverSQLite,
		DSN:     defaultDSN,
		Enabled: false, // Disabled by default
	}
}

// driver returns the canonical driver name
func (c Config) driver() string {
	switch strings.ToLower(c.Driver) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite
	case "postgres", "postgresql":
		return DriverPostgres
	default:
		return c.Driver
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate when the journal is enabled
	if !c.Enabled {
		return nil
	}
	if c.DSN == "" {
		return errFactory.New(ErrInvalidDSN)
	}
	switch c.driver() {
	case DriverSQLite, DriverPostgres:
	default:
		return errFactory.WithData(ErrInvalidDriver, c.Driver)
	}
	return nil
}
