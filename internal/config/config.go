package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/bwcheck/internal/check"
	"codeberg.org/mutker/bwcheck/internal/errors"
	"codeberg.org/mutker/bwcheck/internal/journal"
	"codeberg.org/mutker/bwcheck/internal/logger"
	"codeberg.org/mutker/bwcheck/internal/transport"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix  = "BWCHECK"
	DefaultLogLevel   = "warning"
	DefaultCommand    = "grep -i 'Bandwidth utilization is' /var/log/ltm | tail -n 1"
	DefaultJournalDSN = "/var/lib/bwcheck/journal.db"

	configName = "bwcheck"
	configType = "toml"
)

type Config struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	Username          string        `mapstructure:"username"`
	Password          string        `mapstructure:"password"`
	IdentityFile      string        `mapstructure:"identity_file"`
	KnownHosts        string        `mapstructure:"known_hosts"`
	Command           string        `mapstructure:"command"`
	NoMatchExitCodes  []int         `mapstructure:"no_match_exit_codes"`
	Warning           int           `mapstructure:"warning"`
	Critical          int           `mapstructure:"critical"`
	AlertAge          int           `mapstructure:"alert_age"`
	NoAlertAge        int           `mapstructure:"no_alert_age"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	Timeout           time.Duration `mapstructure:"timeout"`
	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval"`
	LogLevel          string        `mapstructure:"log_level"`
	Journal           JournalConfig `mapstructure:"journal"`
	Textfile          string        `mapstructure:"textfile"`
	Lock              bool          `mapstructure:"lock"`
}

type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Driver  string `mapstructure:"driver"`
	DSN     string `mapstructure:"dsn"`
}

// Flags returns the command line flag set. Keys match the config file.
func Flags() *pflag.FlagSet {
	d := check.DefaultThresholds()
	fs := pflag.NewFlagSet(configName, pflag.ContinueOnError)
	fs.SortFlags = false

	fs.StringP("host", "H", "", "Appliance host name or address")
	fs.IntP("port", "p", 22, "SSH port")
	fs.StringP("username", "u", "", "SSH user name")
	fs.String("password", "", "SSH password, also used as key passphrase")
	fs.StringP("identity-file", "i", "", "SSH private key file")
	fs.String("known-hosts", "", "known_hosts file used to verify the host key")
	fs.String("command", DefaultCommand, "Remote command printing the last overutilization line")
	fs.IntSlice("no-match-exit-codes", []int{1}, "Remote exit codes meaning no line matched")
	fs.IntP("warning", "w", d.Warning, "Warning threshold in percent of licensed bandwidth")
	fs.IntP("critical", "c", d.Critical, "Critical threshold in percent of licensed bandwidth")
	fs.Int("alert-age", d.AlertAge, "Minutes an event keeps alerting")
	fs.Int("no-alert-age", d.NoAlertAge, "Minutes after which an event is no longer reported")
	fs.Duration("connect-timeout", 10*time.Second, "SSH connect timeout")
	fs.DurationP("timeout", "t", 30*time.Second, "Overall session timeout")
	fs.Duration("keepalive-interval", 5*time.Second, "Interval between SSH keepalive probes, 0 disables")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.Bool("journal", false, "Record every check in the journal")
	fs.String("journal-driver", "sqlite", "Journal driver (sqlite, postgres)")
	fs.String("journal-dsn", DefaultJournalDSN, "Journal database path or DSN")
	fs.String("textfile", "", "Write metrics to this node_exporter textfile")
	fs.Bool("lock", false, "Refuse to run while another check of the same host is running")
	fs.String("config", "", "Config file")

	return fs
}

// Load parses args, reads the optional config file and environment, and
// validates the result. On a validation error the parsed Config is still
// returned so the caller can report with its thresholds.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{
		envPrefix:   DefaultEnvPrefix,
		searchPaths: []string{"/etc"},
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	fs := Flags()
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, errFactory.Wrap(errors.ErrInvalidArgument, err)
	}

	v := viper.New()
	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := bindFlags(v, fs); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	if err := readConfigFile(v, fs, o); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	return cfg, cfg.Validate()
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	nested := map[string]string{
		"journal":        "journal.enabled",
		"journal-driver": "journal.driver",
		"journal-dsn":    "journal.dsn",
	}

	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Name == "config" {
			return
		}
		key, ok := nested[f.Name]
		if !ok {
			key = strings.ReplaceAll(f.Name, "-", "_")
		}
		err = v.BindPFlag(key, f)
	})
	return err
}

func readConfigFile(v *viper.Viper, fs *pflag.FlagSet, o *options) error {
	errFactory := errors.New()

	path := o.configPath
	if f := fs.Lookup("config"); f != nil && f.Changed {
		path = f.Value.String()
	} else if env := os.Getenv(o.envPrefix + "_CONFIG"); env != "" && path == "" {
		path = env
	}

	v.SetConfigType(configType)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		for _, p := range o.searchPaths {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return errFactory.Wrap(errors.ErrReadConfig, err)
	}

	return nil
}

// Validate checks the configuration before any network activity
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return newValidationError(errors.ErrInvalidLogLevel, "log_level", c.LogLevel, "must be one of debug, info, warning, error")
	}

	if err := c.Thresholds().Validate(); err != nil {
		return err
	}

	if c.Host == "" {
		return newValidationError(errors.ErrMissingConfig, "host", c.Host, "is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return newValidationError(errors.ErrInvalidConfig, "port", c.Port, "must be between 1 and 65535")
	}
	if c.Username == "" {
		return newValidationError(errors.ErrMissingConfig, "username", c.Username, fmt.Sprintf("is required (set %s_USERNAME)", DefaultEnvPrefix))
	}
	if c.Password == "" && c.IdentityFile == "" {
		return newValidationError(errors.ErrMissingConfig, "password", "", "password or identity_file is required")
	}
	if strings.TrimSpace(c.Command) == "" {
		return newValidationError(errors.ErrMissingConfig, "command", c.Command, "is required")
	}
	if c.ConnectTimeout <= 0 {
		return newValidationError(errors.ErrInvalidConfig, "connect_timeout", c.ConnectTimeout, "must be positive")
	}
	if c.Timeout <= 0 {
		return newValidationError(errors.ErrInvalidConfig, "timeout", c.Timeout, "must be positive")
	}
	if c.KeepaliveInterval < 0 {
		return newValidationError(errors.ErrInvalidConfig, "keepalive_interval", c.KeepaliveInterval, "must not be negative")
	}

	if c.Journal.Enabled {
		switch strings.ToLower(c.Journal.Driver) {
		case "sqlite", "sqlite3", "postgres", "postgresql":
		default:
			return newValidationError(errors.ErrInvalidConfig, "journal.driver", c.Journal.Driver, "must be sqlite or postgres")
		}
		if c.Journal.DSN == "" {
			return newValidationError(errors.ErrMissingConfig, "journal.dsn", c.Journal.DSN, "is required when the journal is enabled")
		}
	}

	return nil
}

// Thresholds returns the classification thresholds
func (c *Config) Thresholds() check.Thresholds {
	return check.Thresholds{
		Warning:    c.Warning,
		Critical:   c.Critical,
		AlertAge:   c.AlertAge,
		NoAlertAge: c.NoAlertAge,
	}
}

// Transport returns the SSH session settings
func (c *Config) Transport() transport.Config {
	return transport.Config{
		Host: c.Host,
		Port: c.Port,
		Credentials: transport.Credentials{
			Username:     c.Username,
			Password:     c.Password,
			IdentityFile: c.IdentityFile,
		},
		KnownHostsFile:    c.KnownHosts,
		Command:           c.Command,
		NoMatchExitCodes:  c.NoMatchExitCodes,
		ConnectTimeout:    c.ConnectTimeout,
		Timeout:           c.Timeout,
		KeepaliveInterval: c.KeepaliveInterval,
	}
}

// JournalSettings returns the journal settings
func (c *Config) JournalSettings() journal.Config {
	return journal.Config{
		Enabled: c.Journal.Enabled,
		Driver:  c.Journal.Driver,
		DSN:     c.Journal.DSN,
	}
}
