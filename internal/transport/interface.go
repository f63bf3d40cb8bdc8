package transport

import (
	"context"
	"time"
)

// Fetcher runs the retrieval command on the appliance and returns its
// standard output. A command that exits with one of the configured
// no-match codes yields an empty string and no error.
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// Credentials used to authenticate the SSH session
type Credentials struct {
	Username     string
	Password     string
	IdentityFile string
}

// Config describes the remote session
type Config struct {
	Host              string
	Port              int
	Credentials       Credentials
	KnownHostsFile    string
	Command           string
	NoMatchExitCodes  []int
	ConnectTimeout    time.Duration
	Timeout           time.Duration
	KeepaliveInterval time.Duration
}
