package transport

import (
	"fmt"

	"codeberg.org/mutker/bwcheck/internal/errors"
)

const (
	// Setup Errors
	ErrInvalidConfig   = errors.ErrInvalidConfig
	ErrMissingAuthData = errors.ErrMissingConfig
	ErrReadIdentity    = errors.ErrorCode("transport_read_identity_failed")
	ErrReadKnownHosts  = errors.ErrorCode("transport_read_known_hosts_failed")

	// Session Errors
	ErrTransport   = errors.ErrTransport
	ErrTimeout     = errors.ErrTimeout
	ErrInterrupted = errors.ErrInterrupted
)

func init() {
	errors.RegisterKind(ErrReadIdentity, errors.KindConfig)
	errors.RegisterKind(ErrReadKnownHosts, errors.KindConfig)
}

// exitData is attached to errors for commands that exited unexpectedly
type exitData struct {
	ExitStatus int
	Stderr     string
}

func (d exitData) String() string {
	if d.Stderr == "" {
		return fmt.Sprintf("exit status %d", d.ExitStatus)
	}
	return fmt.Sprintf("exit status %d: %s", d.ExitStatus, d.Stderr)
}
