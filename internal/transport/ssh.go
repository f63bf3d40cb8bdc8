package transport

import (
	"bytes"
	"context"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/bwcheck/internal/errors"
	"codeberg.org/mutker/bwcheck/internal/logger"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	defaultPort      = 22
	keepaliveRequest = "keepalive@openssh.com"
	maxStderr        = 512
)

type sshClient struct {
	cfg       Config
	clientCfg *ssh.ClientConfig
	log       logger.Logger
}

// New validates cfg and prepares an SSH fetcher. No connection is made
// until Fetch is called.
func New(cfg Config, log logger.Logger) (Fetcher, error) {
	errFactory := errors.New()

	if cfg.Host == "" {
		return nil, errFactory.WithData(ErrInvalidConfig, "host is required")
	}
	if cfg.Command == "" {
		return nil, errFactory.WithData(ErrInvalidConfig, "command is required")
	}
	if cfg.Credentials.Username == "" {
		return nil, errFactory.WithData(ErrMissingAuthData, "username is required")
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}

	auth, err := authMethods(cfg.Credentials)
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := hostKeyCallback(cfg.KnownHostsFile, log)
	if err != nil {
		return nil, err
	}

	return &sshClient{
		cfg: cfg,
		clientCfg: &ssh.ClientConfig{
			User:            cfg.Credentials.Username,
			Auth:            auth,
			HostKeyCallback: hostKeyCallback,
			Timeout:         cfg.ConnectTimeout,
		},
		log: log,
	}, nil
}

func authMethods(creds Credentials) ([]ssh.AuthMethod, error) {
	errFactory := errors.New()
	var methods []ssh.AuthMethod

	if creds.IdentityFile != "" {
		key, err := os.ReadFile(creds.IdentityFile)
		if err != nil {
			return nil, errFactory.Wrap(ErrReadIdentity, err)
		}

		signer, err := ssh.ParsePrivateKey(key)
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) && creds.Password != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(creds.Password))
		}
		if err != nil {
			return nil, errFactory.Wrap(ErrReadIdentity, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if creds.Password != "" {
		password := creds.Password
		methods = append(methods,
			ssh.Password(password),
			// many appliances only offer keyboard-interactive
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}

	if len(methods) == 0 {
		return nil, errFactory.WithData(ErrMissingAuthData, "password or identity file is required")
	}

	return methods, nil
}

func hostKeyCallback(knownHostsFile string, log logger.Logger) (ssh.HostKeyCallback, error) {
	if knownHostsFile == "" {
		log.Warn().Msg("No known_hosts file configured, host key will not be verified")
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec
	}

	callback, err := knownhosts.New(knownHostsFile)
	if err != nil {
		return nil, errors.New().Wrap(ErrReadKnownHosts, err)
	}
	return callback, nil
}

func (c *sshClient) Fetch(ctx context.Context) (string, error) {
	errFactory := errors.New()

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	c.log.Debug().Str("addr", addr).Str("user", c.clientCfg.User).Msg("Connecting")

	client, err := c.dial(ctx, addr)
	if err != nil {
		if ctx.Err() != nil {
			return "", contextError(ctx)
		}
		return "", errFactory.Wrap(ErrTransport, err)
	}
	defer client.Close()

	done := make(chan struct{})
	defer close(done)
	go c.watch(ctx, client, done)

	session, err := client.NewSession()
	if err != nil {
		return "", errFactory.Wrap(ErrTransport, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	c.log.Debug().Str("command", c.cfg.Command).Msg("Running remote command")
	err = session.Run(c.cfg.Command)
	if ctx.Err() != nil {
		return "", contextError(ctx)
	}

	var exitErr *ssh.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr) && c.isNoMatch(exitErr.ExitStatus()):
		c.log.Debug().Int("exit_status", exitErr.ExitStatus()).Msg("Remote command found no matching line")
		return "", nil
	case errors.As(err, &exitErr):
		return "", errFactory.Wrap(ErrTransport, err).WithData(exitData{
			ExitStatus: exitErr.ExitStatus(),
			Stderr:     truncate(strings.TrimSpace(stderr.String()), maxStderr),
		})
	default:
		return "", errFactory.Wrap(ErrTransport, err)
	}

	c.log.Debug().Int("bytes", stdout.Len()).Msg("Remote command finished")

	return stdout.String(), nil
}

// dial connects with the connect timeout and bounds the SSH handshake by
// the session deadline.
func (c *sshClient) dial(ctx context.Context, addr string) (*ssh.Client, error) {
	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if c.cfg.ConnectTimeout > 0 {
		if hd := time.Now().Add(c.cfg.ConnectTimeout); deadline.IsZero() || hd.Before(deadline) {
			deadline = hd
		}
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, err
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, c.clientCfg)
	if err != nil {
		conn.Close()
		return nil, err
	}

	// the session itself is bounded by ctx, see watch
	if err := conn.SetDeadline(time.Time{}); err != nil {
		sshConn.Close()
		return nil, err
	}

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// watch closes the client when ctx ends or the server stops answering
// keepalive probes, which unblocks a hanging session.
func (c *sshClient) watch(ctx context.Context, client *ssh.Client, done <-chan struct{}) {
	var tick <-chan time.Time
	if c.cfg.KeepaliveInterval > 0 {
		ticker := time.NewTicker(c.cfg.KeepaliveInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			client.Close()
			return
		case <-tick:
			if _, _, err := client.SendRequest(keepaliveRequest, true, nil); err != nil {
				c.log.Warn().Err(err).Msg("Keepalive failed, closing session")
				client.Close()
				return
			}
		}
	}
}

// contextError tells a session deadline apart from a cancelled run
func contextError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.New().Wrap(ErrTimeout, ctx.Err())
	}
	return errors.New().Wrap(ErrInterrupted, ctx.Err())
}

func (c *sshClient) isNoMatch(status int) bool {
	return slices.Contains(c.cfg.NoMatchExitCodes, status)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
