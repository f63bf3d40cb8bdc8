package transport_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"codeberg.org/mutker/bwcheck/internal/errors"
	"codeberg.org/mutker/bwcheck/internal/logger"
	"codeberg.org/mutker/bwcheck/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const eventLine = "Oct 19 10:40:07 bigip1 warning tmm[1234]: 01010045:4: Bandwidth utilization is 1070 Mbps, exceeded 75% of Licensed 1000 Mbps.\n"

type handler func(cmd string) (stdout string, status uint32)

type testServer struct {
	host   string
	port   int
	signer ssh.Signer
}

func newSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	return signer
}

func startServer(t *testing.T, h handler) *testServer {
	t.Helper()

	signer := newSigner(t)
	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == "admin" && string(pass) == "secret" {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go serveConn(nc, cfg, h)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return &testServer{host: addr.IP.String(), port: addr.Port, signer: signer}
}

func serveConn(nc net.Conn, cfg *ssh.ServerConfig, h handler) {
	defer nc.Close()

	sconn, chans, reqs, err := ssh.NewServerConn(nc, cfg)
	if err != nil {
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		ch, chReqs, err := newCh.Accept()
		if err != nil {
			return
		}
		go func() {
			for req := range chReqs {
				if req.Type != "exec" {
					if req.WantReply {
						_ = req.Reply(false, nil)
					}
					continue
				}
				var payload struct{ Command string }
				if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
					_ = req.Reply(false, nil)
					continue
				}
				_ = req.Reply(true, nil)

				out, status := h(payload.Command)
				_, _ = io.WriteString(ch, out)
				_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
				ch.Close()
			}
		}()
	}
}

func (s *testServer) config() transport.Config {
	return transport.Config{
		Host: s.host,
		Port: s.port,
		Credentials: transport.Credentials{
			Username: "admin",
			Password: "secret",
		},
		Command:           "grep -i 'Bandwidth utilization is' /var/log/ltm | tail -n 1",
		NoMatchExitCodes:  []int{1},
		ConnectTimeout:    2 * time.Second,
		Timeout:           5 * time.Second,
		KeepaliveInterval: time.Second,
	}
}

func fetch(t *testing.T, cfg transport.Config) (string, error) {
	t.Helper()
	f, err := transport.New(cfg, logger.New())
	require.NoError(t, err)
	return f.Fetch(context.Background())
}

func TestFetch(t *testing.T) {
	cmds := make(chan string, 1)
	srv := startServer(t, func(cmd string) (string, uint32) {
		cmds <- cmd
		return eventLine, 0
	})

	out, err := fetch(t, srv.config())
	require.NoError(t, err)
	assert.Equal(t, eventLine, out)
	assert.Equal(t, "grep -i 'Bandwidth utilization is' /var/log/ltm | tail -n 1", <-cmds)
}

func TestFetchNoMatchExitCode(t *testing.T) {
	srv := startServer(t, func(string) (string, uint32) { return "", 1 })

	out, err := fetch(t, srv.config())
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestFetchOtherExitCodeFails(t *testing.T) {
	srv := startServer(t, func(string) (string, uint32) { return "", 2 })

	_, err := fetch(t, srv.config())
	require.Error(t, err)
	assert.Equal(t, errors.ErrTransport, errors.CodeOf(err))
	assert.Equal(t, errors.KindTransport, errors.KindOf(err))
	assert.Contains(t, err.Error(), "exit status 2")
}

func TestFetchCustomNoMatchExitCodes(t *testing.T) {
	srv := startServer(t, func(string) (string, uint32) { return "", 2 })

	cfg := srv.config()
	cfg.NoMatchExitCodes = []int{1, 2}
	out, err := fetch(t, cfg)
	require.NoError(t, err)
	assert.Empty(t, out)

	srv = startServer(t, func(string) (string, uint32) { return "", 1 })
	cfg = srv.config()
	cfg.NoMatchExitCodes = nil
	_, err = fetch(t, cfg)
	require.Error(t, err)
	assert.Equal(t, errors.ErrTransport, errors.CodeOf(err))
}

func TestFetchAuthFailure(t *testing.T) {
	srv := startServer(t, func(string) (string, uint32) { return eventLine, 0 })

	cfg := srv.config()
	cfg.Credentials.Password = "wrong"
	_, err := fetch(t, cfg)
	require.Error(t, err)
	assert.Equal(t, errors.ErrTransport, errors.CodeOf(err))
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	srv := startServer(t, func(string) (string, uint32) {
		<-release
		return "", 0
	})

	cfg := srv.config()
	cfg.Timeout = 200 * time.Millisecond
	start := time.Now()
	_, err := fetch(t, cfg)
	require.Error(t, err)
	assert.Equal(t, errors.ErrTimeout, errors.CodeOf(err))
	assert.Equal(t, errors.KindTransport, errors.KindOf(err))
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestFetchCancelled(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	started := make(chan struct{}, 1)
	srv := startServer(t, func(string) (string, uint32) {
		started <- struct{}{}
		<-release
		return "", 0
	})

	f, err := transport.New(srv.config(), logger.New())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err = f.Fetch(ctx)
	require.Error(t, err)
	assert.Equal(t, errors.ErrInterrupted, errors.CodeOf(err))
	assert.Equal(t, errors.KindTransport, errors.KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchCancelledBeforeDial(t *testing.T) {
	srv := startServer(t, func(string) (string, uint32) { return eventLine, 0 })

	f, err := transport.New(srv.config(), logger.New())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = f.Fetch(ctx)
	require.Error(t, err)
	assert.Equal(t, errors.ErrInterrupted, errors.CodeOf(err))
}

func TestFetchConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	_, err = fetch(t, transport.Config{
		Host:           "127.0.0.1",
		Port:           port,
		Credentials:    transport.Credentials{Username: "admin", Password: "secret"},
		Command:        "true",
		ConnectTimeout: time.Second,
	})
	require.Error(t, err)
	assert.Equal(t, errors.KindTransport, errors.KindOf(err))
}

func TestFetchKnownHosts(t *testing.T) {
	srv := startServer(t, func(string) (string, uint32) { return eventLine, 0 })
	addr := net.JoinHostPort(srv.host, strconv.Itoa(srv.port))
	dir := t.TempDir()

	good := filepath.Join(dir, "known_hosts")
	line := knownhosts.Line([]string{knownhosts.Normalize(addr)}, srv.signer.PublicKey())
	require.NoError(t, os.WriteFile(good, []byte(line+"\n"), 0o600))

	cfg := srv.config()
	cfg.KnownHostsFile = good
	out, err := fetch(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, eventLine, out)

	bad := filepath.Join(dir, "known_hosts_other")
	line = knownhosts.Line([]string{knownhosts.Normalize(addr)}, newSigner(t).PublicKey())
	require.NoError(t, os.WriteFile(bad, []byte(line+"\n"), 0o600))

	cfg.KnownHostsFile = bad
	_, err = fetch(t, cfg)
	require.Error(t, err)
	assert.Equal(t, errors.ErrTransport, errors.CodeOf(err))
}

func TestNewValidation(t *testing.T) {
	base := transport.Config{
		Host:        "fw01",
		Command:     "true",
		Credentials: transport.Credentials{Username: "admin", Password: "secret"},
	}

	cfg := base
	cfg.Host = ""
	_, err := transport.New(cfg, logger.New())
	require.Error(t, err)
	assert.Equal(t, errors.KindConfig, errors.KindOf(err))

	cfg = base
	cfg.Credentials.Password = ""
	_, err = transport.New(cfg, logger.New())
	require.Error(t, err)
	assert.Equal(t, errors.ErrMissingConfig, errors.CodeOf(err))

	cfg = base
	cfg.Credentials.IdentityFile = filepath.Join(t.TempDir(), "missing")
	_, err = transport.New(cfg, logger.New())
	require.Error(t, err)
	assert.Equal(t, errors.KindConfig, errors.KindOf(err))

	cfg = base
	cfg.KnownHostsFile = filepath.Join(t.TempDir(), "missing")
	_, err = transport.New(cfg, logger.New())
	require.Error(t, err)
	assert.Equal(t, errors.KindConfig, errors.KindOf(err))
}

func TestNewWithIdentityFile(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))

	_, err = transport.New(transport.Config{
		Host:        "fw01",
		Command:     "true",
		Credentials: transport.Credentials{Username: "admin", IdentityFile: path},
	}, logger.New())
	require.NoError(t, err)
}
