package lock

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/bwcheck/internal/errors"
)

const filePrefix = "bwcheck-"

// Lock is a per-host PID file. Only one probe session per appliance runs at
// a time.
type Lock struct {
	path string
	held bool
}

// New returns the lock for host in the system temporary directory.
func New(host string) *Lock {
	return NewInDir(os.TempDir(), host)
}

// NewInDir returns the lock for host in dir.
func NewInDir(dir, host string) *Lock {
	return &Lock{path: filepath.Join(dir, filePrefix+sanitize(host)+".pid")}
}

func (l *Lock) Path() string {
	return l.path
}

// Acquire writes the current process ID to the lock file. A file left by a
// process that is no longer running is replaced; a live holder yields
// ErrAlreadyRunning.
func (l *Lock) Acquire() error {
	errFactory := errors.New()

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			_, werr := f.WriteString(strconv.Itoa(os.Getpid()))
			cerr := f.Close()
			if werr != nil {
				os.Remove(l.path)
				return errFactory.Wrap(errors.ErrInternal, werr)
			}
			if cerr != nil {
				os.Remove(l.path)
				return errFactory.Wrap(errors.ErrInternal, cerr)
			}
			l.held = true
			return nil
		}
		if !os.IsExist(err) {
			return errFactory.Wrap(errors.ErrInternal, err)
		}

		running, pid := holderRunning(l.path)
		if running {
			return errFactory.WithData(errors.ErrAlreadyRunning, struct {
				PID  int
				Path string
			}{
				PID:  pid,
				Path: l.path,
			})
		}

		// Stale file
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return errFactory.Wrap(errors.ErrInternal, err)
		}
	}

	return errFactory.WithData(errors.ErrAlreadyRunning, struct {
		Path string
	}{
		Path: l.path,
	})
}

// Release removes the lock file if this Lock created it.
func (l *Lock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}

func holderRunning(path string) (bool, int) {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return false, 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(bytes)))
	if err != nil || pid <= 0 {
		return false, 0
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, pid
	}

	err = process.Signal(syscall.Signal(0))
	// EPERM means the process exists but belongs to someone else
	return err == nil || errors.Is(err, syscall.EPERM), pid
}

func sanitize(host string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, host)
}
