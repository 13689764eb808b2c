// Package lockfile keeps two SleepAdvisor processes from sharing one state directory.
//
// The lock is an flock(2) on a file inside the state directory, so the kernel
// drops it when the process dies even if Release is never called.
package lockfile

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LockFileName is created inside the state directory.
const LockFileName = "sleepadvisor.lock"

// Lock is a held state directory lock.
type Lock struct {
	file *os.File
	path string
}

// Holder describes the process recorded in a lock file.
type Holder struct {
	PID       int
	StartedAt time.Time
}

// AcquireLock takes the exclusive lock on stateDir, creating the directory if needed.
// When another process holds it, the returned error is a *LockError.
func AcquireLock(stateDir string) (*Lock, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}
	path := filepath.Join(stateDir, LockFileName)

	// O_TRUNC would wipe the holder details before we know the lock is ours.
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		holder, _ := readHolder(path)
		file.Close()
		slog.Error("AcquireLock: state directory already locked", "lock_path", path, "holder_pid", holder.PID)
		return nil, &LockError{LockPath: path, Holder: holder, Cause: err}
	}

	if err := writeHolder(file); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to record lock holder in %s: %w", path, err)
	}

	slog.Info("AcquireLock: state directory locked", "lock_path", path, "pid", os.Getpid())
	return &Lock{file: file, path: path}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Release unlocks and removes the lock file. Calling it twice is harmless.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	var firstErr error
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		firstErr = fmt.Errorf("failed to unlock %s: %w", l.path, err)
	}
	if err := l.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close %s: %w", l.path, err)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Lock.Release: failed to remove lock file", "lock_path", l.path, "error", err)
	}
	l.file = nil
	slog.Info("Lock.Release: state directory unlocked", "lock_path", l.path)
	return firstErr
}

func writeHolder(file *os.File) error {
	if err := file.Truncate(0); err != nil {
		return err
	}
	if _, err := file.Seek(0, 0); err != nil {
		return err
	}
	content := fmt.Sprintf("pid=%d\nstarted=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if _, err := file.WriteString(content); err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		slog.Warn("writeHolder: sync failed", "error", err)
	}
	return nil
}

// readHolder parses the key=value lines written by writeHolder.
func readHolder(path string) (Holder, error) {
	f, err := os.Open(path)
	if err != nil {
		return Holder{}, err
	}
	defer f.Close()
	return parseHolder(bufio.NewScanner(f)), nil
}

func parseHolder(sc *bufio.Scanner) Holder {
	var h Holder
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			if pid, err := strconv.Atoi(value); err == nil && pid > 0 {
				h.PID = pid
			}
		case "started":
			if ts, err := time.Parse(time.RFC3339, value); err == nil {
				h.StartedAt = ts
			}
		}
	}
	return h
}

// processAlive sends signal 0 to pid.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// LockError is returned when another process holds the state directory.
type LockError struct {
	LockPath string
	Holder   Holder
	Cause    error
}

func (e *LockError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "another SleepAdvisor instance is using this state directory (lock file %s)", e.LockPath)
	switch {
	case e.Holder.PID == 0:
		b.WriteString("; holder unknown")
	case processAlive(e.Holder.PID):
		fmt.Fprintf(&b, "; held by running PID %d", e.Holder.PID)
	default:
		fmt.Fprintf(&b, "; recorded PID %d is not running, remove %s if no other instance exists", e.Holder.PID, e.LockPath)
	}
	if !e.Holder.StartedAt.IsZero() {
		fmt.Fprintf(&b, " (started %s)", e.Holder.StartedAt.Format(time.RFC3339))
	}
	return b.String()
}

func (e *LockError) Unwrap() error {
	return e.Cause
}
