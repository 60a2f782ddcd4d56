package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"time"

	"agentspaces/internal/logging"
	"agentspaces/pkg/aspdiag"
)

// staleAfter is how long an advisory lock may sit before its holder's
// liveness is checked and, if dead, reclaimed.
const staleAfter = 10 * time.Minute

// LockInfo is the content written into the advisory lock file.
type LockInfo struct {
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquiredAt"`
}

// ProjectLock is a scoped, advisory whole-project (or whole-ASP_HOME,
// for project-less runs) lock with guaranteed release on all exit
// paths.
type ProjectLock struct {
	path string
}

// NewProjectLock binds a ProjectLock to a lock file path. The path is
// typically <projectPath>/.asp-lock.lock, or a global-lock.json path
// under ASP_HOME for project-less runs (open question (c) in
// DESIGN.md: same primitive, coarser scope).
func NewProjectLock(path string) *ProjectLock {
	return &ProjectLock{path: path}
}

// Acquire blocks (honoring ctx) with exponential backoff until the
// lock is obtained, reclaiming stale locks whose holder process is
// gone. Release must be called on all exit paths, including errors
// from the caller's own work — use AcquireScoped for that guarantee.
func (pl *ProjectLock) Acquire(ctx context.Context) error {
	backoff := 20 * time.Millisecond
	const maxBackoff = 2 * time.Second

	for {
		if err := pl.tryAcquire(); err == nil {
			return nil
		} else if !os.IsExist(errCause(err)) {
			return err
		}

		pl.reclaimIfStale()

		select {
		case <-ctx.Done():
			return aspdiag.Wrap(aspdiag.CodeFilesystemError, "acquire project lock: context done", ctx.Err())
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// AcquireScoped acquires the lock, runs fn, and releases the lock
// unconditionally afterward (even if fn panics or returns an error).
func (pl *ProjectLock) AcquireScoped(ctx context.Context, fn func() error) error {
	if err := pl.Acquire(ctx); err != nil {
		return err
	}
	defer func() {
		if releaseErr := pl.Release(); releaseErr != nil {
			logging.Error("failed to release project lock", "path", pl.path, "err", releaseErr)
		}
	}()
	return fn()
}

func (pl *ProjectLock) tryAcquire() error {
	hostname, _ := os.Hostname()
	info := LockInfo{PID: os.Getpid(), Hostname: hostname, AcquiredAt: time.Now().UTC()}
	data, err := json.Marshal(info)
	if err != nil {
		return aspdiag.Wrap(aspdiag.CodeFilesystemError, "marshal lock info", err)
	}

	f, err := os.OpenFile(pl.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err // callers check os.IsExist
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(pl.path)
		return aspdiag.Wrap(aspdiag.CodeFilesystemError, "write lock file", err)
	}
	return nil
}

// Release removes the lock file.
func (pl *ProjectLock) Release() error {
	if err := os.Remove(pl.path); err != nil && !os.IsNotExist(err) {
		return aspdiag.Wrap(aspdiag.CodeFilesystemError, fmt.Sprintf("remove %s", pl.path), err)
	}
	return nil
}

func (pl *ProjectLock) reclaimIfStale() {
	data, err := os.ReadFile(pl.path)
	if err != nil {
		return
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return
	}
	if time.Since(info.AcquiredAt) < staleAfter {
		return
	}
	if isProcessAlive(info.PID) {
		return
	}
	logging.Debug("reclaiming stale project lock", "path", pl.path, "heldBy", info.PID)
	_ = os.Remove(pl.path)
}

func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// errCause unwraps an *aspdiag.Error back to its underlying cause so
// os.IsExist can inspect it; non-aspdiag errors pass through.
func errCause(err error) error {
	if ae, ok := err.(*aspdiag.Error); ok && ae.Wrapped != nil {
		return ae.Wrapped
	}
	return err
}
