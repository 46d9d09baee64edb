// Package gitrepo mirrors a git repository into a local shallow clone,
// keeps it current and notifies subscribers when the tracked commit moves.
package gitrepo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// SyncFunc is called with the clone's root whenever a new commit has been
// checked out. A returned error is logged and does not stop the remaining
// callbacks.
type SyncFunc func(root string) error

// GitRepo mirrors a single repository.
type GitRepo struct {
	url      string
	branch   string
	path     string
	interval time.Duration
	logger   *slog.Logger
	onSync   []SyncFunc

	mu       sync.Mutex // serializes git commands and callbacks
	revision string

	ready    atomic.Bool
	lastSync atomic.Int64
	stop     chan struct{}
	stopOnce sync.Once
}

// Option configures a GitRepo.
type Option func(*GitRepo)

// WithBranch tracks branch instead of the remote's default branch.
func WithBranch(branch string) Option {
	return func(r *GitRepo) { r.branch = branch }
}

// New returns a mirror of url at path, refreshed every interval. Nothing
// touches the filesystem until Start.
func New(url, path string, interval time.Duration, logger *slog.Logger, opts ...Option) *GitRepo {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	r := &GitRepo{
		url:      url,
		path:     path,
		interval: interval,
		logger:   logger.With("repoURL", url),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnSync registers a callback. Register callbacks before Start.
func (r *GitRepo) OnSync(fn SyncFunc) {
	r.onSync = append(r.onSync, fn)
}

// Start clones the repository, or refreshes an existing clone, runs the
// callbacks and marks the mirror ready. With a positive interval a
// background loop keeps refreshing until Stop or ctx is done.
func (r *GitRepo) Start(ctx context.Context) error {
	if r.url == "" {
		return errors.New("gitrepo: repository URL is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(filepath.Join(r.path, ".git")); err == nil {
		r.logger.Info("reusing existing clone", "path", r.path)
		if err := r.fetch(ctx); err != nil {
			return err
		}
	} else if err := r.clone(ctx); err != nil {
		return err
	}

	if err := r.checkedOut(ctx, true); err != nil {
		return err
	}
	r.ready.Store(true)

	if r.interval > 0 {
		go r.loop(ctx)
	}
	r.logger.Info("git mirror ready", "revision", r.revision, "syncInterval", r.interval)
	return nil
}

// Ready reports whether the first checkout and callback cycle completed.
func (r *GitRepo) Ready() bool {
	return r.ready.Load()
}

// LastSync returns when the mirror last refreshed successfully.
func (r *GitRepo) LastSync() time.Time {
	ns := r.lastSync.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Revision returns the commit currently checked out, or "" before Start.
func (r *GitRepo) Revision() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revision
}

// Path returns the clone's root directory.
func (r *GitRepo) Path() string {
	return r.path
}

// Stop ends the background loop. It may be called more than once.
func (r *GitRepo) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Sync refreshes the clone now. Callbacks run only if the commit moved.
func (r *GitRepo) Sync(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.fetch(ctx); err != nil {
		return err
	}
	return r.checkedOut(ctx, false)
}

func (r *GitRepo) clone(ctx context.Context) error {
	args := []string{"clone", "--depth=1", "--single-branch"}
	if r.branch != "" {
		args = append(args, "--branch", r.branch)
	}
	r.logger.Info("cloning repository", "branch", r.branch, "path", r.path)
	_, err := r.git(ctx, "", append(args, r.url, r.path)...)
	return err
}

// fetch moves the clone to the remote tip, discarding local history so
// force-pushed branches are followed.
func (r *GitRepo) fetch(ctx context.Context) error {
	ref := r.branch
	if ref == "" {
		ref = "HEAD"
	}
	if _, err := r.git(ctx, r.path, "fetch", "--depth=1", "origin", ref); err != nil {
		return err
	}
	_, err := r.git(ctx, r.path, "reset", "--hard", "FETCH_HEAD")
	return err
}

// checkedOut records the current commit and runs the callbacks when it
// differs from the last one seen, or always when force is set.
// Must be called under mu.
func (r *GitRepo) checkedOut(ctx context.Context, force bool) error {
	rev, err := r.git(ctx, r.path, "rev-parse", "HEAD")
	if err != nil {
		return err
	}
	r.lastSync.Store(time.Now().UnixNano())
	if rev == r.revision && !force {
		r.logger.Debug("repository unchanged", "revision", rev)
		return nil
	}

	r.logger.Info("repository updated", "from", r.revision, "to", rev)
	r.revision = rev
	for i, fn := range r.onSync {
		if err := fn(r.path); err != nil {
			r.logger.Error("sync callback failed", "callback", i, "error", err)
		}
	}
	return nil
}

func (r *GitRepo) git(ctx context.Context, dir string, args ...string) (string, error) {
	//nolint:gosec // G204: arguments come from operator configuration
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(string(out)), nil
}

func (r *GitRepo) loop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Sync(ctx); err != nil {
				r.logger.Error("refreshing repository", "error", err)
			}
		case <-r.stop:
			r.logger.Info("git mirror stopped")
			return
		case <-ctx.Done():
			r.logger.Info("git mirror stopped", "reason", context.Cause(ctx))
			return
		}
	}
}
