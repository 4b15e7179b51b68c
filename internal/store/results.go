// Package store holds the current results snapshot and reloads it from the
// feed file on demand.
package store

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"time"

	"equiscore/internal/feed"
	"equiscore/internal/logging"

	"github.com/avast/retry-go/v4"
	"github.com/zeebo/blake3"
)

// Digest is the BLAKE3-256 hash of the raw feed bytes.
type Digest [32]byte

// String returns the hex form, shortened for logs.
func (d Digest) String() string {
	return hex.EncodeToString(d[:8])
}

// Snapshot is an immutable view of the parsed feed. Callers must not modify
// the Competitions slice.
type Snapshot struct {
	Competitions []feed.Competition
	Version      uint64
	LoadedAt     time.Time
	Digest       Digest
}

// Results owns the feed path and the latest good snapshot.
type Results struct {
	path  string
	flags feed.FlagLookup

	attempts   uint
	retryDelay time.Duration
	readFile   func(string) ([]byte, error)

	reloadMu sync.Mutex // serializes Reload
	mu       sync.RWMutex
	current  Snapshot
	lastErr  error
}

// Option configures Results.
type Option func(*Results)

// WithRetry sets how many times a parse is attempted and the delay between
// attempts. A provider rewriting the file in place can leave it half written
// for a few milliseconds.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(r *Results) {
		if attempts < 1 {
			attempts = 1
		}
		r.attempts = uint(attempts)
		r.retryDelay = delay
	}
}

// New creates a store for the feed at path. Nothing is read until Load.
func New(path string, flags feed.FlagLookup, opts ...Option) *Results {
	r := &Results{
		path:       path,
		flags:      flags,
		attempts:   3,
		retryDelay: 100 * time.Millisecond,
		readFile:   os.ReadFile,
		current:    Snapshot{Competitions: []feed.Competition{}},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Path returns the feed path this store reads.
func (r *Results) Path() string {
	return r.path
}

// Load performs the initial read. It is Reload with the result logged as
// the startup snapshot.
func (r *Results) Load(ctx context.Context) error {
	if _, err := r.Reload(ctx); err != nil {
		return err
	}
	snap := r.Snapshot()
	logging.Store("loaded %s: %d competitions (digest %s)", r.path, len(snap.Competitions), snap.Digest)
	return nil
}

// Reload re-reads the feed. changed is false when the file content is
// byte-identical to the current snapshot. On error the previous snapshot is
// kept.
func (r *Results) Reload(ctx context.Context) (changed bool, err error) {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	var (
		competitions []feed.Competition
		digest       Digest
		unchanged    bool
	)

	err = retry.Do(
		func() error {
			data, err := r.readFile(r.path)
			if err != nil {
				return fmt.Errorf("read feed: %w", err)
			}

			digest = blake3.Sum256(data)
			if r.hasDigest(digest) {
				unchanged = true
				return nil
			}

			competitions, err = feed.Parse(bytes.NewReader(data), r.flags)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(r.attempts),
		retry.Delay(r.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logging.Get(logging.CategoryStore).Debug("reload attempt %d failed: %v", n+1, err)
		}),
	)
	if err != nil {
		r.mu.Lock()
		r.lastErr = err
		r.mu.Unlock()
		return false, fmt.Errorf("reload %s: %w", r.path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastErr = nil
	if unchanged {
		return false, nil
	}

	r.current = Snapshot{
		Competitions: competitions,
		Version:      r.current.Version + 1,
		LoadedAt:     time.Now(),
		Digest:       digest,
	}
	logging.Get(logging.CategoryStore).Debug("snapshot v%d: %d competitions", r.current.Version, len(competitions))
	return true, nil
}

func (r *Results) hasDigest(d Digest) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.Version > 0 && r.current.Digest == d
}

// Snapshot returns the current snapshot.
func (r *Results) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// LastError returns the error of the most recent failed reload, or nil if
// the last reload succeeded.
func (r *Results) LastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}
