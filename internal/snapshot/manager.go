// Package snapshot publishes the scraped program corpus to object storage
// as a single zstd tar bundle and keeps server instances in sync with it.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/garyellow/itmo-advisor-go/internal/logger"
	"github.com/garyellow/itmo-advisor-go/internal/r2client"
)

// ErrNotFound indicates no bundle exists in the bucket.
var ErrNotFound = errors.New("snapshot: not found")

// ErrLocked is returned by WithLock when another process holds the lock.
var ErrLocked = errors.New("snapshot: ingestion lock held by another process")

// ErrLockLost cancels the WithLock callback when a renewal finds the lock
// taken over.
var ErrLockLost = errors.New("snapshot: ingestion lock lost")

// Store is the object storage the bundle lives in. *r2client.Client
// implements it.
type Store interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	Download(ctx context.Context, key string) (io.ReadCloser, string, error)
	HeadObject(ctx context.Context, key string) (string, error)
}

// Locker is a cross-process mutex. *r2client.DistributedLock implements it.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Renew(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Config holds snapshot manager configuration.
type Config struct {
	Key      string // object key, e.g. "snapshots/programs.tar.zst"
	MaxBytes int64  // unpack limit, 0 means DefaultMaxBytes
}

// Manager uploads and downloads the corpus bundle.
type Manager struct {
	store  Store
	config Config
	logger *logger.Logger

	mu          sync.RWMutex
	currentETag string

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New creates a new snapshot manager.
func New(store Store, cfg Config, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.New("info")
	}
	return &Manager{
		store:  store,
		config: cfg,
		logger: log.WithModule("snapshot"),
	}
}

// Upload packs the program files in dir and uploads them. It returns the
// new ETag and the number of files in the bundle.
func (m *Manager) Upload(ctx context.Context, dir string) (string, int, error) {
	var buf bytes.Buffer
	n, err := Pack(&buf, dir)
	if err != nil {
		return "", 0, fmt.Errorf("pack %s: %w", dir, err)
	}
	if n == 0 {
		return "", 0, fmt.Errorf("pack %s: no program files", dir)
	}

	etag, err := m.store.Upload(ctx, m.config.Key, bytes.NewReader(buf.Bytes()), "application/zstd")
	if err != nil {
		return "", 0, fmt.Errorf("upload snapshot: %w", err)
	}
	m.SetCurrentETag(etag)

	m.logger.WithField("key", m.config.Key).
		WithField("files", n).
		WithField("bytes", buf.Len()).
		Info("Snapshot uploaded")
	return etag, n, nil
}

// Download fetches the bundle and unpacks it into dir. It returns the ETag
// and the number of files written, or ErrNotFound.
func (m *Manager) Download(ctx context.Context, dir string) (string, int, error) {
	body, etag, err := m.store.Download(ctx, m.config.Key)
	if err != nil {
		if errors.Is(err, r2client.ErrNotFound) {
			return "", 0, ErrNotFound
		}
		return "", 0, fmt.Errorf("download snapshot: %w", err)
	}
	defer func() { _ = body.Close() }()

	n, err := Unpack(body, dir, m.config.MaxBytes)
	if err != nil {
		return "", n, fmt.Errorf("unpack snapshot: %w", err)
	}
	m.SetCurrentETag(etag)

	m.logger.WithField("key", m.config.Key).
		WithField("files", n).
		WithField("etag", etag).
		Info("Snapshot downloaded")
	return etag, n, nil
}

// Changed reports whether the remote bundle differs from the one last
// uploaded or downloaded.
func (m *Manager) Changed(ctx context.Context) (bool, error) {
	remote, err := m.store.HeadObject(ctx, m.config.Key)
	if err != nil {
		if errors.Is(err, r2client.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return remote != m.CurrentETag(), nil
}

// StartPolling checks for a newer bundle every interval. A new bundle is
// unpacked into dir and onUpdate is called; its error is logged.
func (m *Manager) StartPolling(ctx context.Context, dir string, interval time.Duration, onUpdate func(context.Context) error) {
	pollCtx, cancel := context.WithCancel(ctx)
	m.pollCancel = cancel
	m.pollDone = make(chan struct{})

	go func() {
		defer close(m.pollDone)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-pollCtx.Done():
				m.logger.Info("Snapshot polling stopped")
				return
			case <-ticker.C:
				m.pollOnce(pollCtx, dir, onUpdate)
			}
		}
	}()

	m.logger.WithField("interval", interval.String()).
		WithField("key", m.config.Key).
		Info("Snapshot polling started")
}

func (m *Manager) pollOnce(ctx context.Context, dir string, onUpdate func(context.Context) error) {
	changed, err := m.Changed(ctx)
	if err != nil {
		m.logger.WithError(err).Warn("Snapshot poll: head object failed")
		return
	}
	if !changed {
		return
	}

	old := m.CurrentETag()
	etag, _, err := m.Download(ctx, dir)
	if err != nil {
		m.logger.WithError(err).Error("Snapshot poll: download failed")
		return
	}
	m.logger.WithField("old_etag", old).WithField("new_etag", etag).Info("New snapshot applied")

	if onUpdate != nil {
		if err := onUpdate(ctx); err != nil {
			m.logger.WithError(err).Error("Snapshot poll: update callback failed")
		}
	}
}

// StopPolling stops the background polling goroutine.
func (m *Manager) StopPolling() {
	if m.pollCancel != nil {
		m.pollCancel()
		<-m.pollDone
		m.pollCancel = nil
	}
}

// CurrentETag returns the ETag of the bundle last transferred.
func (m *Manager) CurrentETag() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentETag
}

// SetCurrentETag records the ETag of the bundle the local data matches.
func (m *Manager) SetCurrentETag(etag string) {
	m.mu.Lock()
	m.currentETag = etag
	m.mu.Unlock()
}

// WithLock runs fn while holding lock, renewing it every renewEvery. It
// returns ErrLocked when the lock is taken. If a renewal reports the lock
// lost, fn's context is cancelled with ErrLockLost as cause.
func WithLock(ctx context.Context, lock Locker, renewEvery time.Duration, fn func(context.Context) error) (err error) {
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !acquired {
		return ErrLocked
	}
	defer func() {
		// Release even when ctx is done.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if rerr := lock.Release(releaseCtx); rerr != nil && err == nil {
			err = fmt.Errorf("release lock: %w", rerr)
		}
	}()

	fnCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Go(func() { keepLock(fnCtx, lock, renewEvery, done, cancel) })

	err = fn(fnCtx)
	close(done)
	wg.Wait()

	if cause := context.Cause(fnCtx); errors.Is(cause, ErrLockLost) {
		return errors.Join(ErrLockLost, err)
	}
	return err
}

// keepLock renews lock until done closes. Transient renewal errors are
// retried on the next tick; the TTL leaves room for a few misses.
func keepLock(ctx context.Context, lock Locker, every time.Duration, done <-chan struct{}, cancel context.CancelCauseFunc) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			held, err := lock.Renew(ctx)
			if err != nil {
				continue
			}
			if !held {
				cancel(ErrLockLost)
				return
			}
		}
	}
}
