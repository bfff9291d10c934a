package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AronBks/blockchain-mensajes-dapp/internal/ledger"
)

// ErrNotBound is returned by RefreshNow when no session is bound. Transient
// fetch failures are swallowed and counted instead; callers only ever see
// this sentinel.
var ErrNotBound = errors.New("no ledger session bound")

// Archiver mirrors observed state into durable storage. Archive failures are
// logged and never block or fail the sync path.
type Archiver interface {
	RecordEntries(ctx context.Context, entries []ledger.Entry) error
	RecordSubmission(ctx context.Context, receipt SubmissionReceipt) error
}

// LogCache owns the authoritative log snapshot. While a session is bound it
// fetches the full entry sequence immediately and then on a fixed period,
// replacing the snapshot wholesale on success and leaving it untouched on
// failure. All fetches, scheduled or forced, are coalesced through a
// singleflight group so at most one is in flight at a time.
type LogCache struct {
	logger  *slog.Logger
	poll    time.Duration
	archive Archiver

	group singleflight.Group

	mu      sync.RWMutex
	client  ledger.Client
	bindGen uint64
	snap    ledger.Snapshot
	cancel  context.CancelFunc

	fetchFailures atomic.Uint64
}

func NewLogCache(poll time.Duration, archive Archiver, logger *slog.Logger) *LogCache {
	return &LogCache{logger: logger, poll: poll, archive: archive}
}

// SessionBound starts polling against the new session's ledger handle. Any
// previous poll loop is cancelled first and its pending result discarded.
func (c *LogCache) SessionBound(sess Session) {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.client = sess.Ledger
	c.bindGen++
	c.snap = ledger.Snapshot{}
	c.mu.Unlock()

	go c.run(ctx)
}

// SessionUnbound cancels the poll loop and clears the snapshot. A fetch
// response arriving after this point is discarded by the generation check.
func (c *LogCache) SessionUnbound() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.client = nil
	c.bindGen++
	c.snap = ledger.Snapshot{}
	c.mu.Unlock()
}

func (c *LogCache) run(ctx context.Context) {
	if err := c.refresh(ctx); err != nil && !errors.Is(err, ErrNotBound) {
		c.noteFailure(err)
	}
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.refresh(ctx); err != nil {
				if errors.Is(err, ErrNotBound) {
					return
				}
				c.noteFailure(err)
			}
		}
	}
}

// RefreshNow forces an out-of-band fetch. If a fetch is already in flight the
// call joins it and resolves when it completes rather than issuing a
// duplicate read. The returned error is transport-level and safe to ignore;
// the previous snapshot is always retained on failure.
func (c *LogCache) RefreshNow(ctx context.Context) error {
	err := c.refresh(ctx)
	if err != nil && !errors.Is(err, ErrNotBound) {
		c.noteFailure(err)
	}
	return err
}

func (c *LogCache) refresh(ctx context.Context) error {
	c.mu.RLock()
	client, gen := c.client, c.bindGen
	c.mu.RUnlock()
	if client == nil {
		return ErrNotBound
	}

	_, err, _ := c.group.Do("fetch", func() (any, error) {
		entries, err := client.ReadAll(ctx)
		if err != nil {
			return nil, err
		}
		snap := ledger.Snapshot{Entries: entries, FetchedAt: time.Now().UTC()}

		c.mu.Lock()
		if c.bindGen != gen {
			// Session changed while the read was outstanding; the result
			// belongs to a session that no longer exists.
			c.mu.Unlock()
			return nil, nil
		}
		c.snap = snap
		c.mu.Unlock()

		if c.archive != nil && len(entries) > 0 {
			if aerr := c.archive.RecordEntries(ctx, entries); aerr != nil {
				c.logger.Warn("archive mirror failed", slog.String("error", aerr.Error()))
			}
		}
		return nil, nil
	})
	return err
}

func (c *LogCache) noteFailure(err error) {
	c.fetchFailures.Add(1)
	c.logger.Warn("ledger fetch failed, keeping previous snapshot", slog.String("error", err.Error()))
}

// Snapshot returns the current snapshot. The entry slice is replaced
// wholesale by the single writer and must be treated as read-only.
func (c *LogCache) Snapshot() ledger.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// FetchFailures reports how many fetches have failed since startup.
func (c *LogCache) FetchFailures() uint64 {
	return c.fetchFailures.Load()
}
