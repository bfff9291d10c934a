package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/AronBks/blockchain-mensajes-dapp/internal/ledger"
	"github.com/AronBks/blockchain-mensajes-dapp/internal/pinning"
)

// FilePayload is an optional attachment to an append.
type FilePayload struct {
	Name string
	Data []byte
}

// SubmissionReceipt records the outcome of one completed write for the
// optional archive.
type SubmissionReceipt struct {
	IntentID  string
	Kind      string // "append" | "confirm"
	Identity  string
	Content   string
	FileCID   string
	Position  int64 // confirm only
	TxHash    string
	CreatedAt time.Time
}

// Submitter executes the multi-step write flow: optional upload, ledger
// write, settle delay, forced refresh. Only one submission (append or
// confirm) is in flight per session at a time, gated by the busy flag.
// Every path, success or failure, releases the flag.
type Submitter struct {
	cache    *LogCache
	uploader pinning.Uploader
	archive  Archiver
	logger   *slog.Logger

	// settle is the grace period between a successful write and the forced
	// refresh. It is a heuristic, not an acknowledgment wait; tests set zero.
	settle time.Duration

	busy atomic.Bool

	mu      sync.Mutex
	session Session
	bound   bool
}

func NewSubmitter(cache *LogCache, uploader pinning.Uploader, archive Archiver, settle time.Duration, logger *slog.Logger) *Submitter {
	return &Submitter{
		cache:    cache,
		uploader: uploader,
		archive:  archive,
		settle:   settle,
		logger:   logger,
	}
}

func (s *Submitter) SessionBound(sess Session) {
	s.mu.Lock()
	s.session = sess
	s.bound = true
	s.mu.Unlock()
}

func (s *Submitter) SessionUnbound() {
	s.mu.Lock()
	s.session = Session{}
	s.bound = false
	s.mu.Unlock()
}

// Busy reports whether a submission is currently in flight. Callers use it
// to gate new requests.
func (s *Submitter) Busy() bool {
	return s.busy.Load()
}

func (s *Submitter) currentSession() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session, s.bound
}

// Append validates and submits a new entry: optional pinning upload, then the
// ledger append call, then a settle delay and a forced refresh so the new
// entry becomes visible on the next read. No speculative local entry is ever
// inserted; the remote log stays the sole source of truth.
func (s *Submitter) Append(ctx context.Context, content string, file *FilePayload) (ledger.TxResult, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return ledger.TxResult{}, Busy()
	}
	defer s.busy.Store(false)

	sess, bound := s.currentSession()
	if !bound || sess.Ledger == nil {
		return ledger.TxResult{}, NoActiveIdentity()
	}
	if strings.TrimSpace(content) == "" {
		return ledger.TxResult{}, Validation("content must not be empty")
	}

	intentID := uuid.New().String()
	fileCID := ""
	if file != nil {
		cid, err := s.uploader.Upload(ctx, file.Data, file.Name)
		if err != nil {
			// No ledger write happens without the content identifier.
			return ledger.TxResult{}, Upload(err)
		}
		fileCID = cid
		s.logger.Info("file pinned",
			slog.String("intent_id", intentID),
			slog.String("cid", cid),
			slog.String("filename", file.Name),
		)
	}

	tx, err := sess.Ledger.Append(ctx, sess.Identity, content, fileCID)
	if err != nil {
		return ledger.TxResult{}, Write("ledger append rejected", err)
	}
	s.logger.Info("entry appended",
		slog.String("intent_id", intentID),
		slog.String("tx_hash", tx.TxHash),
		slog.String("identity", AbbreviateAccount(sess.Identity)),
	)

	s.recordReceipt(ctx, SubmissionReceipt{
		IntentID:  intentID,
		Kind:      "append",
		Identity:  sess.Identity,
		Content:   content,
		FileCID:   fileCID,
		TxHash:    tx.TxHash,
		CreatedAt: time.Now().UTC(),
	})
	s.settleAndRefresh(ctx, sess)
	return tx, nil
}

// Confirm transitions the entry at position from Pending to Confirmed. The
// ledger is authoritative; the snapshot check here only avoids calls for
// obviously stale positions.
func (s *Submitter) Confirm(ctx context.Context, position int64) (ledger.TxResult, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return ledger.TxResult{}, Busy()
	}
	defer s.busy.Store(false)

	sess, bound := s.currentSession()
	if !bound || sess.Ledger == nil {
		return ledger.TxResult{}, NoActiveIdentity()
	}
	entry, ok := s.cache.Snapshot().At(position)
	if !ok {
		return ledger.TxResult{}, Validation("no entry at that position")
	}
	if entry.State == ledger.StateConfirmed {
		return ledger.TxResult{}, Validation("entry is already confirmed")
	}

	tx, err := sess.Ledger.Confirm(ctx, sess.Identity, position)
	if err != nil {
		return ledger.TxResult{}, Write("ledger confirm rejected", err)
	}
	s.logger.Info("entry confirmed",
		slog.Int64("position", position),
		slog.String("tx_hash", tx.TxHash),
	)

	s.recordReceipt(ctx, SubmissionReceipt{
		IntentID:  uuid.New().String(),
		Kind:      "confirm",
		Identity:  sess.Identity,
		Position:  position,
		TxHash:    tx.TxHash,
		CreatedAt: time.Now().UTC(),
	})
	s.settleAndRefresh(ctx, sess)
	return tx, nil
}

// settleAndRefresh waits the settle delay, then forces a cache refresh if the
// session that issued the write is still the live one. A write completing
// after teardown must not trigger reads for a session that no longer exists.
func (s *Submitter) settleAndRefresh(ctx context.Context, issued Session) {
	if s.settle > 0 {
		timer := time.NewTimer(s.settle)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
	current, bound := s.currentSession()
	if !bound || current.Generation != issued.Generation {
		return
	}
	if err := s.cache.RefreshNow(ctx); err != nil {
		s.logger.Warn("post-write refresh failed", slog.String("error", err.Error()))
	}
}

func (s *Submitter) recordReceipt(ctx context.Context, receipt SubmissionReceipt) {
	if s.archive == nil {
		return
	}
	if err := s.archive.RecordSubmission(ctx, receipt); err != nil {
		s.logger.Warn("archive receipt failed",
			slog.String("intent_id", receipt.IntentID),
			slog.String("error", err.Error()),
		)
	}
}
