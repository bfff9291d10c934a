package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/AronBks/blockchain-mensajes-dapp/internal/ledger"
)

// fakeLedger is an in-memory stand-in for the contract gateway. ReadAll can
// be gated to simulate a slow remote read.
type fakeLedger struct {
	mu       sync.Mutex
	entries  []ledger.Entry
	readErr  error
	writeErr error
	reads      int
	readStarts int
	appends    int
	confirms   int

	gate chan struct{} // when set, ReadAll blocks until the gate closes
}

func (f *fakeLedger) setEntries(entries []ledger.Entry) {
	f.mu.Lock()
	f.entries = entries
	f.mu.Unlock()
}

func (f *fakeLedger) ReadAll(ctx context.Context) ([]ledger.Entry, error) {
	f.mu.Lock()
	f.readStarts++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := make([]ledger.Entry, len(f.entries))
	copy(out, f.entries)
	return out, nil
}

func (f *fakeLedger) Append(ctx context.Context, from, content, fileCID string) (ledger.TxResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appends++
	if f.writeErr != nil {
		return ledger.TxResult{}, f.writeErr
	}
	pos := int64(len(f.entries))
	f.entries = append(f.entries, ledger.Entry{
		Position:  pos,
		Sender:    from,
		Content:   content,
		FileCID:   fileCID,
		State:     ledger.StatePending,
		Timestamp: 1700000000 + pos,
	})
	return ledger.TxResult{TxHash: fmt.Sprintf("0xtx%d", pos)}, nil
}

func (f *fakeLedger) Confirm(ctx context.Context, from string, position int64) (ledger.TxResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirms++
	if f.writeErr != nil {
		return ledger.TxResult{}, f.writeErr
	}
	if position < 0 || position >= int64(len(f.entries)) {
		return ledger.TxResult{}, errors.New("position out of range")
	}
	if f.entries[position].State == ledger.StateConfirmed {
		return ledger.TxResult{}, errors.New("already confirmed")
	}
	f.entries[position].State = ledger.StateConfirmed
	return ledger.TxResult{TxHash: fmt.Sprintf("0xconfirm%d", position)}, nil
}

type fakeUploader struct {
	mu      sync.Mutex
	cid     string
	err     error
	uploads int
}

func (f *fakeUploader) Upload(ctx context.Context, data []byte, filename string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	if f.err != nil {
		return "", f.err
	}
	return f.cid, nil
}

type fakeArchiver struct {
	mu       sync.Mutex
	entries  [][]ledger.Entry
	receipts []SubmissionReceipt
	err      error
}

func (f *fakeArchiver) RecordEntries(ctx context.Context, entries []ledger.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entries)
	return nil
}

func (f *fakeArchiver) RecordSubmission(ctx context.Context, receipt SubmissionReceipt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.receipts = append(f.receipts, receipt)
	return nil
}

func (f *fakeArchiver) receiptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.receipts)
}

// recorderDependent captures bind/unbind transitions from the binder.
type recorderDependent struct {
	mu      sync.Mutex
	bounds  []Session
	unbinds int
}

func (r *recorderDependent) SessionBound(s Session) {
	r.mu.Lock()
	r.bounds = append(r.bounds, s)
	r.mu.Unlock()
}

func (r *recorderDependent) SessionUnbound() {
	r.mu.Lock()
	r.unbinds++
	r.mu.Unlock()
}

func (r *recorderDependent) snapshot() ([]Session, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, len(r.bounds))
	copy(out, r.bounds)
	return out, r.unbinds
}
