package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AronBks/blockchain-mensajes-dapp/internal/ledger"
	"github.com/AronBks/blockchain-mensajes-dapp/internal/service"
	"github.com/AronBks/blockchain-mensajes-dapp/internal/wallet"
)

const (
	testContract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	testAccount  = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
)

type memClient struct {
	mu      sync.Mutex
	entries []ledger.Entry
}

func (c *memClient) ReadAll(ctx context.Context) ([]ledger.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ledger.Entry, len(c.entries))
	copy(out, c.entries)
	return out, nil
}

func (c *memClient) Append(ctx context.Context, from, content, fileCID string) (ledger.TxResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pos := int64(len(c.entries))
	c.entries = append(c.entries, ledger.Entry{
		Position: pos, Sender: from, Content: content, FileCID: fileCID,
		State: ledger.StatePending, Timestamp: 1700000000 + pos,
	})
	return ledger.TxResult{TxHash: fmt.Sprintf("0xtx%d", pos)}, nil
}

func (c *memClient) Confirm(ctx context.Context, from string, position int64) (ledger.TxResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if position < 0 || position >= int64(len(c.entries)) {
		return ledger.TxResult{}, fmt.Errorf("position %d out of range", position)
	}
	c.entries[position].State = ledger.StateConfirmed
	return ledger.TxResult{TxHash: fmt.Sprintf("0xconfirm%d", position)}, nil
}

type staticProvider struct{}

func (staticProvider) Accounts(ctx context.Context) ([]string, error) {
	return []string{testAccount}, nil
}
func (staticProvider) NetworkID(ctx context.Context) (string, error) { return "1337", nil }
func (staticProvider) Subscribe() wallet.Subscription                { return staticSub{} }

type staticSub struct{}

func (staticSub) Events() <-chan wallet.Event { return make(chan wallet.Event) }
func (staticSub) Unsubscribe()                {}

func newTestServer(t *testing.T, seed []ledger.Entry) (*httptest.Server, *memClient) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	client := &memClient{entries: seed}

	cache := service.NewLogCache(time.Hour, nil, logger)
	submitter := service.NewSubmitter(cache, nil, nil, 0, logger)
	binder := service.NewBinder(staticProvider{}, map[string]string{"1337": testContract},
		func(string) ledger.Client { return client }, logger)
	binder.Register(cache)
	binder.Register(submitter)

	if err := binder.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize session: %v", err)
	}
	if err := cache.RefreshNow(context.Background()); err != nil {
		t.Fatalf("prime snapshot: %v", err)
	}
	t.Cleanup(cache.SessionUnbound)

	handler := NewHandler(binder, cache, submitter, "mensajesd", "test", logger)
	srv := httptest.NewServer(handler.Router())
	t.Cleanup(srv.Close)
	return srv, client
}

func seedEntries() []ledger.Entry {
	return []ledger.Entry{
		{Position: 0, Sender: testAccount, Content: "hola mundo", State: ledger.StateConfirmed, Timestamp: 1700000000},
		{Position: 1, Sender: "0x8ba1f109551bD432803012645Ac136ddd64DBA72", Content: "segundo mensaje", State: ledger.StatePending, Timestamp: 1700000100},
	}
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func TestSessionEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	var got sessionResponse
	resp := getJSON(t, srv.URL+"/v1/session", &got)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !got.Bound || got.Identity != testAccount {
		t.Errorf("session = %+v", got)
	}
	if got.Abbrev != "0x742d...f44e" {
		t.Errorf("abbrev = %q", got.Abbrev)
	}
	if got.Busy {
		t.Error("busy should be false at rest")
	}
}

func TestEntriesAndSearchEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, seedEntries())

	var snap ledger.Snapshot
	getJSON(t, srv.URL+"/v1/entries", &snap)
	if len(snap.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(snap.Entries))
	}

	var found searchResponse
	getJSON(t, srv.URL+"/v1/entries/search?q=SEGUNDO", &found)
	if len(found.Results) != 1 || found.Results[0].Position != 1 {
		t.Errorf("search results = %+v", found.Results)
	}

	var empty searchResponse
	getJSON(t, srv.URL+"/v1/entries/search?q=nomatch", &empty)
	if empty.Results == nil || len(empty.Results) != 0 {
		t.Errorf("no-match results should be an empty array, got %+v", empty.Results)
	}
}

func TestExportEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, seedEntries())

	resp, err := http.Get(srv.URL + "/v1/entries/export")
	if err != nil {
		t.Fatalf("GET export: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, service.ExportFilename) {
		t.Errorf("content disposition = %q", cd)
	}
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	lines := strings.Split(buf.String(), "\r\n")
	if lines[0] != "ID,Contenido,Estado,Timestamp,Remitente" {
		t.Errorf("header = %q", lines[0])
	}
	if len(lines) != 3 {
		t.Errorf("line count = %d, want 3", len(lines))
	}
}

func TestAppendJSON(t *testing.T) {
	srv, client := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/v1/entries", "application/json",
		strings.NewReader(`{"contenido":"nuevo mensaje"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got txResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != "submitted" || got.TxHash != "0xtx0" {
		t.Errorf("response = %+v", got)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.entries) != 1 || client.entries[0].Sender != testAccount {
		t.Errorf("ledger entries = %+v", client.entries)
	}
}

func TestAppendMultipartWithoutFile(t *testing.T) {
	srv, client := newTestServer(t, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("mensaje", "desde formulario")
	mw.Close()

	resp, err := http.Post(srv.URL+"/v1/entries", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.entries) != 1 || client.entries[0].Content != "desde formulario" {
		t.Errorf("ledger entries = %+v", client.entries)
	}
}

func TestAppendValidationError(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/v1/entries", "application/json",
		strings.NewReader(`{"contenido":"   "}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var got errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Error.Code != service.CodeValidation {
		t.Errorf("error code = %q", got.Error.Code)
	}
}

func TestAppendRejectsUnknownJSONFields(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/v1/entries", "application/json",
		strings.NewReader(`{"contenido":"x","extra":true}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestConfirmEndpoint(t *testing.T) {
	srv, client := newTestServer(t, seedEntries())

	resp, err := http.Post(srv.URL+"/v1/entries/1/confirm", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	client.mu.Lock()
	state := client.entries[1].State
	client.mu.Unlock()
	if state != ledger.StateConfirmed {
		t.Errorf("entry state = %d, want confirmed", state)
	}

	// Position outside the snapshot is rejected before any ledger call.
	resp2, err := http.Post(srv.URL+"/v1/entries/99/confirm", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp2.StatusCode)
	}

	resp3, err := http.Post(srv.URL+"/v1/entries/abc/confirm", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp3.Body.Close()
	if resp3.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for non-integer position", resp3.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, seedEntries())

	var got healthResponse
	getJSON(t, srv.URL+"/healthz", &got)
	if got.Service != "mensajesd" || !got.SessionBound || got.SnapshotLen != 2 {
		t.Errorf("health = %+v", got)
	}
}
