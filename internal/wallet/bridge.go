package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"
)

// Bridge is an HTTP-backed Provider. It reads the wallet daemon's state
// endpoint and, when Run is active, polls it to synthesize accounts_changed
// and network_changed events for subscribers.
type Bridge struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.Mutex
	subs    map[*bridgeSub]struct{}
	last    bridgeState
	primed  bool
	stopped bool
}

type bridgeState struct {
	Accounts  []string `json:"accounts"`
	NetworkID string   `json:"network_id"`
}

func NewBridge(baseURL string, timeout time.Duration, logger *slog.Logger) *Bridge {
	return &Bridge{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		subs:       make(map[*bridgeSub]struct{}),
	}
}

func (b *Bridge) Accounts(ctx context.Context) ([]string, error) {
	st, err := b.fetchState(ctx)
	if err != nil {
		return nil, err
	}
	return st.Accounts, nil
}

func (b *Bridge) NetworkID(ctx context.Context) (string, error) {
	st, err := b.fetchState(ctx)
	if err != nil {
		return "", err
	}
	return st.NetworkID, nil
}

func (b *Bridge) Subscribe() Subscription {
	sub := &bridgeSub{bridge: b, ch: make(chan Event, 16)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Run polls the wallet state until ctx is cancelled, emitting change events to
// all live subscriptions. Poll failures are logged and retried on the next
// tick; the last known state is kept so a flapping bridge does not spam
// spurious change events.
func (b *Bridge) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	b.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			b.closeAll()
			return
		case <-ticker.C:
			b.poll(ctx)
		}
	}
}

func (b *Bridge) poll(ctx context.Context) {
	st, err := b.fetchState(ctx)
	if err != nil {
		b.logger.Warn("wallet state poll failed", slog.String("error", err.Error()))
		return
	}
	b.mu.Lock()
	prev, primed := b.last, b.primed
	b.last, b.primed = st, true
	b.mu.Unlock()
	if !primed {
		return
	}
	if prev.NetworkID != st.NetworkID {
		b.broadcast(Event{Kind: EventNetworkChanged, NetworkID: st.NetworkID})
	}
	if !slices.Equal(prev.Accounts, st.Accounts) {
		b.broadcast(Event{Kind: EventAccountsChanged, Accounts: st.Accounts})
	}
}

func (b *Bridge) broadcast(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			b.logger.Warn("wallet event dropped, slow subscriber", slog.String("kind", string(ev.Kind)))
		}
	}
}

func (b *Bridge) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.stopped = true
	for sub := range b.subs {
		close(sub.ch)
		delete(b.subs, sub)
	}
}

func (b *Bridge) fetchState(ctx context.Context) (bridgeState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/v1/state", nil)
	if err != nil {
		return bridgeState{}, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return bridgeState{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return bridgeState{}, fmt.Errorf("wallet bridge: status=%d body=%s", resp.StatusCode, string(body))
	}
	var st bridgeState
	dec := json.NewDecoder(io.LimitReader(resp.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&st); err != nil {
		return bridgeState{}, fmt.Errorf("wallet bridge: decode: %w", err)
	}
	return st, nil
}

type bridgeSub struct {
	bridge *Bridge
	ch     chan Event
	once   sync.Once
}

func (s *bridgeSub) Events() <-chan Event {
	return s.ch
}

func (s *bridgeSub) Unsubscribe() {
	s.once.Do(func() {
		s.bridge.mu.Lock()
		if _, ok := s.bridge.subs[s]; ok {
			delete(s.bridge.subs, s)
			close(s.ch)
		}
		s.bridge.mu.Unlock()
	})
}
