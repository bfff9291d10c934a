package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/AronBks/blockchain-mensajes-dapp/internal/ledger"
	"github.com/AronBks/blockchain-mensajes-dapp/internal/wallet"
)

// Session is the bound pair of active identity and network-scoped ledger
// handle. It is replaced wholesale on every identity or network change.
// Ledger is nil when the current network has no known deployment.
type Session struct {
	Identity   string
	NetworkID  string
	Ledger     ledger.Client
	Generation uint64
}

// Bound reports whether the session can serve reads and writes.
func (s Session) Bound() bool {
	return s.Identity != "" && s.Ledger != nil
}

// Dependent is a component that follows the session lifecycle: the log cache
// and the submission pipeline. SessionUnbound must leave the dependent inert;
// a late network response after it must not resurrect cleared state.
type Dependent interface {
	SessionBound(Session)
	SessionUnbound()
}

// ClientFactory builds a ledger handle for a contract deployment address.
type ClientFactory func(contractAddr string) ledger.Client

// Binder owns the single live Session. It resolves the active identity and
// network against the wallet provider, maps the network to a contract
// deployment, and fans bind/unbind transitions out to dependents.
type Binder struct {
	provider  wallet.Provider
	networks  map[string]string
	newClient ClientFactory
	logger    *slog.Logger

	mu         sync.Mutex
	session    Session
	generation uint64
	dependents []Dependent
}

func NewBinder(provider wallet.Provider, networks map[string]string, newClient ClientFactory, logger *slog.Logger) *Binder {
	return &Binder{
		provider:  provider,
		networks:  networks,
		newClient: newClient,
		logger:    logger,
	}
}

// Register adds a dependent. Must be called before Initialize/Run.
func (b *Binder) Register(d Dependent) {
	b.mu.Lock()
	b.dependents = append(b.dependents, d)
	b.mu.Unlock()
}

// Session returns a copy of the current session.
func (b *Binder) Session() Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session
}

// Initialize resolves the wallet state and binds a fresh session. A failure
// is reported exactly once to the caller; the binder never retries on its own.
func (b *Binder) Initialize(ctx context.Context) error {
	accounts, err := b.provider.Accounts(ctx)
	if err != nil {
		b.teardown()
		return NoWallet(err)
	}
	return b.bind(ctx, accounts)
}

// Run consumes wallet change notifications until ctx is cancelled. Each event
// replaces the session wholesale; a failed rebind is logged once and left for
// the next change event.
func (b *Binder) Run(ctx context.Context) {
	sub := b.provider.Subscribe()
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			b.teardown()
			return
		case ev, ok := <-sub.Events():
			if !ok {
				b.teardown()
				return
			}
			switch ev.Kind {
			case wallet.EventAccountsChanged:
				if err := b.bind(ctx, ev.Accounts); err != nil {
					b.logger.Warn("session rebind failed", slog.String("error", err.Error()))
				}
			case wallet.EventNetworkChanged:
				// Cached handles are invalid cross-network: full reload.
				if err := b.Initialize(ctx); err != nil {
					b.logger.Warn("session reload failed", slog.String("error", err.Error()))
				}
			}
		}
	}
}

func (b *Binder) bind(ctx context.Context, accounts []string) error {
	if len(accounts) == 0 {
		b.teardown()
		return nil
	}
	identity := accounts[0]

	networkID, err := b.provider.NetworkID(ctx)
	if err != nil {
		b.teardown()
		return NoWallet(err)
	}

	contractAddr, ok := b.networks[networkID]
	if !ok {
		// Identity stays resolved, but no ledger handle exists on this
		// network, so dependents must stop polling and submitting.
		b.mu.Lock()
		b.generation++
		b.session = Session{Identity: identity, NetworkID: networkID, Generation: b.generation}
		deps := b.snapshotDependents()
		b.mu.Unlock()
		for _, d := range deps {
			d.SessionUnbound()
		}
		return UnsupportedNetwork(networkID)
	}

	client := b.newClient(contractAddr)
	b.mu.Lock()
	b.generation++
	sess := Session{Identity: identity, NetworkID: networkID, Ledger: client, Generation: b.generation}
	b.session = sess
	deps := b.snapshotDependents()
	b.mu.Unlock()

	b.logger.Info("session bound",
		slog.String("identity", AbbreviateAccount(identity)),
		slog.String("network_id", networkID),
		slog.String("contract", contractAddr),
	)
	for _, d := range deps {
		d.SessionBound(sess)
	}
	return nil
}

func (b *Binder) teardown() {
	b.mu.Lock()
	wasBound := b.session.Identity != ""
	b.generation++
	b.session = Session{Generation: b.generation}
	deps := b.snapshotDependents()
	b.mu.Unlock()

	if wasBound {
		b.logger.Info("session unbound")
	}
	for _, d := range deps {
		d.SessionUnbound()
	}
}

func (b *Binder) snapshotDependents() []Dependent {
	out := make([]Dependent, len(b.dependents))
	copy(out, b.dependents)
	return out
}

// AbbreviateAccount shortens an address for display: 0x1234...abcd.
func AbbreviateAccount(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
