package wallet

import "context"

// EventKind distinguishes the two notifications a wallet emits.
type EventKind string

const (
	EventAccountsChanged EventKind = "accounts_changed"
	EventNetworkChanged  EventKind = "network_changed"
)

// Event is one identity or network change notification. Accounts carries the
// new account list for accounts_changed; NetworkID the new network id for
// network_changed.
type Event struct {
	Kind      EventKind
	Accounts  []string
	NetworkID string
}

// Provider is the wallet collaborator: it injects the available identities and
// the network id, and notifies on changes. It never signs here; signing is
// delegated to whatever sits behind the contract gateway.
type Provider interface {
	Accounts(ctx context.Context) ([]string, error)
	NetworkID(ctx context.Context) (string, error)
	Subscribe() Subscription
}

// Subscription is an explicit handle on the wallet's change feed. Unsubscribe
// is guaranteed to stop delivery and close the channel, so teardown can be
// tested in isolation.
type Subscription interface {
	Events() <-chan Event
	Unsubscribe()
}
