package signer

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind identifies a wallet reconnection event.
type EventKind string

const (
	EventAccountChanged EventKind = "account_changed"
	EventNetworkChanged EventKind = "network_changed"
	EventSessionUpdate  EventKind = "session_update"
	EventDisconnected   EventKind = "disconnected"
)

// Event is emitted by a wallet backend whenever the connected account or
// network changes. It carries the session value that is current after the
// event; consumers replace their session wholesale instead of mutating
// fields in place.
type Event struct {
	Kind    EventKind
	Session Session
}

// Session is an immutable snapshot of a connected wallet. A reconnect event
// produces a new Session value.
type Session struct {
	Address common.Address
	ChainID uint64
}

// Receipt is the minimal transaction outcome the namespace workflows need.
type Receipt struct {
	TxHash  common.Hash
	Success bool
}

// Signer is the single capability contract every wallet backend implements
// (browser extension, relay session, custodial, multisig). Components depend
// on this interface, never on a concrete backend.
type Signer interface {
	Address() common.Address
	ChainID() uint64

	// SignRaw signs the given bytes according to the backend's own signing
	// convention. Backends differ in whether they apply the personal-message
	// prefix or hash the input before signing; callers that need a specific
	// digest must reconcile candidates themselves (see internal/identity).
	SignRaw(ctx context.Context, data []byte) ([]byte, error)

	SendTransaction(ctx context.Context, to common.Address, data []byte, value *big.Int) (Receipt, error)

	// BlockNumber reports the current ledger height seen by the backend's
	// provider, used as a freshness marker in derived tokens.
	BlockNumber(ctx context.Context) (uint64, error)

	// Events streams reconnect events for the lifetime of the backend
	// connection. The channel is closed when the backend shuts down.
	Events() <-chan Event
}
