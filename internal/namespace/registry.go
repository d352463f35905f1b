package namespace

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Definition is the free-form metadata record attached to a namespace. Role
// definitions additionally carry the claim field schema and the issuer
// policy: either an explicit DID set or a designated issuer role whose
// holders may issue claims of this type.
type Definition struct {
	DisplayName string         `json:"displayName,omitempty"`
	Description string         `json:"description,omitempty"`
	FieldSchema map[string]any `json:"fieldSchema,omitempty"`
	IssuerDIDs  []string       `json:"issuerDids,omitempty"`
	IssuerRole  string         `json:"issuerRole,omitempty"`
}

// Registry is the ledger-side namespace registry capability. Mutations are
// submitted as transactions by the implementation; this package never sees
// gas or nonce handling.
type Registry interface {
	// OwnerOf resolves the current owner; the zero address means the node
	// does not exist or is unowned. Last read wins, no cache invariant.
	OwnerOf(ctx context.Context, path Path) (common.Address, error)

	Create(ctx context.Context, parent Path, label string) error
	SetName(ctx context.Context, path Path) error
	SetDefinition(ctx context.Context, path Path, def Definition) error
	TransferOwner(ctx context.Context, path Path, newOwner common.Address) error
	Delete(ctx context.Context, path Path) error

	// SubdomainsCreatedUnder scans the historical subdomain-created event
	// log for paths below the given node. Deleted nodes still appear.
	SubdomainsCreatedUnder(ctx context.Context, path Path) ([]Path, error)
}
