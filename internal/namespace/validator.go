package namespace

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// OwnerResolver is the read-side lookup the validator needs.
type OwnerResolver interface {
	OwnerOf(ctx context.Context, path Path) (common.Address, error)
}

// Validator determines which nodes in a path's validation set are not owned
// by an asserted address. An empty violation set is the single "authorized"
// signal.
type Validator struct {
	resolver OwnerResolver
	log      *slog.Logger
}

func NewValidator(resolver OwnerResolver, log *slog.Logger) *Validator {
	if log == nil {
		log = slog.Default()
	}
	return &Validator{resolver: resolver, log: log}
}

// ValidationSet lists every node whose ownership the given operation
// requires. A role's authority derives entirely from its parent; app and org
// nodes also require their own node and their auxiliary anchors.
func ValidationSet(path Path, kind Kind) []Path {
	switch kind {
	case KindRole:
		return []Path{path.Parent()}
	case KindApplication:
		return []Path{path, path.Parent(), path.RolesAnchor()}
	case KindOrganization:
		return []Path{path, path.Parent(), path.RolesAnchor(), path.AppsAnchor()}
	default:
		return nil
	}
}

// Validate resolves the owner of every node in the validation set
// concurrently. All lookups are always issued so the caller gets the
// complete violation list in one round trip; there is no short-circuit.
// Returns nil when fully authorized, *OwnershipError otherwise.
func (v *Validator) Validate(ctx context.Context, path Path, kind Kind, owner common.Address) error {
	set := ValidationSet(path, kind)
	if set == nil {
		return ErrUnsupportedKind
	}

	owners := make([]common.Address, len(set))
	errs := make([]error, len(set))
	var wg sync.WaitGroup
	for i, p := range set {
		wg.Add(1)
		go func(i int, p Path) {
			defer wg.Done()
			owners[i], errs[i] = v.resolver.OwnerOf(ctx, p)
		}(i, p)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return err
	}

	var violating []Path
	for i, p := range set {
		if owners[i] != owner {
			violating = append(violating, p)
		}
	}
	if len(violating) > 0 {
		v.log.Debug("ownership validation failed",
			"path", path.String(),
			"kind", kind.String(),
			"violations", len(violating))
		return &OwnershipError{Owner: owner, Violating: violating}
	}
	return nil
}
