package namespace

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrParentMissing = errors.New("parent namespace does not exist")
	ErrAlreadyExists = errors.New("namespace already exists")
	ErrNotFound      = errors.New("namespace does not exist")
)

// MemoryRegistry is the in-process registry backing tests and dev mode. It
// keeps the append-only created-event log the real registry exposes, so the
// event-scan fallback behaves the same against it.
type MemoryRegistry struct {
	mu      sync.RWMutex
	actor   common.Address
	owners  map[Path]common.Address
	names   map[Path]struct{}
	defs    map[Path]Definition
	created []Path
}

func NewMemoryRegistry(actor common.Address) *MemoryRegistry {
	return &MemoryRegistry{
		actor:  actor,
		owners: make(map[Path]common.Address),
		names:  make(map[Path]struct{}),
		defs:   make(map[Path]Definition),
	}
}

// Seed installs a root node without a parent check, for bootstrapping the
// registry's base domain.
func (r *MemoryRegistry) Seed(path Path, owner common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[path] = owner
}

// SetOwner overwrites a node's owner directly. Test hook.
func (r *MemoryRegistry) SetOwner(path Path, owner common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[path] = owner
}

func (r *MemoryRegistry) OwnerOf(_ context.Context, path Path) (common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owners[path], nil
}

func (r *MemoryRegistry) Create(_ context.Context, parent Path, label string) error {
	if !validLabel(label) {
		return fmt.Errorf("%w: bad label %q", ErrInvalidPath, label)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if parent != "" {
		if _, ok := r.owners[parent]; !ok {
			return fmt.Errorf("%w: %s", ErrParentMissing, parent)
		}
	}
	path := parent.Child(label)
	if _, ok := r.owners[path]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, path)
	}
	r.owners[path] = r.actor
	r.created = append(r.created, path)
	return nil
}

func (r *MemoryRegistry) SetName(_ context.Context, path Path) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[path]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	r.names[path] = struct{}{}
	return nil
}

func (r *MemoryRegistry) SetDefinition(_ context.Context, path Path, def Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[path]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	r.defs[path] = def
	return nil
}

func (r *MemoryRegistry) TransferOwner(_ context.Context, path Path, newOwner common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[path]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	r.owners[path] = newOwner
	return nil
}

func (r *MemoryRegistry) Delete(_ context.Context, path Path) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[path]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	delete(r.owners, path)
	delete(r.names, path)
	delete(r.defs, path)
	return nil
}

func (r *MemoryRegistry) SubdomainsCreatedUnder(_ context.Context, path Path) ([]Path, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Path
	for _, p := range r.created {
		if p.Under(path) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Exists reports whether the node currently exists. Test hook.
func (r *MemoryRegistry) Exists(path Path) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.owners[path]
	return ok
}

// Definition returns the stored definition. Test hook.
func (r *MemoryRegistry) Definition(path Path) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[path]
	return def, ok
}
