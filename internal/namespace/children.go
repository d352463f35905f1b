package namespace

import (
	"context"
	"errors"

	"claimspace/go-backend/internal/cacheindex"
)

// ChildIndex is the optional read-mirror capability. The cache index client
// satisfies it; a nil index means every enumeration scans raw events.
type ChildIndex interface {
	ChildApplications(ctx context.Context, path string) ([]string, error)
}

// Enumerator derives first-level children of a namespace, preferring the
// cache index and falling back to scanning subdomain-created events when the
// node is not indexed yet.
type Enumerator struct {
	registry Registry
	index    ChildIndex
}

func NewEnumerator(registry Registry, index ChildIndex) *Enumerator {
	return &Enumerator{registry: registry, index: index}
}

// Children scans historical subdomain-created events under parent and
// returns the unique leading labels in discovery order.
func (e *Enumerator) Children(ctx context.Context, parent Path) ([]string, error) {
	events, err := e.registry.SubdomainsCreatedUnder(ctx, parent)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(events))
	var labels []string
	for _, p := range events {
		if !p.Under(parent) || p.Depth() <= parent.Depth() {
			continue
		}
		label := p.Label()
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		labels = append(labels, label)
	}
	return labels, nil
}

// ChildApplications lists the live dependent applications of a node,
// excluding the reserved roles/apps anchors. "Not yet indexed" is the one
// read failure that degrades to the event scan; anything else surfaces.
func (e *Enumerator) ChildApplications(ctx context.Context, parent Path) ([]string, error) {
	if e.index != nil {
		apps, err := e.index.ChildApplications(ctx, parent.String())
		if err == nil {
			return apps, nil
		}
		if !errors.Is(err, cacheindex.ErrNotIndexed) {
			return nil, err
		}
	}
	labels, err := e.Children(ctx, parent)
	if err != nil {
		return nil, err
	}
	apps := labels[:0]
	for _, label := range labels {
		if !ReservedLabel(label) {
			apps = append(apps, label)
		}
	}
	return apps, nil
}
