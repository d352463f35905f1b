package namespace

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"claimspace/go-backend/internal/cacheindex"
)

func TestChildrenFromEventScan(t *testing.T) {
	org := Path("acme.claimspace")
	reg := NewMemoryRegistry(ownerAddr)
	reg.Seed(org, ownerAddr)

	mustCreate(t, reg, org, "a")
	mustCreate(t, reg, org, "b")
	mustCreate(t, reg, org.Child("a"), "roles")

	e := NewEnumerator(reg, nil)
	labels, err := e.Children(context.Background(), org)
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	want := []string{"a", "b", "roles"}
	if len(labels) != len(want) {
		t.Fatalf("got %v, want %v", labels, want)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("labels[%d] = %s, want %s (discovery order)", i, labels[i], want[i])
		}
	}
}

func TestChildrenDeduplicatesLabels(t *testing.T) {
	org := Path("acme.claimspace")
	reg := NewMemoryRegistry(ownerAddr)
	reg.Seed(org, ownerAddr)

	mustCreate(t, reg, org, "a")
	mustCreate(t, reg, org.Child("a"), "roles")
	mustCreate(t, reg, org.Child("a").Child("roles"), "a")

	e := NewEnumerator(reg, nil)
	labels, err := e.Children(context.Background(), org)
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	if len(labels) != 2 || labels[0] != "a" || labels[1] != "roles" {
		t.Fatalf("expected deduplicated [a roles], got %v", labels)
	}
}

func TestChildrenIncludesDeletedNodes(t *testing.T) {
	// Creation events are historical; deleting a node does not erase them.
	org := Path("acme.claimspace")
	reg := NewMemoryRegistry(ownerAddr)
	reg.Seed(org, ownerAddr)
	mustCreate(t, reg, org, "ghost")
	if err := reg.Delete(context.Background(), org.Child("ghost")); err != nil {
		t.Fatalf("delete: %v", err)
	}

	e := NewEnumerator(reg, nil)
	labels, err := e.Children(context.Background(), org)
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	if len(labels) != 1 || labels[0] != "ghost" {
		t.Fatalf("expected deleted node to remain in the event scan, got %v", labels)
	}
}

type stubIndex struct {
	apps map[string][]string
	err  error
}

func (s *stubIndex) ChildApplications(_ context.Context, path string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	apps, ok := s.apps[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", cacheindex.ErrNotIndexed, path)
	}
	return apps, nil
}

func TestChildApplicationsPrefersIndex(t *testing.T) {
	org := Path("acme.claimspace")
	reg := NewMemoryRegistry(ownerAddr)
	reg.Seed(org, ownerAddr)
	mustCreate(t, reg, org, "from-events")

	idx := &stubIndex{apps: map[string][]string{org.String(): {"from-index"}}}
	e := NewEnumerator(reg, idx)
	apps, err := e.ChildApplications(context.Background(), org)
	if err != nil {
		t.Fatalf("child applications: %v", err)
	}
	if len(apps) != 1 || apps[0] != "from-index" {
		t.Fatalf("expected the indexed answer, got %v", apps)
	}
}

func TestChildApplicationsFallsBackWhenNotIndexed(t *testing.T) {
	org := Path("acme.claimspace")
	reg := NewMemoryRegistry(ownerAddr)
	reg.Seed(org, ownerAddr)
	mustCreate(t, reg, org, "roles")
	mustCreate(t, reg, org, "apps")
	mustCreate(t, reg, org, "shop")

	e := NewEnumerator(reg, &stubIndex{apps: map[string][]string{}})
	apps, err := e.ChildApplications(context.Background(), org)
	if err != nil {
		t.Fatalf("child applications: %v", err)
	}
	if len(apps) != 1 || apps[0] != "shop" {
		t.Fatalf("expected reserved anchors filtered out of the fallback, got %v", apps)
	}
}

func TestChildApplicationsSurfacesIndexFailures(t *testing.T) {
	org := Path("acme.claimspace")
	reg := NewMemoryRegistry(ownerAddr)
	reg.Seed(org, ownerAddr)

	e := NewEnumerator(reg, &stubIndex{err: errors.New("index is down")})
	if _, err := e.ChildApplications(context.Background(), org); err == nil {
		t.Fatal("expected a non-404 index failure to surface, not degrade")
	}
}

func mustCreate(t *testing.T, reg *MemoryRegistry, parent Path, label string) {
	t.Helper()
	if err := reg.Create(context.Background(), parent, label); err != nil {
		t.Fatalf("create %s under %s: %v", label, parent, err)
	}
}
