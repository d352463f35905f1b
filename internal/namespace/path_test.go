package namespace

import (
	"errors"
	"testing"
)

func TestParsePathNormalizes(t *testing.T) {
	p, err := ParsePath("  Shop.ACME.claimspace ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p != Path("shop.acme.claimspace") {
		t.Fatalf("unexpected path: %s", p)
	}
}

func TestParsePathRejectsBadLabels(t *testing.T) {
	cases := []string{
		"",
		".",
		"a..b",
		"spaced label.org",
		"emoji🦊.org",
		".leading",
		"trailing.",
	}
	for _, raw := range cases {
		if _, err := ParsePath(raw); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("expected ErrInvalidPath for %q, got %v", raw, err)
		}
	}
}

func TestPathNavigation(t *testing.T) {
	p := Path("admin.roles.acme.claimspace")

	if p.Label() != "admin" {
		t.Fatalf("expected leading label admin, got %s", p.Label())
	}
	if p.Parent() != Path("roles.acme.claimspace") {
		t.Fatalf("unexpected parent: %s", p.Parent())
	}
	if p.Depth() != 4 {
		t.Fatalf("expected depth 4, got %d", p.Depth())
	}
	if Path("").Depth() != 0 {
		t.Fatal("empty path must have depth 0")
	}

	org := Path("acme.claimspace")
	if org.Child("shop") != Path("shop.acme.claimspace") {
		t.Fatalf("unexpected child: %s", org.Child("shop"))
	}
	if org.RolesAnchor() != Path("roles.acme.claimspace") {
		t.Fatalf("unexpected roles anchor: %s", org.RolesAnchor())
	}
	if org.AppsAnchor() != Path("apps.acme.claimspace") {
		t.Fatalf("unexpected apps anchor: %s", org.AppsAnchor())
	}
}

func TestPathUnder(t *testing.T) {
	org := Path("acme.claimspace")
	if !Path("shop.acme.claimspace").Under(org) {
		t.Fatal("direct child must be under its parent")
	}
	if !Path("admin.roles.acme.claimspace").Under(org) {
		t.Fatal("deep descendant must be under its ancestor")
	}
	if org.Under(org) {
		t.Fatal("a path is not under itself")
	}
	if Path("acme2.claimspace").Under(org) {
		t.Fatal("sibling must not be under the node")
	}
	// Suffix match must respect label boundaries.
	if Path("xacme.claimspace").Under(org) {
		t.Fatal("label-suffix collision must not count as under")
	}
}

func TestReservedLabels(t *testing.T) {
	if !ReservedLabel("roles") || !ReservedLabel("apps") {
		t.Fatal("roles and apps are reserved")
	}
	if ReservedLabel("shop") {
		t.Fatal("shop is not reserved")
	}
}

func TestKindString(t *testing.T) {
	if KindOrganization.String() != "organization" ||
		KindApplication.String() != "application" ||
		KindRole.String() != "role" {
		t.Fatal("unexpected kind names")
	}
}
