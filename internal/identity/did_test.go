package identity

import (
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestDIDRoundTrip(t *testing.T) {
	addr := common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	did := DID(addr)
	if !strings.HasPrefix(did, "did:ethr:0x") {
		t.Fatalf("unexpected did format: %s", did)
	}
	if did != strings.ToLower(did) {
		t.Fatalf("did is not lowercase: %s", did)
	}

	back, err := AddressFromDID(did)
	if err != nil {
		t.Fatalf("parse did: %v", err)
	}
	if back != addr {
		t.Fatalf("round trip produced %s, want %s", back.Hex(), addr.Hex())
	}
}

func TestAddressFromDIDRejectsGarbage(t *testing.T) {
	cases := []string{
		"",
		"did:web:example.com",
		"did:ethr:",
		"did:ethr:nothex",
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
	}
	for _, did := range cases {
		if _, err := AddressFromDID(did); !errors.Is(err, ErrInvalidDID) {
			t.Fatalf("expected ErrInvalidDID for %q, got %v", did, err)
		}
	}
}

func TestFingerprintStable(t *testing.T) {
	key := []byte{0x04, 0x01, 0x02, 0x03}
	fp := Fingerprint(key)
	if !strings.HasPrefix(fp, "csk1") {
		t.Fatalf("unexpected fingerprint prefix: %s", fp)
	}
	if fp != Fingerprint(key) {
		t.Fatal("fingerprint is not deterministic")
	}
	if fp == Fingerprint([]byte{0x04, 0x01, 0x02, 0x04}) {
		t.Fatal("different keys produced the same fingerprint")
	}
}
