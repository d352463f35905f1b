package identity

import (
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58/base58"

	"claimspace/go-backend/internal/signer"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func newTestService(t *testing.T) (*Service, *signer.LocalSigner) {
	t.Helper()
	s, err := signer.NewLocalSigner(testMnemonic, 1)
	if err != nil {
		t.Fatalf("build signer: %v", err)
	}
	t.Cleanup(s.Close)
	return NewService(s, nil), s
}

func TestTokenDerivationPlainHashingBackend(t *testing.T) {
	svc, _ := newTestService(t)

	tok, err := svc.Token(context.Background())
	if err != nil {
		t.Fatalf("derive token: %v", err)
	}
	parts := strings.Split(tok.IdentityToken, ".")
	if len(parts) != 3 {
		t.Fatalf("expected three token segments, got %d", len(parts))
	}

	header, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	if string(header) != tokenHeaderJSON {
		t.Fatalf("unexpected header: %s", header)
	}

	payloadRaw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	var payload tokenPayload
	if err := json.Unmarshal(payloadRaw, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Issuer != svc.DID() {
		t.Fatalf("payload issuer %s does not match service did %s", payload.Issuer, svc.DID())
	}
	if payload.IssuedAtBlock != 0 {
		t.Fatalf("expected block height 0 in fresh token, got %d", payload.IssuedAtBlock)
	}
}

func TestTokenVerifyRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)

	tok, err := svc.Token(context.Background())
	if err != nil {
		t.Fatalf("derive token: %v", err)
	}
	pub, did, err := VerifyToken(tok.IdentityToken)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if did != svc.DID() {
		t.Fatalf("verified did %s does not match %s", did, svc.DID())
	}
	if string(pub) != string(tok.PublicKey) {
		t.Fatal("verified public key does not match the derived one")
	}
}

func TestTokenCachedUntilSessionReplaced(t *testing.T) {
	svc, ls := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Watch(ctx)

	first, err := svc.Token(context.Background())
	if err != nil {
		t.Fatalf("derive token: %v", err)
	}

	// A new block alone must not invalidate the cache.
	ls.AdvanceBlock()
	again, err := svc.Token(context.Background())
	if err != nil {
		t.Fatalf("second token call: %v", err)
	}
	if again.IdentityToken != first.IdentityToken {
		t.Fatal("cached token changed without a session event")
	}

	ls.Reconnect(signer.EventSessionUpdate, 7)
	deadline := time.Now().Add(2 * time.Second)
	for svc.Session().ChainID != 7 {
		if time.Now().After(deadline) {
			t.Fatal("watch loop did not install the new session")
		}
		time.Sleep(5 * time.Millisecond)
	}

	fresh, err := svc.Token(context.Background())
	if err != nil {
		t.Fatalf("re-derive token: %v", err)
	}
	if fresh.IdentityToken == first.IdentityToken {
		t.Fatal("token was not re-derived after the session was replaced")
	}
}

// prefixingSigner applies the personal-message convention itself, the way
// browser wallets do: it hashes the input and signs the prefixed digest.
type prefixingSigner struct {
	key    *ecdsa.PrivateKey
	events chan signer.Event
}

func newPrefixingSigner(t *testing.T) *prefixingSigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &prefixingSigner{key: key, events: make(chan signer.Event)}
}

func (p *prefixingSigner) Address() common.Address { return crypto.PubkeyToAddress(p.key.PublicKey) }
func (p *prefixingSigner) ChainID() uint64         { return 1 }

func (p *prefixingSigner) SignRaw(_ context.Context, data []byte) ([]byte, error) {
	digest := prefixedDigest(crypto.Keccak256(data))
	sig, err := crypto.Sign(digest, p.key)
	if err != nil {
		return nil, err
	}
	// Legacy wallets report the recovery byte as 27/28.
	sig[crypto.SignatureLength-1] += 27
	return sig, nil
}

func (p *prefixingSigner) SendTransaction(context.Context, common.Address, []byte, *big.Int) (signer.Receipt, error) {
	return signer.Receipt{Success: true}, nil
}

func (p *prefixingSigner) BlockNumber(context.Context) (uint64, error) { return 12, nil }
func (p *prefixingSigner) Events() <-chan signer.Event                 { return p.events }

func TestTokenDerivationPrefixingBackend(t *testing.T) {
	svc := NewService(newPrefixingSigner(t), nil)

	tok, err := svc.Token(context.Background())
	if err != nil {
		t.Fatalf("derive token: %v", err)
	}
	if _, _, err := VerifyToken(tok.IdentityToken); err != nil {
		t.Fatalf("verify token from prefixing backend: %v", err)
	}
}

// mismatchedSigner signs with a key that does not belong to the address it
// reports, so no candidate can recover to it.
type mismatchedSigner struct {
	*prefixingSigner
	claimed common.Address
}

func (m *mismatchedSigner) Address() common.Address { return m.claimed }

func TestTokenNonConformingSigner(t *testing.T) {
	other, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	svc := NewService(&mismatchedSigner{
		prefixingSigner: newPrefixingSigner(t),
		claimed:         crypto.PubkeyToAddress(other.PublicKey),
	}, nil)

	if _, err := svc.Token(context.Background()); !errors.Is(err, ErrNonConformingSigner) {
		t.Fatalf("expected ErrNonConformingSigner, got %v", err)
	}
}

func TestAttestProducesCredential(t *testing.T) {
	svc, _ := newTestService(t)

	cred, err := svc.Attest(context.Background(), []byte("request-123"))
	if err != nil {
		t.Fatalf("attest: %v", err)
	}
	rest, ok := strings.CutPrefix(cred, credentialPrefix)
	if !ok {
		t.Fatalf("credential %q lacks the %s prefix", cred, credentialPrefix)
	}
	sig, err := base58.Decode(rest)
	if err != nil {
		t.Fatalf("decode credential: %v", err)
	}
	if len(sig) != crypto.SignatureLength {
		t.Fatalf("expected %d byte signature inside credential, got %d", crypto.SignatureLength, len(sig))
	}
}

func TestAttestPrefixingBackend(t *testing.T) {
	svc := NewService(newPrefixingSigner(t), nil)

	cred, err := svc.Attest(context.Background(), []byte("request-123"))
	if err != nil {
		t.Fatalf("attest with a personal-sign backend: %v", err)
	}
	rest, ok := strings.CutPrefix(cred, credentialPrefix)
	if !ok {
		t.Fatalf("credential %q lacks the %s prefix", cred, credentialPrefix)
	}
	if _, err := base58.Decode(rest); err != nil {
		t.Fatalf("decode credential: %v", err)
	}
}

func TestAttestNonConformingSigner(t *testing.T) {
	other, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	svc := NewService(&mismatchedSigner{
		prefixingSigner: newPrefixingSigner(t),
		claimed:         crypto.PubkeyToAddress(other.PublicKey),
	}, nil)

	if _, err := svc.Attest(context.Background(), []byte("request-123")); !errors.Is(err, ErrNonConformingSigner) {
		t.Fatalf("expected ErrNonConformingSigner, got %v", err)
	}
}

func TestVerifyTokenRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"one.two",
		"!!!.???.###",
	}
	for _, tok := range cases {
		if _, _, err := VerifyToken(tok); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken for %q, got %v", tok, err)
		}
	}
}

func TestVerifyTokenRejectsTamperedSignature(t *testing.T) {
	svc, _ := newTestService(t)
	tok, err := svc.Token(context.Background())
	if err != nil {
		t.Fatalf("derive token: %v", err)
	}
	parts := strings.Split(tok.IdentityToken, ".")
	forged := make([]byte, crypto.SignatureLength)
	forged[crypto.SignatureLength-1] = 1
	parts[2] = base64.RawURLEncoding.EncodeToString(forged)
	if _, _, err := VerifyToken(strings.Join(parts, ".")); err == nil {
		t.Fatal("expected tampered token to fail verification")
	}
}
