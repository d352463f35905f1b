package identity

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58/base58"

	"claimspace/go-backend/internal/signer"
)

const (
	tokenHeaderJSON = `{"typ":"JWT","alg":"ES256K-R"}`

	// personalMessagePrefix wraps a 32-byte message hash, so the length
	// component is fixed.
	personalMessagePrefix = "\x19Ethereum Signed Message:\n32"

	credentialPrefix = "cred1"
)

// ErrNonConformingSigner means neither signature candidate recovered to the
// signer's address: the backend does not implement any supported signing
// convention. Fatal, never retried.
var ErrNonConformingSigner = errors.New("signer does not follow a supported signing convention")

var ErrInvalidToken = errors.New("identity token is malformed")

type tokenPayload struct {
	Issuer        string `json:"iss"`
	IssuedAtBlock uint64 `json:"iat"`
}

// Token is the derived credential: the recovered public key and the
// three-segment identity token usable by claims and document operations.
type Token struct {
	PublicKey     []byte
	IdentityToken string
}

// Service derives and caches the identity token for the current signer
// session. The cache is dropped whenever the signer reconnects.
type Service struct {
	mu     sync.Mutex
	signer signer.Signer
	sess   signer.Session
	cached *Token
	log    *slog.Logger
}

func NewService(s signer.Signer, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		signer: s,
		sess:   signer.Session{Address: s.Address(), ChainID: s.ChainID()},
		log:    log,
	}
}

// DID returns the identifier of the current session's account.
func (svc *Service) DID() string {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return DID(svc.sess.Address)
}

// Session returns the current session value.
func (svc *Service) Session() signer.Session {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.sess
}

// Watch consumes the signer's reconnect events until ctx is cancelled or the
// stream closes. Every event installs the new session and drops the cached
// token so the next Token call re-derives it.
func (svc *Service) Watch(ctx context.Context) {
	events := svc.signer.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			svc.mu.Lock()
			svc.sess = ev.Session
			svc.cached = nil
			svc.mu.Unlock()
			svc.log.Info("signer session replaced",
				"event", string(ev.Kind),
				"chain_id", ev.Session.ChainID)
		}
	}
}

// Token returns the cached credential for the current session, deriving it on
// first use.
func (svc *Service) Token(ctx context.Context) (Token, error) {
	svc.mu.Lock()
	if svc.cached != nil {
		tok := *svc.cached
		svc.mu.Unlock()
		return tok, nil
	}
	sess := svc.sess
	svc.mu.Unlock()

	tok, err := svc.derive(ctx, sess)
	if err != nil {
		return Token{}, err
	}

	svc.mu.Lock()
	// A reconnect may have replaced the session mid-derivation; only cache
	// the result if it still belongs to the current session.
	if svc.sess == sess {
		svc.cached = &tok
	}
	svc.mu.Unlock()
	return tok, nil
}

func (svc *Service) derive(ctx context.Context, sess signer.Session) (Token, error) {
	height, err := svc.signer.BlockNumber(ctx)
	if err != nil {
		return Token{}, fmt.Errorf("read block height: %w", err)
	}
	payload, err := json.Marshal(tokenPayload{Issuer: DID(sess.Address), IssuedAtBlock: height})
	if err != nil {
		return Token{}, err
	}

	header64 := base64.RawURLEncoding.EncodeToString([]byte(tokenHeaderJSON))
	payload64 := base64.RawURLEncoding.EncodeToString(payload)
	message := []byte(hex.EncodeToString([]byte(header64 + "." + payload64)))

	msgHash := crypto.Keccak256(message)
	signingDigest := prefixedDigest(msgHash)

	// Backends disagree on what "sign a message" means. Request a signature
	// over the raw message for backends that apply the personal-message
	// convention themselves, and one over the prefixed digest for backends
	// that plain-hash their input.
	sigMessage, err := svc.signer.SignRaw(ctx, message)
	if err != nil {
		return Token{}, fmt.Errorf("sign message: %w", err)
	}
	sigDigest, err := svc.signer.SignRaw(ctx, signingDigest)
	if err != nil {
		return Token{}, fmt.Errorf("sign digest: %w", err)
	}

	candidates := []struct {
		sig    []byte
		digest []byte
	}{
		{sig: sigMessage, digest: signingDigest},
		{sig: sigDigest, digest: crypto.Keccak256(signingDigest)},
	}
	for _, c := range candidates {
		sig := normalizeSignature(c.sig)
		if sig == nil {
			continue
		}
		pub, err := crypto.SigToPub(c.digest, sig)
		if err != nil {
			continue
		}
		if crypto.PubkeyToAddress(*pub) != sess.Address {
			continue
		}
		token := header64 + "." + payload64 + "." + base64.RawURLEncoding.EncodeToString(sig)
		publicKey := crypto.FromECDSAPub(pub)
		svc.log.Info("identity token derived",
			"key", Fingerprint(publicKey),
			"block_height", height)
		return Token{PublicKey: publicKey, IdentityToken: token}, nil
	}
	return Token{}, ErrNonConformingSigner
}

// Attest signs arbitrary bytes with the session key and renders the signature
// as a compact credential string.
func (svc *Service) Attest(ctx context.Context, data []byte) (string, error) {
	svc.mu.Lock()
	sess := svc.sess
	svc.mu.Unlock()

	digest := prefixedDigest(crypto.Keccak256(data))
	sig, err := svc.signer.SignRaw(ctx, digest)
	if err != nil {
		return "", err
	}
	sig = normalizeSignature(sig)
	if sig == nil {
		return "", ErrNonConformingSigner
	}
	// Same convention spread as derive: backends either keccak-hash their
	// input, sign it as given, or wrap it in the personal-message prefix
	// before hashing.
	for _, candidate := range [][]byte{
		crypto.Keccak256(digest),
		digest,
		prefixedDigest(crypto.Keccak256(digest)),
	} {
		pub, err := crypto.SigToPub(candidate, sig)
		if err != nil {
			continue
		}
		if crypto.PubkeyToAddress(*pub) == sess.Address {
			return credentialPrefix + base58.Encode(sig), nil
		}
	}
	return "", ErrNonConformingSigner
}

// VerifyToken checks a received identity token against both digest
// conventions and returns the recovered public key and issuer DID.
func VerifyToken(token string) ([]byte, string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, "", ErrInvalidToken
	}
	payloadRaw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, "", ErrInvalidToken
	}
	var payload tokenPayload
	if err := json.Unmarshal(payloadRaw, &payload); err != nil {
		return nil, "", ErrInvalidToken
	}
	addr, err := AddressFromDID(payload.Issuer)
	if err != nil {
		return nil, "", ErrInvalidToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, "", ErrInvalidToken
	}
	sig = normalizeSignature(sig)
	if sig == nil {
		return nil, "", ErrInvalidToken
	}

	message := []byte(hex.EncodeToString([]byte(parts[0] + "." + parts[1])))
	msgHash := crypto.Keccak256(message)
	signingDigest := prefixedDigest(msgHash)

	for _, digest := range [][]byte{signingDigest, crypto.Keccak256(signingDigest)} {
		pub, err := crypto.SigToPub(digest, sig)
		if err != nil {
			continue
		}
		if crypto.PubkeyToAddress(*pub) == addr {
			return crypto.FromECDSAPub(pub), payload.Issuer, nil
		}
	}
	return nil, "", ErrNonConformingSigner
}

func prefixedDigest(msgHash []byte) []byte {
	return crypto.Keccak256(append([]byte(personalMessagePrefix), msgHash...))
}

// normalizeSignature maps the recovery byte into the 0/1 range SigToPub
// expects; legacy backends emit 27/28.
func normalizeSignature(sig []byte) []byte {
	if len(sig) != crypto.SignatureLength {
		return nil
	}
	out := append([]byte(nil), sig...)
	if out[crypto.SignatureLength-1] >= 27 {
		out[crypto.SignatureLength-1] -= 27
	}
	return out
}
