package signer

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"
	"io"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/hkdf"
)

const hkdfInfoSigningKey = "claimspace/signer/secp256k1/v1"

var ErrInvalidMnemonic = errors.New("mnemonic phrase is not valid")

// LocalSigner holds a secp256k1 key derived from a bip39 mnemonic. It is the
// dev and test backend: SignRaw keccak-hashes its input and signs the digest
// without applying the personal-message prefix.
type LocalSigner struct {
	mu      sync.Mutex
	key     *ecdsa.PrivateKey
	address common.Address
	chainID uint64
	height  uint64
	events  chan Event
}

func NewLocalSigner(mnemonic string, chainID uint64) (*LocalSigner, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, "")
	keySeed, err := hkdfExpand(seed, hkdfInfoSigningKey, 32)
	if err != nil {
		return nil, err
	}
	key, err := crypto.ToECDSA(keySeed)
	if err != nil {
		return nil, err
	}
	return &LocalSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		events:  make(chan Event, 8),
	}, nil
}

// GenerateMnemonic produces a fresh 24-word phrase for a new local signer.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

func hkdfExpand(seed []byte, info string, outLen int) ([]byte, error) {
	reader := hkdf.New(sha256.New, seed, nil, []byte(info))
	out := make([]byte, outLen)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

func (s *LocalSigner) ChainID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chainID
}

func (s *LocalSigner) SignRaw(_ context.Context, data []byte) ([]byte, error) {
	digest := crypto.Keccak256(data)
	return crypto.Sign(digest, s.key)
}

func (s *LocalSigner) SendTransaction(_ context.Context, to common.Address, data []byte, value *big.Int) (Receipt, error) {
	s.mu.Lock()
	s.height++
	height := s.height
	s.mu.Unlock()

	// The local backend has no ledger behind it; it acknowledges the
	// submission with a deterministic receipt so workflow steps can proceed.
	buf := make([]byte, 0, len(to)+len(data)+8)
	buf = append(buf, to.Bytes()...)
	buf = append(buf, data...)
	if value != nil {
		buf = append(buf, value.Bytes()...)
	}
	buf = append(buf, byte(height))
	return Receipt{TxHash: common.BytesToHash(crypto.Keccak256(buf)), Success: true}, nil
}

func (s *LocalSigner) BlockNumber(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.height, nil
}

func (s *LocalSigner) Events() <-chan Event {
	return s.events
}

// Reconnect simulates a wallet reconnection: the signer switches to the given
// chain and emits the matching event with the new session value.
func (s *LocalSigner) Reconnect(kind EventKind, chainID uint64) {
	s.mu.Lock()
	s.chainID = chainID
	sess := Session{Address: s.address, ChainID: chainID}
	s.mu.Unlock()
	s.events <- Event{Kind: kind, Session: sess}
}

// AdvanceBlock bumps the reported ledger height.
func (s *LocalSigner) AdvanceBlock() {
	s.mu.Lock()
	s.height++
	s.mu.Unlock()
}

func (s *LocalSigner) Close() {
	close(s.events)
}
