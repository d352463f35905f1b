package identity

import (
	"crypto/sha256"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58/base58"
)

const didPrefix = "did:ethr:"

var ErrInvalidDID = errors.New("invalid did")

// DID renders the wallet address as its decentralized identifier.
func DID(addr common.Address) string {
	return didPrefix + strings.ToLower(addr.Hex())
}

// AddressFromDID extracts the wallet address backing a did:ethr identifier.
func AddressFromDID(did string) (common.Address, error) {
	rest, ok := strings.CutPrefix(did, didPrefix)
	if !ok || !common.IsHexAddress(rest) {
		return common.Address{}, ErrInvalidDID
	}
	return common.HexToAddress(rest), nil
}

// Fingerprint is a short stable handle for a public key, safe for log
// fields where the full key would be noise.
func Fingerprint(publicKey []byte) string {
	h := sha256.Sum256(publicKey)
	return "csk1" + base58.Encode(h[:8])
}
