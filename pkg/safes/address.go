package safes

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SaltNonce derives the CREATE2 salt nonce for a category Safe. The nonce is
// a function of the lowercased primary Safe address and the category, so the
// same primary yields the same category Safe address on every chain.
func SaltNonce(primary common.Address, category Category) *big.Int {
	seed := strings.ToLower(primary.Hex()) + ":" + string(category)
	hash := crypto.Keccak256([]byte(seed))
	return new(big.Int).SetBytes(hash)
}
