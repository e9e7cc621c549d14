package safes

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestSaltNonceDeterministic(t *testing.T) {
	primary := common.HexToAddress("0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa")

	first := SaltNonce(primary, CategoryTax)
	second := SaltNonce(primary, CategoryTax)
	if first.Cmp(second) != 0 {
		t.Error("salt nonce is not deterministic")
	}
}

func TestSaltNonceCaseInsensitive(t *testing.T) {
	lower := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	mixed := common.HexToAddress("0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa")

	if SaltNonce(lower, CategoryYield).Cmp(SaltNonce(mixed, CategoryYield)) != 0 {
		t.Error("salt nonce must not depend on address casing")
	}
}

func TestSaltNonceVariesByCategory(t *testing.T) {
	primary := common.HexToAddress("0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa")

	if SaltNonce(primary, CategoryTax).Cmp(SaltNonce(primary, CategoryYield)) == 0 {
		t.Error("different categories must derive different salt nonces")
	}
}
