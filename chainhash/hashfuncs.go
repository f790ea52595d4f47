package chainhash

import (
	"errors"

	"golang.org/x/crypto/blake2b"
)

// HashH calculates hash(b) and returns the resulting bytes as a Hash.
func HashH(b []byte) Hash {
	return Hash(blake2b.Sum256(b))
}

// BytesToHash converts a byte array to a hash.
func BytesToHash(b []byte) (Hash, error) {
	if len(b) != 32 {
		return Hash{}, errors.New("expected hash to be length 32")
	}
	var out Hash
	copy(out[:], b)
	return out, nil
}
