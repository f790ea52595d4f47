package chainhash_test

import (
	"testing"

	"github.com/phoreproject/xchain/chainhash"
)

func TestHashStringRoundTrip(t *testing.T) {
	h := chainhash.HashH([]byte("genesis"))

	decoded, err := chainhash.NewHashFromStr(h.String())
	if err != nil {
		t.Fatal(err)
	}

	if !decoded.IsEqual(&h) {
		t.Fatalf("expected %s, got %s", h, decoded)
	}
}

func TestHashFromBadInput(t *testing.T) {
	if _, err := chainhash.NewHashFromStr("abcd"); err == nil {
		t.Fatal("expected short hash string to be rejected")
	}

	if _, err := chainhash.NewHash([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected short hash bytes to be rejected")
	}

	if _, err := chainhash.BytesToHash(make([]byte, 31)); err == nil {
		t.Fatal("expected 31 bytes to be rejected")
	}
}

func TestZeroHash(t *testing.T) {
	var h chainhash.Hash
	if !h.IsZero() {
		t.Fatal("expected empty hash to be zero")
	}

	if chainhash.HashH(nil).IsZero() {
		t.Fatal("expected hash of empty input not to be zero")
	}
}

func TestBytesToHash(t *testing.T) {
	h := chainhash.HashH([]byte("block"))

	out, err := chainhash.BytesToHash(h[:])
	if err != nil {
		t.Fatal(err)
	}
	if out != h {
		t.Fatalf("expected %s, got %s", h, out)
	}
}
