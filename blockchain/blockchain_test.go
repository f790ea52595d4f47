package blockchain_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/go-test/deep"
	"github.com/pkg/errors"

	"github.com/phoreproject/xchain/blockchain"
	"github.com/phoreproject/xchain/chainhash"
	"github.com/phoreproject/xchain/primitives"
	"github.com/phoreproject/xchain/storage"
)

func testGenesis() *primitives.GenesisData {
	genesis := primitives.DefaultGenesis
	return &genesis
}

func childOf(genesis *primitives.GenesisData, parent *primitives.Block, nonce uint64) *primitives.Block {
	tx := primitives.Transaction{
		Nonce:   nonce,
		Payload: []byte(fmt.Sprintf("tx %d", nonce)),
	}
	return primitives.NewBlock(parent.Hash(), parent.BlockHeader.Date.Next(genesis.SlotsPerEpoch), []primitives.Transaction{tx})
}

type sollicitRecorder struct {
	hashes []chainhash.Hash
}

func (s *sollicitRecorder) SollicitBlock(h chainhash.Hash) {
	s.hashes = append(s.hashes, h)
}

func newTestChain(t *testing.T, opts ...blockchain.Option) (*blockchain.Blockchain, *storage.MemoryStorage, *sollicitRecorder) {
	store := storage.NewMemoryStorage()
	recorder := new(sollicitRecorder)
	opts = append([]blockchain.Option{blockchain.WithSollicitor(recorder)}, opts...)
	b, err := blockchain.FromStorage(testGenesis(), store, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return b, store, recorder
}

func expectTip(t *testing.T, b *blockchain.Blockchain, expected *primitives.Block, length uint64) {
	t.Helper()
	state := b.GetChainState()
	if state.LastBlock != expected.Hash() {
		t.Fatalf("expected tip %s, got %s", expected.Hash(), state.LastBlock)
	}
	if state.ChainLength != length {
		t.Fatalf("expected chain length %d, got %d", length, state.ChainLength)
	}
}

func TestGenesisChain(t *testing.T) {
	b, store, _ := newTestChain(t)
	genesis := testGenesis()

	tip, date := b.GetTip()
	if tip != genesis.Hash() {
		t.Fatal("expected new chain tip to be genesis")
	}
	if date != genesis.Date {
		t.Fatalf("expected genesis date, got %s", date)
	}
	if b.GetGenesisHash() != genesis.Hash() {
		t.Fatal("genesis hash does not match")
	}
	if b.GetChainState().LastDate != nil {
		t.Fatal("expected genesis chain state to have no date")
	}
	if !b.BlockExists(genesis.Hash()) {
		t.Fatal("expected genesis block to be stored")
	}
	if store.BlockCount() != 1 {
		t.Fatalf("expected only the genesis block to be stored, got %d", store.BlockCount())
	}
}

func TestForkChoiceScenario(t *testing.T) {
	b, store, _ := newTestChain(t)
	genesis := testGenesis()
	g := genesis.Block()

	b1 := childOf(genesis, g, 1)
	b.HandleIncomingBlock(b1)
	expectTip(t, b, b1, 1)

	// same length, first seen wins
	b2 := childOf(genesis, g, 2)
	b.HandleIncomingBlock(b2)
	expectTip(t, b, b1, 1)
	if !b.BlockExists(b2.Hash()) {
		t.Fatal("expected non canonical block to be stored")
	}

	b3 := childOf(genesis, b2, 3)
	b.HandleIncomingBlock(b3)
	expectTip(t, b, b3, 2)

	head, err := store.GetTag(blockchain.TipTag)
	if err != nil {
		t.Fatal(err)
	}
	if *head != b3.Hash() {
		t.Fatalf("expected stored tip to be %s, got %s", b3.Hash(), head)
	}

	tip, date := b.GetTip()
	if tip != b3.Hash() || date != b3.BlockHeader.Date {
		t.Fatalf("unexpected tip %s at %s", tip, date)
	}
}

func TestOrphanConnectedWhenParentArrives(t *testing.T) {
	b, _, recorder := newTestChain(t)
	genesis := testGenesis()

	b1 := childOf(genesis, genesis.Block(), 1)
	b1a := childOf(genesis, b1, 2)

	b.HandleIncomingBlock(b1a)
	if b.OrphanCount() != 1 {
		t.Fatalf("expected 1 orphan, got %d", b.OrphanCount())
	}
	if b.BlockExists(b1a.Hash()) {
		t.Fatal("orphan should not be stored")
	}
	if diff := deep.Equal(recorder.hashes, []chainhash.Hash{b1.Hash()}); diff != nil {
		t.Fatal(diff)
	}
	expectTip(t, b, genesis.Block(), 0)

	b.HandleIncomingBlock(b1)
	if b.OrphanCount() != 0 {
		t.Fatalf("expected no orphans, got %d", b.OrphanCount())
	}
	expectTip(t, b, b1a, 2)
}

func TestSollicitOnlyOnFirstSighting(t *testing.T) {
	b, _, recorder := newTestChain(t)
	genesis := testGenesis()

	b1 := childOf(genesis, genesis.Block(), 1)
	b.HandleIncomingBlock(childOf(genesis, b1, 2))
	b.HandleIncomingBlock(childOf(genesis, b1, 3))
	b.HandleIncomingBlock(childOf(genesis, b1, 3))

	if b.OrphanCount() != 2 {
		t.Fatalf("expected 2 orphans, got %d", b.OrphanCount())
	}
	if len(recorder.hashes) != 1 {
		t.Fatalf("expected a single sollicitation, got %d", len(recorder.hashes))
	}

	b.HandleIncomingBlock(b1)
	if b.OrphanCount() != 0 {
		t.Fatalf("expected no orphans, got %d", b.OrphanCount())
	}
	if b.GetChainState().ChainLength != 2 {
		t.Fatalf("expected chain length 2, got %d", b.GetChainState().ChainLength)
	}
}

func TestOrderIndependence(t *testing.T) {
	genesis := testGenesis()

	blocks := make([]*primitives.Block, 8)
	parent := genesis.Block()
	for i := range blocks {
		blocks[i] = childOf(genesis, parent, uint64(i))
		parent = blocks[i]
	}

	for seed := int64(0); seed < 30; seed++ {
		b, _, _ := newTestChain(t)

		r := rand.New(rand.NewSource(seed))
		lastLength := uint64(0)
		for _, i := range r.Perm(len(blocks)) {
			b.HandleIncomingBlock(blocks[i])

			length := b.GetChainState().ChainLength
			if length < lastLength {
				t.Fatalf("chain length went down from %d to %d", lastLength, length)
			}
			lastLength = length
		}

		expectTip(t, b, blocks[len(blocks)-1], uint64(len(blocks)))
		if b.OrphanCount() != 0 {
			t.Fatalf("expected no orphans left, got %d", b.OrphanCount())
		}
	}
}

func TestIdempotentDelivery(t *testing.T) {
	b, store, _ := newTestChain(t)
	genesis := testGenesis()

	b1 := childOf(genesis, genesis.Block(), 1)
	b2 := childOf(genesis, genesis.Block(), 2)

	b.HandleIncomingBlock(b1)
	b.HandleIncomingBlock(b2)
	state := b.GetChainState()
	count := store.BlockCount()

	b.HandleIncomingBlock(b1)
	b.HandleIncomingBlock(b2)

	if diff := deep.Equal(b.GetChainState(), state); diff != nil {
		t.Fatal(diff)
	}
	if store.BlockCount() != count {
		t.Fatalf("expected %d stored blocks, got %d", count, store.BlockCount())
	}
}

type failingRestorer struct {
	inner blockchain.StateRestorer
	fail  map[chainhash.Hash]bool
}

func (f *failingRestorer) Restore(store storage.Storage, genesis *primitives.GenesisData, target chainhash.Hash) (blockchain.ChainState, error) {
	if f.fail[target] {
		return blockchain.ChainState{}, errors.New("restore failed")
	}
	return f.inner.Restore(store, genesis, target)
}

func TestRestoreFailureKeepsTip(t *testing.T) {
	inner, err := blockchain.NewRestorer(16)
	if err != nil {
		t.Fatal(err)
	}
	restorer := &failingRestorer{inner: inner, fail: map[chainhash.Hash]bool{}}

	b, _, _ := newTestChain(t, blockchain.WithRestorer(restorer))
	genesis := testGenesis()

	b1 := childOf(genesis, genesis.Block(), 1)
	b2 := childOf(genesis, b1, 2)
	restorer.fail[b1.Hash()] = true

	b.HandleIncomingBlock(b2)
	b.HandleIncomingBlock(b1)

	if !b.BlockExists(b1.Hash()) {
		t.Fatal("expected block to be stored even though restoring it failed")
	}

	// the waiting child is still evaluated on its own
	expectTip(t, b, b2, 2)
	if b.OrphanCount() != 0 {
		t.Fatalf("expected no orphans, got %d", b.OrphanCount())
	}

	b3 := childOf(genesis, genesis.Block(), 3)
	restorer.fail[b3.Hash()] = true
	b.HandleIncomingBlock(b3)
	expectTip(t, b, b2, 2)
}

func TestReloadFromStorage(t *testing.T) {
	b, store, _ := newTestChain(t)
	genesis := testGenesis()

	b1 := childOf(genesis, genesis.Block(), 1)
	b2 := childOf(genesis, b1, 2)
	b.HandleIncomingBlock(b1)
	b.HandleIncomingBlock(b2)

	reloaded, err := blockchain.FromStorage(genesis, store)
	if err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal(reloaded.GetChainState(), b.GetChainState()); diff != nil {
		t.Fatal(diff)
	}
}

func TestStartupFailsWithBrokenTip(t *testing.T) {
	store := storage.NewMemoryStorage()
	if err := store.SetTag(blockchain.TipTag, chainhash.HashH([]byte("missing"))); err != nil {
		t.Fatal(err)
	}

	if _, err := blockchain.FromStorage(testGenesis(), store); err == nil {
		t.Fatal("expected loading a chain with a missing tip to fail")
	}
}

func TestGetBlockRange(t *testing.T) {
	b, _, _ := newTestChain(t)
	genesis := testGenesis()

	b1 := childOf(genesis, genesis.Block(), 1)
	b2 := childOf(genesis, b1, 2)
	b3 := childOf(genesis, b2, 3)
	side := childOf(genesis, genesis.Block(), 4)
	for _, block := range []*primitives.Block{b1, b2, b3, side} {
		b.HandleIncomingBlock(block)
	}

	blocks, err := b.GetBlockRange(b1.Hash(), b3.Hash())
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 2 || blocks[0].Hash() != b2.Hash() || blocks[1].Hash() != b3.Hash() {
		t.Fatal("expected blocks 2 and 3 in order")
	}

	blocks, err = b.GetBlockRange(b2.Hash(), b2.Hash())
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 1 || blocks[0].Hash() != b2.Hash() {
		t.Fatal("expected the single requested block")
	}

	_, err = b.GetBlockRange(side.Hash(), b3.Hash())
	if errors.Cause(err) != blockchain.ErrNotAncestor {
		t.Fatalf("expected ErrNotAncestor, got %v", err)
	}

	_, err = b.GetBlockRange(b1.Hash(), chainhash.HashH([]byte("unknown")))
	if errors.Cause(err) != blockchain.ErrBlockNotFound {
		t.Fatalf("expected ErrBlockNotFound, got %v", err)
	}
}

func TestGetHeaders(t *testing.T) {
	b, _, _ := newTestChain(t)
	genesis := testGenesis()

	b1 := childOf(genesis, genesis.Block(), 1)
	b2 := childOf(genesis, b1, 2)
	b3 := childOf(genesis, b2, 3)
	for _, block := range []*primitives.Block{b1, b2, b3} {
		b.HandleIncomingBlock(block)
	}

	headers, err := b.GetHeaders([]chainhash.Hash{chainhash.HashH([]byte("unknown")), b1.Hash()}, b3.Hash(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal(headers, []*primitives.BlockHeader{&b2.BlockHeader, &b3.BlockHeader}); diff != nil {
		t.Fatal(diff)
	}

	headers, err = b.GetHeaders(nil, b3.Hash(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal(headers, []*primitives.BlockHeader{&b1.BlockHeader, &b2.BlockHeader}); diff != nil {
		t.Fatal(diff)
	}
}

func TestValidateBlock(t *testing.T) {
	b, _, _ := newTestChain(t)
	genesis := testGenesis()

	b1 := childOf(genesis, genesis.Block(), 1)
	if err := b.ValidateBlock(b1); err != nil {
		t.Fatal(err)
	}

	tampered := childOf(genesis, genesis.Block(), 2)
	tampered.BlockBody.Transactions[0].Nonce = 3
	if err := b.ValidateBlock(tampered); err != primitives.ErrInvalidContentHash {
		t.Fatalf("expected ErrInvalidContentHash, got %v", err)
	}

	early := primitives.NewBlock(genesis.Hash(), genesis.Date, nil)
	if err := b.ValidateBlock(early); err == nil {
		t.Fatal("expected block dated at its parent's date to be invalid")
	}
}
