package rpc_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/go-test/deep"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/phoreproject/xchain/blockchain"
	"github.com/phoreproject/xchain/chainhash"
	"github.com/phoreproject/xchain/clock"
	"github.com/phoreproject/xchain/intercom"
	"github.com/phoreproject/xchain/node"
	"github.com/phoreproject/xchain/primitives"
	"github.com/phoreproject/xchain/rpc"
	"github.com/phoreproject/xchain/storage"
	"github.com/phoreproject/xchain/task"
	"github.com/phoreproject/xchain/tpool"
)

type testNode struct {
	chain      *blockchain.Blockchain
	genesis    *primitives.GenesisData
	pool       *node.TransactionPool
	clientTask *task.InputTask[intercom.ClientMsg]
	txTask     *task.InputTask[intercom.TransactionMsg]
	client     *rpc.Client
	server     *grpc.Server
}

func newTestNode(t *testing.T) *testNode {
	genesis := primitives.DefaultGenesis
	chain, err := blockchain.FromStorage(&genesis, storage.NewMemoryStorage())
	if err != nil {
		t.Fatal(err)
	}
	pool := tpool.New[chainhash.Hash, *primitives.Transaction](clock.System)

	clientHandler := node.NewClientHandler(chain)
	txHandler := node.NewTransactionHandler(pool, task.MessageBox[intercom.NetworkMsg]{})

	n := &testNode{
		chain:      chain,
		genesis:    &genesis,
		pool:       pool,
		clientTask: task.SpawnWithInput("client", clientHandler.Run),
		txTask:     task.SpawnWithInput("transactions", txHandler.Run),
	}

	lis := bufconn.Listen(1 << 20)
	n.server = rpc.NewGRPCServer(rpc.NewServer(n.clientTask.MessageBox(), n.txTask.MessageBox()))
	go rpc.Serve(lis, n.server)

	conn, err := grpc.Dial("bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	n.client = rpc.NewClient(conn)
	return n
}

func (n *testNode) stop() {
	n.client.Close()
	n.server.Stop()
	n.clientTask.Close()
	n.txTask.Close()
	n.clientTask.Wait()
	n.txTask.Wait()
}

func (n *testNode) extend(t *testing.T, count int) []*primitives.Block {
	parent := n.genesis.Hash()
	date := n.genesis.Date
	var blocks []*primitives.Block
	for i := 0; i < count; i++ {
		date = date.Next(n.genesis.SlotsPerEpoch)
		b := primitives.NewBlock(parent, date, []primitives.Transaction{{Nonce: uint64(i), Payload: []byte("rpc")}})
		n.chain.HandleIncomingBlock(b)
		blocks = append(blocks, b)
		parent = b.Hash()
	}
	if tip, _ := n.chain.GetTip(); tip != parent {
		t.Fatal("expected chain to be extended")
	}
	return blocks
}

func testContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func TestGetBlockTip(t *testing.T) {
	n := newTestNode(t)
	defer n.stop()
	ctx, cancel := testContext()
	defer cancel()

	tip, err := n.client.GetBlockTip(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if tip.Hash() != n.genesis.Hash() {
		t.Fatal("expected genesis tip")
	}

	blocks := n.extend(t, 3)
	tip, err = n.client.GetBlockTip(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal(*tip, blocks[2].BlockHeader); diff != nil {
		t.Fatal(diff)
	}
}

func TestGetBlockHeaders(t *testing.T) {
	n := newTestNode(t)
	defer n.stop()
	ctx, cancel := testContext()
	defer cancel()

	blocks := n.extend(t, 4)
	headers, err := n.client.GetBlockHeaders(ctx, []chainhash.Hash{blocks[1].Hash()}, blocks[3].Hash())
	if err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal(headers, []primitives.BlockHeader{blocks[2].BlockHeader, blocks[3].BlockHeader}); diff != nil {
		t.Fatal(diff)
	}
}

func TestGetBlocks(t *testing.T) {
	n := newTestNode(t)
	defer n.stop()
	ctx, cancel := testContext()
	defer cancel()

	blocks := n.extend(t, 5)
	got, err := n.client.GetBlocks(ctx, blocks[0].Hash(), blocks[4].Hash())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(got))
	}
	for i, b := range got {
		if b.Hash() != blocks[i+1].Hash() {
			t.Fatalf("block %d is out of order", i)
		}
	}

	_, err = n.client.GetBlocks(ctx, n.genesis.Hash(), chainhash.HashH([]byte("unknown")))
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestSubmitTransaction(t *testing.T) {
	n := newTestNode(t)
	defer n.stop()
	ctx, cancel := testContext()
	defer cancel()

	tx := &primitives.Transaction{Nonce: 7, Payload: []byte("submit")}
	id, err := n.client.SubmitTransaction(ctx, tx)
	if err != nil {
		t.Fatal(err)
	}
	if id != tx.ID() {
		t.Fatal("expected transaction id")
	}
	if !n.pool.Exist(id) {
		t.Fatal("expected transaction in the pool")
	}
}

func TestUnavailableAfterShutdown(t *testing.T) {
	n := newTestNode(t)
	defer n.stop()
	ctx, cancel := testContext()
	defer cancel()

	n.clientTask.Close()
	n.clientTask.Wait()

	_, err := n.client.GetBlockTip(ctx)
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}
}
