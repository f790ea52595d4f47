package node_test

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/phoreproject/xchain/config"
	"github.com/phoreproject/xchain/node"
	"github.com/phoreproject/xchain/primitives"
	"github.com/phoreproject/xchain/rpc"
)

func TestAppProducesBlocks(t *testing.T) {
	options := config.NewOptions()
	options.InMemory = true
	options.P2PListen = "/ip4/127.0.0.1/tcp/0"
	options.RPCListen = "/ip4/127.0.0.1/tcp/0"
	options.Leader = true
	options.LeadershipInterval = 100 * time.Millisecond

	app, err := node.NewApp(options)
	if err != nil {
		t.Fatal(err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Run()
	}()

	select {
	case <-app.Ready():
	case err := <-errChan:
		t.Fatal(err)
	case <-time.After(10 * time.Second):
		t.Fatal("node did not start")
	}

	conn, err := grpc.Dial(app.RPCAddr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	client := rpc.NewClient(conn)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	genesis := primitives.DefaultGenesis
	tip, err := client.GetBlockTip(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if tip.Hash() != genesis.Hash() {
		t.Fatal("expected new node to be at genesis")
	}

	tx := &primitives.Transaction{Nonce: 1, Payload: []byte("hello")}
	id, err := client.SubmitTransaction(ctx, tx)
	if err != nil {
		t.Fatal(err)
	}
	if id != tx.ID() {
		t.Fatal("expected transaction id in reply")
	}

	for {
		tip, err := client.GetBlockTip(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if tip.ParentHash == genesis.Hash() {
			break
		}
		select {
		case <-ctx.Done():
			t.Fatal("node did not produce a block")
		case <-time.After(50 * time.Millisecond):
		}
	}

	blocks, err := client.GetBlocks(ctx, genesis.Hash(), app.GetBlockchain().GetChainState().LastBlock)
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) == 0 || blocks[0].BlockBody.Transactions[0].ID() != tx.ID() {
		t.Fatal("expected produced block with the submitted transaction")
	}

	app.Exit()
	select {
	case err := <-errChan:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("node did not exit")
	}
}

func TestNewAppInvalidOptions(t *testing.T) {
	options := config.NewOptions()
	options.TransactionExpiry = 0
	if _, err := node.NewApp(options); err == nil {
		t.Fatal("expected invalid options to be refused")
	}
}
