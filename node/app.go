package node

import (
	"context"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/phoreproject/xchain/blockchain"
	"github.com/phoreproject/xchain/chainhash"
	"github.com/phoreproject/xchain/clock"
	"github.com/phoreproject/xchain/config"
	"github.com/phoreproject/xchain/intercom"
	"github.com/phoreproject/xchain/network"
	"github.com/phoreproject/xchain/primitives"
	"github.com/phoreproject/xchain/rpc"
	"github.com/phoreproject/xchain/storage"
	"github.com/phoreproject/xchain/task"
	"github.com/phoreproject/xchain/tpool"
)

// App runs a node: the blockchain, the transaction pool and the tasks
// working on them.
type App struct {
	options config.Options
	genesis primitives.GenesisData
	clock   clock.Clock
	dataDir string

	storage storage.Storage
	chain   *blockchain.Blockchain
	pool    *TransactionPool

	network      *network.Service
	networkReady chan *network.Service
	rpcServer    *grpc.Server
	rpcListener  net.Listener

	transactionTask *task.InputTask[intercom.TransactionMsg]
	blockTask       *task.InputTask[intercom.BlockMsg]
	clientTask      *task.InputTask[intercom.ClientMsg]
	networkTask     *task.InputTask[intercom.NetworkMsg]
	leadershipTask  *task.Task

	ctx      context.Context
	cancel   context.CancelFunc
	ready    chan struct{}
	exitChan chan struct{}
	exitOnce sync.Once
}

// NewApp creates a node from its options.
func NewApp(options config.Options) (*App, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		options:      options,
		genesis:      primitives.DefaultGenesis,
		clock:        clock.System,
		networkReady: make(chan *network.Service, 1),
		ctx:          ctx,
		cancel:       cancel,
		ready:        make(chan struct{}),
		exitChan:     make(chan struct{}),
	}, nil
}

// Run starts the node and blocks until it is asked to exit, by Exit or by a
// signal. Errors starting the node are returned.
func (app *App) Run() error {
	defer app.cancel()

	if err := app.loadClock(); err != nil {
		return err
	}
	if err := app.loadStorage(); err != nil {
		return err
	}
	if err := app.loadBlockchain(); err != nil {
		_ = app.storage.Close()
		return err
	}

	app.pool = tpool.New[chainhash.Hash, *primitives.Transaction](app.clock)
	app.spawnTasks()

	if err := app.loadNetwork(); err != nil {
		app.shutdown()
		return err
	}
	if err := app.createRPCServer(); err != nil {
		app.shutdown()
		return err
	}

	close(app.ready)
	app.waitForExit()
	app.shutdown()

	logger.Info("exited")
	return nil
}

func (app *App) loadClock() error {
	if !app.options.NTP {
		return nil
	}

	c := clock.NewNTPClock(clock.DefaultNTPServer)
	if err := c.Sync(); err != nil {
		logger.WithError(err).Warn("using computer time")
	}
	app.clock = c
	return nil
}

func (app *App) loadStorage() error {
	if app.options.InMemory {
		logger.Info("initializing in-memory storage")
		s, err := storage.Init(storage.Config{InMemory: true})
		if err != nil {
			return err
		}
		app.storage = s
		return nil
	}

	dir, err := app.options.DataDirectory()
	if err != nil {
		return errors.Wrap(err, "could not get data directory")
	}
	app.dataDir = dir

	logger.WithField("dir", dir).Info("initializing storage")
	s, err := storage.Init(storage.NewConfig(filepath.Join(dir, "db")))
	if err != nil {
		return err
	}
	app.storage = s
	return nil
}

func (app *App) loadBlockchain() error {
	chain, err := blockchain.FromStorage(&app.genesis, app.storage)
	if err != nil {
		return err
	}
	app.chain = chain
	return nil
}

func (app *App) spawnTasks() {
	app.networkTask = task.SpawnWithInput("network", func(in <-chan intercom.NetworkMsg) {
		s, ok := <-app.networkReady
		if !ok {
			for range in {
			}
			return
		}
		s.Run(in)
	})
	networkBox := app.networkTask.MessageBox()

	app.chain.SetSollicitor(blockchain.SollicitorFunc(func(h chainhash.Hash) {
		networkBox.SendOrLog(intercom.SollicitBlock{Hash: h})
	}))

	transactions := NewTransactionHandler(app.pool, networkBox)
	app.transactionTask = task.SpawnWithInput("transaction", transactions.Run)

	blocks := NewBlockHandler(app.chain, app.pool, networkBox)
	app.blockTask = task.SpawnWithInput("block", blocks.Run)

	client := NewClientHandler(app.chain)
	app.clientTask = task.SpawnWithInput("client-query", client.Run)

	leadership := NewLeadership(app.chain, app.pool, app.blockTask.MessageBox(), app.options.Leader, app.options.TransactionExpiry)
	app.leadershipTask = task.Spawn("leadership", func() {
		leadership.Run(app.ctx, app.options.LeadershipInterval)
	})
}

func (app *App) loadNetwork() error {
	logger.Info("loading P2P")

	keyPath := ""
	if app.dataDir != "" {
		keyPath = filepath.Join(app.dataDir, "hostkey")
	}
	key, err := network.LoadHostKey(keyPath)
	if err != nil {
		close(app.networkReady)
		return err
	}

	c := network.NewConfig()
	c.ListenAddress = app.options.P2PListen
	c.Peers = network.ParseInitialConnections(app.options.InitialConnections)
	c.PrivateKey = key
	c.UseMDNS = app.options.MDNS

	s, err := network.NewService(app.ctx, c, network.Inbound{
		Blocks:       app.blockTask.MessageBox(),
		Transactions: app.transactionTask.MessageBox(),
		Client:       app.clientTask.MessageBox(),
		Index:        app.chain,
	})
	if err != nil {
		close(app.networkReady)
		return err
	}

	app.network = s
	app.networkReady <- s
	return nil
}

func (app *App) createRPCServer() error {
	lis, err := rpc.Listen(app.options.RPCListen)
	if err != nil {
		return err
	}

	app.rpcListener = lis
	app.rpcServer = rpc.NewGRPCServer(rpc.NewServer(app.clientTask.MessageBox(), app.transactionTask.MessageBox()))
	go rpc.Serve(lis, app.rpcServer)
	return nil
}

func (app *App) waitForExit() {
	signalHandler := make(chan os.Signal, 1)
	signal.Notify(signalHandler, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalHandler)

	select {
	case <-signalHandler:
	case <-app.exitChan:
	}

	logger.Info("exiting")
}

// shutdown stops whatever was started, in reverse order.
func (app *App) shutdown() {
	app.cancel()

	if app.rpcServer != nil {
		app.rpcServer.Stop()
	}
	if app.network != nil {
		if err := app.network.Close(); err != nil {
			logger.WithError(err).Warn("could not close network")
		}
	}

	app.leadershipTask.Wait()
	for _, t := range []interface {
		Close()
		Wait()
	}{app.transactionTask, app.blockTask, app.clientTask, app.networkTask} {
		t.Close()
		t.Wait()
	}

	if err := app.storage.Close(); err != nil {
		logger.WithError(err).Warn("could not close storage")
	}
}

// Exit asks the node to stop.
func (app *App) Exit() {
	app.exitOnce.Do(func() {
		close(app.exitChan)
	})
}

// Ready is closed once the node is running.
func (app *App) Ready() <-chan struct{} {
	return app.ready
}

// RPCAddr gets the address the RPC server listens on.
func (app *App) RPCAddr() net.Addr {
	return app.rpcListener.Addr()
}

// GetBlockchain gets the blockchain.
func (app *App) GetBlockchain() *blockchain.Blockchain {
	return app.chain
}

// GetNetwork gets the network service.
func (app *App) GetNetwork() *network.Service {
	return app.network
}
