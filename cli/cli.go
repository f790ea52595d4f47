package cli

import (
	"context"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"

	"github.com/phoreproject/xchain/chainhash"
	"github.com/phoreproject/xchain/primitives"
)

// NodeClient is the part of the RPC client used by the shell.
type NodeClient interface {
	GetBlockTip(ctx context.Context) (*primitives.BlockHeader, error)
	GetBlockHeaders(ctx context.Context, locator []chainhash.Hash, target chainhash.Hash) ([]primitives.BlockHeader, error)
	GetBlocks(ctx context.Context, from chainhash.Hash, to chainhash.Hash) ([]*primitives.Block, error)
	SubmitTransaction(ctx context.Context, tx *primitives.Transaction) (chainhash.Hash, error)
}

// NodeCMD handles shell commands against a node.
type NodeCMD struct {
	client   NodeClient
	timeout  time.Duration
	ExitChan chan struct{}

	out    io.Writer
	errOut io.Writer
	color  *color.Color
	errCol *color.Color
}

// NewNodeCMD creates a new NodeCMD writing results to out and failures to
// errOut.
func NewNodeCMD(client NodeClient, timeout time.Duration, out io.Writer, errOut io.Writer) *NodeCMD {
	return &NodeCMD{
		client:   client,
		timeout:  timeout,
		ExitChan: make(chan struct{}, 1),
		out:      out,
		errOut:   errOut,
		color:    color.New(color.FgCyan),
		errCol:   color.New(color.FgRed, color.Bold),
	}
}

// Commands maps command names to their handlers.
func (n *NodeCMD) Commands() map[string]func(args []string) {
	return map[string]func(args []string){
		"tip":     n.Tip,
		"headers": n.Headers,
		"blocks":  n.Blocks,
		"submit":  n.Submit,
		"exit":    n.Exit,
	}
}

// Run runs a single command line already split into words. It returns false
// if the command is unknown.
func (n *NodeCMD) Run(args []string) bool {
	if len(args) == 0 || args[0] == "" {
		return true
	}
	f, found := n.Commands()[args[0]]
	if !found {
		n.errf("invalid command: %s\n", args[0])
		return false
	}
	f(args[1:])
	return true
}

func (n *NodeCMD) println(a ...interface{}) {
	_, _ = n.color.Fprintln(n.out, a...)
}

func (n *NodeCMD) printf(f string, a ...interface{}) {
	_, _ = n.color.Fprintf(n.out, f, a...)
}

func (n *NodeCMD) errln(a ...interface{}) {
	_, _ = n.errCol.Fprintln(n.errOut, a...)
}

func (n *NodeCMD) errf(f string, a ...interface{}) {
	_, _ = n.errCol.Fprintf(n.errOut, f, a...)
}

func (n *NodeCMD) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), n.timeout)
}

func (n *NodeCMD) printHeader(h *primitives.BlockHeader) {
	n.printf("%s parent=%s date=%s content=%s\n", h.Hash(), h.ParentHash, h.Date, h.ContentHash)
}

func parseHashes(args []string) ([]chainhash.Hash, error) {
	hashes := make([]chainhash.Hash, len(args))
	for i, a := range args {
		h, err := chainhash.NewHashFromStr(a)
		if err != nil {
			return nil, err
		}
		hashes[i] = *h
	}
	return hashes, nil
}

// Exit exits the shell.
func (n *NodeCMD) Exit(args []string) {
	n.println("Exiting...")
	select {
	case n.ExitChan <- struct{}{}:
	default:
	}
}

// Tip prints the header of the node's tip.
func (n *NodeCMD) Tip(args []string) {
	if len(args) != 0 {
		n.errln("Usage: tip")
		return
	}

	ctx, cancel := n.context()
	defer cancel()

	header, err := n.client.GetBlockTip(ctx)
	if err != nil {
		n.errf("Error getting tip: %s\n", err)
		return
	}
	n.printHeader(header)
}

// Headers prints the headers up to a target, starting after the first known
// locator hash.
func (n *NodeCMD) Headers(args []string) {
	if len(args) < 1 {
		n.errln("Usage: headers <target> [locator...]")
		return
	}

	hashes, err := parseHashes(args)
	if err != nil {
		n.errf("Invalid hash: %s\n", err)
		return
	}

	ctx, cancel := n.context()
	defer cancel()

	headers, err := n.client.GetBlockHeaders(ctx, hashes[1:], hashes[0])
	if err != nil {
		n.errf("Error getting headers: %s\n", err)
		return
	}
	for i := range headers {
		n.printHeader(&headers[i])
	}
	n.printf("%d headers\n", len(headers))
}

// Blocks prints the blocks after from up to and including to.
func (n *NodeCMD) Blocks(args []string) {
	if len(args) != 2 {
		n.errln("Usage: blocks <from> <to>")
		return
	}

	hashes, err := parseHashes(args)
	if err != nil {
		n.errf("Invalid hash: %s\n", err)
		return
	}

	ctx, cancel := n.context()
	defer cancel()

	blocks, err := n.client.GetBlocks(ctx, hashes[0], hashes[1])
	if err != nil {
		n.errf("Error getting blocks: %s\n", err)
		return
	}
	for _, b := range blocks {
		n.printHeader(&b.BlockHeader)
		for i := range b.BlockBody.Transactions {
			tx := &b.BlockBody.Transactions[i]
			n.printf("  tx %s nonce=%d payload=%q\n", tx.ID(), tx.Nonce, tx.Payload)
		}
	}
}

// Submit sends a transaction to the node.
func (n *NodeCMD) Submit(args []string) {
	if len(args) != 2 {
		n.errln("Usage: submit <nonce> <payload>")
		return
	}

	nonce, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		n.errf("Error parsing nonce: %s\n", args[0])
		return
	}

	ctx, cancel := n.context()
	defer cancel()

	id, err := n.client.SubmitTransaction(ctx, &primitives.Transaction{Nonce: nonce, Payload: []byte(args[1])})
	if err != nil {
		n.errf("Error submitting transaction: %s\n", err)
		return
	}
	n.printf("Submitted transaction %s\n", id)
}
