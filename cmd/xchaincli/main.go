package main

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	logger "github.com/sirupsen/logrus"

	"github.com/phoreproject/xchain/cli"
	"github.com/phoreproject/xchain/rpc"
)

func commandCompleter(d prompt.Document) []prompt.Suggest {
	s := []prompt.Suggest{
		{Text: "tip", Description: "Gets the header of the node's tip"},
		{Text: "headers", Description: "Gets headers up to a target block"},
		{Text: "blocks", Description: "Gets the blocks between two hashes"},
		{Text: "submit", Description: "Submits a transaction"},
		{Text: "exit", Description: "Exits the shell"},
	}
	return prompt.FilterHasPrefix(s, d.GetWordBeforeCursor(), true)
}

func exit(*prompt.Buffer) {
	os.Exit(0)
}

func main() {
	rpcConnect := flag.String("rpcconnect", "/ip4/127.0.0.1/tcp/20002", "rpc multiaddr of the node to connect to")
	timeout := flag.Duration("timeout", 10*time.Second, "timeout of a single command")

	flag.Parse()

	client, err := rpc.Dial(*rpcConnect)
	if err != nil {
		logger.Fatal(err)
	}
	defer client.Close()

	nodeCMD := cli.NewNodeCMD(client, *timeout, os.Stdout, os.Stderr)

	// commands given on the command line run once without a prompt
	if flag.NArg() > 0 {
		if !nodeCMD.Run(flag.Args()) {
			os.Exit(1)
		}
		return
	}

	go func() {
		<-nodeCMD.ExitChan
		exit(nil)
	}()

	for {
		out := prompt.Input("> ", commandCompleter,
			prompt.OptionAddKeyBind(prompt.KeyBind{Key: prompt.ControlC, Fn: exit}),
			prompt.OptionAddKeyBind(prompt.KeyBind{Key: prompt.ControlD, Fn: exit}))

		nodeCMD.Run(strings.Fields(out))
	}
}
