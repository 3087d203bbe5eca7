package main

import (
	"os"

	"github.com/dmitrijs2005/signerrelay/cmd/relayctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
