// klingpay-cli is the command-line client for a klingpayd node.
package main

import (
	"os"

	"github.com/Klingon-tech/klingpay/cmd/klingpay-cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		commands.PrintError(err)
		os.Exit(1)
	}
}
