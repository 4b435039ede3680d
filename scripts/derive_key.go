// derive_key.go prints the Solana and EVM addresses a mnemonic derives to.
// Usage: go run scripts/derive_key.go <mnemonic-file> [account-count]
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/Klingon-tech/klingpay/internal/wallet"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: derive_key <mnemonic-file> [account-count]")
		os.Exit(1)
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	count := 1
	if len(os.Args) > 2 {
		count, err = strconv.Atoi(os.Args[2])
		if err != nil || count < 1 {
			fmt.Fprintln(os.Stderr, "account-count must be a positive integer")
			os.Exit(1)
		}
	}

	seed, err := wallet.SeedFromMnemonic(string(data), os.Getenv("MNEMONIC_PASSPHRASE"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	for i := 0; i < count; i++ {
		for _, chain := range []wallet.Chain{wallet.ChainSolana, wallet.ChainEVM} {
			acct, err := wallet.DeriveAccount(seed, chain, uint32(i))
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			fmt.Printf("%-6s %-20s %s\n", acct.Chain, acct.Path, acct.Address)
		}
	}
}
