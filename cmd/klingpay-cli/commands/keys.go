package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/klingpay/internal/rpc"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show node information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var info rpc.NodeInfoResult
			if err := call("node_getInfo", nil, &info); err != nil {
				return err
			}
			return render(info, func() {
				printTitle("Node")
				printFields(
					field{"Version", info.Version},
					field{"Network", info.Network},
					field{"Uptime", (time.Duration(info.UptimeSeconds) * time.Second).String()},
					field{"Endpoint", client.Endpoint()},
					field{"Solana RPCs", info.SolanaEndpoints},
					field{"Wallet", enabled(info.Wallet)},
					field{"Market", enabled(info.Market)},
					field{"Trade", enabled(info.Trade)},
				)
			})
		},
	}
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

func mnemonicCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mnemonic",
		Short: "Generate or validate BIP-39 mnemonics",
	}

	var words int
	gen := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new mnemonic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var res rpc.MnemonicResult
			if err := call("mnemonic_generate", rpc.MnemonicGenerateParam{Words: words}, &res); err != nil {
				return err
			}
			return render(res, func() {
				colors.Warn.Println("Write these words down and keep them offline:")
				fmt.Println(res.Mnemonic)
			})
		},
	}
	gen.Flags().IntVar(&words, "words", 24, "word count: 12 or 24")

	validate := &cobra.Command{
		Use:   "validate <words...>",
		Short: "Check a mnemonic and print its normalized form",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res rpc.MnemonicValidateResult
			if err := call("mnemonic_validate", rpc.MnemonicParam{Mnemonic: strings.Join(args, " ")}, &res); err != nil {
				return err
			}
			return render(res, func() {
				if !res.Valid {
					colors.Error.Printf("Invalid mnemonic: %s\n", res.Reason)
					return
				}
				colors.Success.Println("Valid mnemonic")
				printFields(field{"Normalized", res.Normalized})
			})
		},
	}

	cmd.AddCommand(gen, validate)
	return cmd
}

func keyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Key derivation tools",
	}

	var params rpc.KeyDeriveParam
	derive := &cobra.Command{
		Use:   "derive <words...>",
		Short: "Derive a public key and address from a mnemonic",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params.Mnemonic = strings.Join(args, " ")
			var res rpc.KeyDeriveResult
			if err := call("key_derive", params, &res); err != nil {
				return err
			}
			return render(res, func() {
				printFields(
					field{"Chain", res.Chain},
					field{"Path", res.Path},
					field{"Public key", res.PublicKey},
					field{"Address", res.Address},
				)
			})
		},
	}
	derive.Flags().StringVar(&params.Path, "path", "m/44'/501'/0'/0'", "derivation path")
	derive.Flags().StringVar(&params.Chain, "chain", "solana", "chain: solana or evm")
	derive.Flags().StringVar(&params.Passphrase, "passphrase", "", "optional BIP-39 passphrase")

	cmd.AddCommand(derive)
	return cmd
}
