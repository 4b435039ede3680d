package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/klingpay/internal/rpc"
)

func walletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Manage encrypted wallets on the node",
	}
	cmd.PersistentFlags().StringVar(&password, "password", "", "wallet password (prompted when empty)")

	cmd.AddCommand(
		walletCreateCmd(),
		walletImportCmd(),
		walletListCmd(),
		walletNewAddressCmd(),
		walletAddressesCmd(),
		walletExportKeyCmd(),
		walletSignCmd(),
	)
	return cmd
}

func walletCreateCmd() *cobra.Command {
	var words int
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a wallet with a fresh mnemonic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := newPassword()
			if err != nil {
				return err
			}
			var res rpc.WalletCreateResult
			if err := call("wallet_create", rpc.WalletCreateParam{Name: args[0], Password: pw, Words: words}, &res); err != nil {
				return err
			}
			return render(res, func() {
				colors.Success.Printf("Wallet %q created\n", args[0])
				printFields(
					field{"Solana", res.Address},
					field{"EVM", res.EVMAddress},
				)
				fmt.Println()
				colors.Warn.Println("Recovery phrase (shown once, write it down):")
				fmt.Println(res.Mnemonic)
			})
		},
	}
	cmd.Flags().IntVar(&words, "words", 24, "word count: 12 or 24")
	return cmd
}

func walletImportCmd() *cobra.Command {
	var passphrase string
	cmd := &cobra.Command{
		Use:   "import <name> <words...>",
		Short: "Import a wallet from an existing mnemonic",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := newPassword()
			if err != nil {
				return err
			}
			var res rpc.WalletImportResult
			if err := call("wallet_import", rpc.WalletImportParam{
				Name:       args[0],
				Password:   pw,
				Mnemonic:   strings.Join(args[1:], " "),
				Passphrase: passphrase,
			}, &res); err != nil {
				return err
			}
			return render(res, func() {
				colors.Success.Printf("Wallet %q imported\n", args[0])
				printFields(
					field{"Solana", res.Address},
					field{"EVM", res.EVMAddress},
				)
			})
		},
	}
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "optional BIP-39 passphrase")
	return cmd
}

func walletListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List wallets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var res rpc.WalletListResult
			if err := call("wallet_list", nil, &res); err != nil {
				return err
			}
			return render(res, func() {
				if len(res.Wallets) == 0 {
					fmt.Println("No wallets.")
					return
				}
				for _, name := range res.Wallets {
					fmt.Println(name)
				}
			})
		},
	}
}

func walletNewAddressCmd() *cobra.Command {
	var chain, label string
	cmd := &cobra.Command{
		Use:   "new-address <name>",
		Short: "Derive the next account for a chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := walletPassword("Enter password: ")
			if err != nil {
				return err
			}
			var res rpc.WalletAccountEntry
			if err := call("wallet_newAddress", rpc.WalletNewAddressParam{
				Name: args[0], Password: pw, Chain: chain, Label: label,
			}, &res); err != nil {
				return err
			}
			return render(res, func() { printAccount(res) })
		},
	}
	cmd.Flags().StringVar(&chain, "chain", "solana", "chain: solana or evm")
	cmd.Flags().StringVar(&label, "label", "", "account label")
	return cmd
}

func walletAddressesCmd() *cobra.Command {
	var chain string
	cmd := &cobra.Command{
		Use:   "addresses <name>",
		Short: "List the accounts of a wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res rpc.WalletAddressListResult
			if err := call("wallet_listAddresses", rpc.WalletNameParam{Name: args[0], Chain: chain}, &res); err != nil {
				return err
			}
			return render(res, func() {
				for _, a := range res.Accounts {
					colors.Key.Printf("%-7s %-20s ", a.Chain, a.Path)
					colors.Value.Printf("%s  ", a.Address)
					fmt.Println(a.Name)
				}
			})
		},
	}
	cmd.Flags().StringVar(&chain, "chain", "", "filter by chain")
	return cmd
}

func walletExportKeyCmd() *cobra.Command {
	var (
		chain string
		index uint32
	)
	cmd := &cobra.Command{
		Use:   "export-key <name>",
		Short: "Print the private key of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := walletPassword("Enter password: ")
			if err != nil {
				return err
			}
			var res rpc.WalletExportKeyResult
			if err := call("wallet_exportKey", rpc.WalletExportKeyParam{
				Name: args[0], Password: pw, Chain: chain, Index: index,
			}, &res); err != nil {
				return err
			}
			return render(res, func() {
				colors.Warn.Println("Anyone holding this key controls the account.")
				printFields(
					field{"Chain", res.Chain},
					field{"Address", res.Address},
					field{"Public key", res.PubKey},
					field{"Private key", res.PrivateKey},
				)
			})
		},
	}
	cmd.Flags().StringVar(&chain, "chain", "solana", "chain: solana or evm")
	cmd.Flags().Uint32Var(&index, "index", 0, "account index")
	return cmd
}

func walletSignCmd() *cobra.Command {
	var encoding string
	cmd := &cobra.Command{
		Use:   "sign <name> <address> <message>",
		Short: "Sign a message with a wallet account",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := walletPassword("Enter password: ")
			if err != nil {
				return err
			}
			var res rpc.WalletSignMessageResult
			if err := call("wallet_signMessage", rpc.WalletSignMessageParam{
				Name: args[0], Password: pw, Address: args[1], Message: args[2], Encoding: encoding,
			}, &res); err != nil {
				return err
			}
			return render(res, func() {
				printFields(
					field{"Chain", res.Chain},
					field{"Address", res.Address},
					field{"Signature", res.Signature},
				)
			})
		},
	}
	cmd.Flags().StringVar(&encoding, "encoding", "utf8", "message encoding: utf8, hex or base58")
	return cmd
}

func printAccount(a rpc.WalletAccountEntry) {
	printFields(
		field{"Name", a.Name},
		field{"Chain", a.Chain},
		field{"Path", a.Path},
		field{"Address", a.Address},
	)
}

// newPassword prompts twice unless --password is set.
func newPassword() (string, error) {
	if password != "" {
		return password, nil
	}
	pw, err := readPassword("New password: ")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if string(pw) != string(confirm) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(pw), nil
}
