package commands

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Klingon-tech/klingpay/config"
	"github.com/Klingon-tech/klingpay/internal/rpcclient"
)

var (
	rpcURL   string
	network  string
	timeout  time.Duration
	jsonOut  bool
	retries  int
	client   *rpcclient.Client
	colors   = defaultColors()
	password string
)

// Execute builds the command tree and runs it against os.Args.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "klingpay-cli",
		Short:         "Command-line client for a klingpay node",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if rpcURL == "" {
				url, err := defaultRPCURL(network)
				if err != nil {
					return err
				}
				rpcURL = url
			}
			client = rpcclient.New(rpcURL,
				rpcclient.WithTimeout(timeout),
				rpcclient.WithUserAgent("klingpay-cli/"+config.Version),
				rpcclient.WithRateLimitRetries(retries, time.Second),
			)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&rpcURL, "rpc", "", "node RPC endpoint (default from --network)")
	root.PersistentFlags().StringVar(&network, "network", "mainnet", "network: mainnet or devnet")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")
	root.PersistentFlags().BoolVar(&jsonOut, "json", false, "print raw JSON results")
	root.PersistentFlags().IntVar(&retries, "retries", 2, "retries when the node rate limits a call")

	root.AddCommand(
		statusCmd(),
		mnemonicCmd(),
		keyCmd(),
		walletCmd(),
		balanceCmd(),
		tokensCmd(),
		quoteCmd(),
		priceCmd(),
		holdingsCmd(),
		tradeCmd(),
	)
	return root
}

func defaultRPCURL(network string) (string, error) {
	switch config.NetworkType(network) {
	case config.Mainnet:
		return fmt.Sprintf("http://127.0.0.1:%d/", config.DefaultMainnet().RPC.Port), nil
	case config.Devnet:
		return fmt.Sprintf("http://127.0.0.1:%d/", config.DefaultDevnet().RPC.Port), nil
	default:
		return "", fmt.Errorf("unknown network %q (want mainnet or devnet)", network)
	}
}

// call runs one RPC method with the configured timeout.
func call(method string, params, result interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.CallContext(ctx, method, params, result); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// walletPassword returns --password when set, otherwise prompts for it.
func walletPassword(prompt string) (string, error) {
	if password != "" {
		return password, nil
	}
	pw, err := readPassword(prompt)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return pw, nil
}
