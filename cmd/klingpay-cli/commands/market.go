package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/klingpay/internal/chainrpc"
	"github.com/Klingon-tech/klingpay/internal/market"
	"github.com/Klingon-tech/klingpay/internal/rpc"
)

func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <address>",
		Short: "Show the SOL balance of an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var bal chainrpc.Balance
			if err := call("solana_getBalance", rpc.AddressParam{Address: args[0]}, &bal); err != nil {
				return err
			}
			return render(bal, func() {
				printFields(
					field{"Address", bal.Address},
					field{"Balance", bal.SOL + " SOL"},
					field{"Lamports", bal.Lamports},
					field{"Slot", bal.Slot},
				)
			})
		},
	}
}

func tokensCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tokens <address>",
		Short: "List the SPL token accounts of an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res rpc.TokenAccountsResult
			if err := call("solana_getTokenAccounts", rpc.AddressParam{Address: args[0]}, &res); err != nil {
				return err
			}
			return render(res, func() {
				if len(res.Accounts) == 0 {
					fmt.Println("No token accounts.")
					return
				}
				for _, a := range res.Accounts {
					colors.Key.Printf("%-44s ", a.Mint)
					colors.Value.Println(a.UIAmount)
				}
			})
		},
	}
}

func quoteCmd() *cobra.Command {
	var req market.QuoteRequest
	cmd := &cobra.Command{
		Use:   "quote <input-mint> <output-mint> <amount>",
		Short: "Get a swap quote (amount in raw units of the input mint)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.InputMint, req.OutputMint = args[0], args[1]
			if _, err := fmt.Sscan(args[2], &req.Amount); err != nil {
				return fmt.Errorf("invalid amount %q", args[2])
			}
			var q market.Quote
			if err := call("market_getQuote", req, &q); err != nil {
				return err
			}
			return render(q, func() {
				printFields(
					field{"In", q.InAmount + " " + q.InputMint},
					field{"Out", q.OutAmount + " " + q.OutputMint},
					field{"Min out", q.OtherAmount},
					field{"Slippage", fmt.Sprintf("%d bps", q.SlippageBps)},
					field{"Price impact", q.PriceImpactPct + "%"},
				)
			})
		},
	}
	cmd.Flags().Uint16Var(&req.SlippageBps, "slippage-bps", 50, "max slippage in basis points")
	return cmd
}

func priceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "price <mint>",
		Short: "Show the USD price of a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p market.Price
			if err := call("market_getPrice", rpc.MintParam{Mint: args[0]}, &p); err != nil {
				return err
			}
			return render(p, func() {
				fields := []field{
					{"Mint", p.Mint},
					{"USD", p.USD},
					{"Source", p.Source},
				}
				if p.Liquidity > 0 {
					fields = append(fields, field{"Liquidity", fmt.Sprintf("$%.0f", p.Liquidity)})
				}
				printFields(fields...)
			})
		},
	}
}

func holdingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "holdings <chain> <address>",
		Short: "List token holdings of an EVM or Solana address",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res rpc.TokenBalancesResult
			if err := call("market_getTokenBalances", rpc.TokenBalancesParam{Chain: args[0], Address: args[1]}, &res); err != nil {
				return err
			}
			return render(res, func() {
				printTitle(fmt.Sprintf("%s on %s", res.Address, res.Chain))
				for _, t := range res.Tokens {
					colors.Key.Printf("  %-10s ", t.Symbol)
					colors.Value.Printf("%s", t.UIAmount)
					if t.USDValue > 0 {
						fmt.Printf("  ($%.2f)", t.USDValue)
					}
					fmt.Println()
				}
			})
		},
	}
}
