package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/klingpay/internal/rpc"
	"github.com/Klingon-tech/klingpay/internal/trade"
)

func tradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trade",
		Short: "P2P order book, escrow and chat",
	}
	cmd.AddCommand(
		tradeOrdersCmd(),
		tradeOrderCmd(),
		tradeCreateCmd(),
		tradeCancelCmd(),
		tradeEscrowCmd(),
		tradeDisputeCmd(),
		tradeMessagesCmd(),
		tradeSendCmd(),
	)
	return cmd
}

func tradeOrdersCmd() *cobra.Command {
	var (
		f      trade.OrderFilter
		side   string
		status string
	)
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Side = trade.Side(side)
			f.Status = trade.OrderStatus(status)
			var page trade.OrderPage
			if err := call("trade_listOrders", f, &page); err != nil {
				return err
			}
			return render(page, func() {
				if page.Offline {
					colors.Warn.Println("Trade API unreachable, showing mirrored orders")
				}
				if len(page.Orders) == 0 {
					fmt.Println("No orders.")
					return
				}
				for _, o := range page.Orders {
					printOrderLine(o)
				}
			})
		},
	}
	cmd.Flags().StringVar(&side, "side", "", "buy or sell")
	cmd.Flags().StringVar(&status, "status", "", "order status")
	cmd.Flags().StringVar(&f.Asset, "asset", "", "asset mint or symbol")
	cmd.Flags().StringVar(&f.Fiat, "fiat", "", "fiat currency code")
	cmd.Flags().StringVar(&f.Maker, "maker", "", "maker address")
	return cmd
}

func tradeOrderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "order <id>",
		Short: "Show one order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var o trade.Order
			if err := call("trade_getOrder", rpc.IDParam{ID: args[0]}, &o); err != nil {
				return err
			}
			return render(o, func() { printOrder(o) })
		},
	}
}

func tradeCreateCmd() *cobra.Command {
	var (
		n       trade.NewOrder
		side    string
		methods []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n.Side = trade.Side(side)
			n.PaymentMethods = methods
			if err := n.Validate(); err != nil {
				return err
			}
			var o trade.Order
			if err := call("trade_createOrder", n, &o); err != nil {
				return err
			}
			return render(o, func() {
				colors.Success.Println("Order created")
				printOrder(o)
			})
		},
	}
	cmd.Flags().StringVar(&side, "side", "", "buy or sell")
	cmd.Flags().StringVar(&n.Asset, "asset", "", "asset mint or symbol")
	cmd.Flags().StringVar(&n.Fiat, "fiat", "", "fiat currency code")
	cmd.Flags().StringVar(&n.Price, "price", "", "price per unit in fiat")
	cmd.Flags().StringVar(&n.Amount, "amount", "", "asset amount")
	cmd.Flags().StringVar(&n.MinLimit, "min", "", "minimum fiat per trade")
	cmd.Flags().StringVar(&n.MaxLimit, "max", "", "maximum fiat per trade")
	cmd.Flags().StringSliceVar(&methods, "payment", nil, "payment methods (repeatable)")
	cmd.Flags().StringVar(&n.Maker, "maker", "", "maker wallet address")
	return cmd
}

func tradeCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var o trade.Order
			if err := call("trade_cancelOrder", rpc.IDParam{ID: args[0]}, &o); err != nil {
				return err
			}
			return render(o, func() {
				colors.Success.Printf("Order %s is %s\n", o.ID, o.Status)
			})
		},
	}
}

func tradeEscrowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "escrow",
		Short: "Open, inspect or release escrows",
	}

	open := &cobra.Command{
		Use:   "open <order-id> <buyer> <amount>",
		Short: "Open an escrow on an order",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var e trade.Escrow
			if err := call("trade_openEscrow", rpc.OpenEscrowParam{OrderID: args[0], Buyer: args[1], Amount: args[2]}, &e); err != nil {
				return err
			}
			return render(e, func() { printEscrow(e) })
		},
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an escrow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var e trade.Escrow
			if err := call("trade_getEscrow", rpc.IDParam{ID: args[0]}, &e); err != nil {
				return err
			}
			return render(e, func() { printEscrow(e) })
		},
	}

	var txSig string
	release := &cobra.Command{
		Use:   "release <id>",
		Short: "Release an escrow to the buyer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var e trade.Escrow
			if err := call("trade_releaseEscrow", rpc.ReleaseEscrowParam{ID: args[0], TxSignature: txSig}, &e); err != nil {
				return err
			}
			return render(e, func() { printEscrow(e) })
		},
	}
	release.Flags().StringVar(&txSig, "tx", "", "release transaction signature")

	cmd.AddCommand(open, show, release)
	return cmd
}

func tradeDisputeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dispute",
		Short: "Open or inspect disputes",
	}

	open := &cobra.Command{
		Use:   "open <escrow-id> <opener> <reason...>",
		Short: "Open a dispute on an escrow",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var d trade.Dispute
			if err := call("trade_openDispute", rpc.OpenDisputeParam{
				EscrowID: args[0], Opener: args[1], Reason: strings.Join(args[2:], " "),
			}, &d); err != nil {
				return err
			}
			return render(d, func() { printDispute(d) })
		},
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a dispute",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var d trade.Dispute
			if err := call("trade_getDispute", rpc.IDParam{ID: args[0]}, &d); err != nil {
				return err
			}
			return render(d, func() { printDispute(d) })
		},
	}

	cmd.AddCommand(open, show)
	return cmd
}

func tradeMessagesCmd() *cobra.Command {
	var since string
	cmd := &cobra.Command{
		Use:   "messages <order-id>",
		Short: "Show the chat of an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var msgs []trade.ChatMessage
			if err := call("trade_listMessages", rpc.ListMessagesParam{OrderID: args[0], Since: since}, &msgs); err != nil {
				return err
			}
			return render(msgs, func() {
				for _, m := range msgs {
					colors.Key.Printf("[%s] %s: ", m.SentAt.Format("2006-01-02 15:04"), m.Sender)
					fmt.Println(m.Body)
				}
			})
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "only messages after this RFC 3339 time")
	return cmd
}

func tradeSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <order-id> <sender> <message...>",
		Short: "Send a chat message on an order",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var m trade.ChatMessage
			if err := call("trade_sendMessage", rpc.SendMessageParam{
				OrderID: args[0], Sender: args[1], Body: strings.Join(args[2:], " "),
			}, &m); err != nil {
				return err
			}
			return render(m, func() { colors.Success.Printf("Sent %s\n", m.ID) })
		},
	}
}

func printOrderLine(o trade.Order) {
	colors.Key.Printf("%-12s %-4s ", o.ID, o.Side)
	colors.Value.Printf("%s %s @ %s %s", o.Amount, o.Asset, o.Price, o.Fiat)
	fmt.Printf("  [%s]\n", o.Status)
}

func printOrder(o trade.Order) {
	printFields(
		field{"ID", o.ID},
		field{"Side", o.Side},
		field{"Asset", o.Asset},
		field{"Amount", o.Amount},
		field{"Price", o.Price + " " + o.Fiat},
		field{"Limits", o.MinLimit + " - " + o.MaxLimit},
		field{"Payment", strings.Join(o.PaymentMethods, ", ")},
		field{"Maker", o.Maker},
		field{"Status", o.Status},
	)
}

func printEscrow(e trade.Escrow) {
	printFields(
		field{"ID", e.ID},
		field{"Order", e.OrderID},
		field{"Buyer", e.Buyer},
		field{"Seller", e.Seller},
		field{"Amount", e.Amount},
		field{"Status", e.Status},
		field{"Tx", e.TxSignature},
	)
}

func printDispute(d trade.Dispute) {
	printFields(
		field{"ID", d.ID},
		field{"Escrow", d.EscrowID},
		field{"Opener", d.Opener},
		field{"Reason", d.Reason},
		field{"Status", d.Status},
		field{"Resolution", d.Resolution},
	)
}
