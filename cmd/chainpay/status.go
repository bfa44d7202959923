package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/suspectuso/chainpay/internal/payment"
)

func statusCmd(a *app) *cobra.Command {
	var paymentID string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether a payment reached the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s := &stores{}
			defer s.Close()

			l, err := a.openLedger(s)
			if err != nil {
				return err
			}

			paid, err := payment.NewChecker(l).IsPaid(ctx, paymentID)
			if err != nil {
				return err
			}
			if !paid {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: not paid\n", paymentID)
				return nil
			}

			e, err := l.Find(ctx, paymentID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s\n", paymentID, e.Status)
			fmt.Fprintf(out, "  tariff:     %s\n", e.TariffID)
			fmt.Fprintf(out, "  paid:       %s\n", e.PaidAmount)
			fmt.Fprintf(out, "  from:       %s\n", e.FromAddress)
			fmt.Fprintf(out, "  tx:         %s (block %d)\n", e.TxHash, e.BlockNumber)
			fmt.Fprintf(out, "  expires_at: %s\n", e.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}

	cmd.Flags().StringVar(&paymentID, "payment", "", "Payment id")
	cmd.MarkFlagRequired("payment")

	return cmd
}
