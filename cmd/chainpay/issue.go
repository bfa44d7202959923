package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/suspectuso/chainpay/internal/payment"
	"github.com/suspectuso/chainpay/internal/redisstore"
)

func issueCmd(a *app) *cobra.Command {
	var (
		userID   int64
		tariffID string
		price    uint64
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a payment intent and print the hash to pay",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s := &stores{}
			defer s.Close()

			rdb, err := a.openRedis(ctx, s)
			if err != nil {
				return err
			}

			issuer := payment.NewIssuer(redisstore.NewPendingStore(rdb, a.cfg.PaymentTTL), a.cfg.PaymentTTL, a.log)
			p, err := issuer.Issue(ctx, userID, payment.Tariff{
				ID:       tariffID,
				Name:     tariffID,
				Price:    price,
				IsActive: true,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "payment_id:   %s\n", p.PaymentID)
			fmt.Fprintf(out, "payment_hash: %s\n", p.PaymentHash)
			fmt.Fprintf(out, "amount:       %d\n", p.Amount)
			fmt.Fprintf(out, "expires_at:   %s\n", p.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}

	cmd.Flags().Int64VarP(&userID, "user", "u", 0, "Telegram user id of the payer")
	cmd.Flags().StringVarP(&tariffID, "tariff", "t", "", "Tariff id")
	cmd.Flags().Uint64VarP(&price, "price", "p", 0, "Price in the token's smallest unit")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("tariff")
	cmd.MarkFlagRequired("price")

	return cmd
}
