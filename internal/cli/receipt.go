package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var receiptCmd = &cobra.Command{
	Use:   "receipt",
	Short: "Issue and check signed chain-head receipts",
}

var receiptIssueCmd = &cobra.Command{
	Use:   "issue <dossier>",
	Short: "Sign the dossier's current chain head",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(func(ctx context.Context, rt *runtime) error {
			d, err := rt.service.FindByAnyID(ctx, args[0])
			if err != nil {
				return err
			}
			token, claims, err := rt.service.IssueReceipt(ctx, d.DossierID)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), map[string]any{"receipt": token, "claims": claims})
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		})
	},
}

var receiptCheckCmd = &cobra.Command{
	Use:   "check <receipt>",
	Short: "Check that an attested head is still part of a valid chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(func(ctx context.Context, rt *runtime) error {
			verdict, err := rt.service.CheckReceipt(ctx, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				if err := printJSON(cmd.OutOrStdout(), verdict); err != nil {
					return err
				}
			} else {
				issued := time.Unix(verdict.Claims.IssuedAt, 0).UTC().Format(time.RFC3339)
				fmt.Fprintf(cmd.OutOrStdout(), "%s head %s (seq %d, issued %s): present=%v position=%d\n",
					verdict.Claims.DossierID, verdict.Claims.Head, verdict.Claims.Seq, issued, verdict.Present, verdict.Position)
				fmt.Fprintln(cmd.OutOrStdout(), describeReport(verdict.Claims.DossierID, verdict.Chain))
			}
			if !verdict.Holds {
				return fmt.Errorf("%s: receipt does not hold: %w", verdict.Claims.DossierID, errChain)
			}
			return nil
		})
	},
}

func init() {
	receiptCmd.AddCommand(receiptIssueCmd, receiptCheckCmd)
	rootCmd.AddCommand(receiptCmd)
}
