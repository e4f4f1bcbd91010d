package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var creditsHistoryLimit int

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Manage your credit balance",
	Long:  `Check the balance, add credit, or review the metered action history.`,
}

var creditsBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the current balance",
	Args:  cobra.NoArgs,
	RunE:  runCreditsBalance,
}

var creditsTopUpCmd = &cobra.Command{
	Use:   "topup [amount]",
	Short: "Add credit to your account",
	Args:  cobra.ExactArgs(1),
	RunE:  runCreditsTopUp,
}

var creditsHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent metered actions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runCreditsHistory,
}

func init() {
	creditsHistoryCmd.Flags().IntVarP(&creditsHistoryLimit, "limit", "n", 20, "maximum number of entries")

	creditsCmd.AddCommand(creditsBalanceCmd)
	creditsCmd.AddCommand(creditsTopUpCmd)
	creditsCmd.AddCommand(creditsHistoryCmd)
	rootCmd.AddCommand(creditsCmd)
}

func runCreditsBalance(cmd *cobra.Command, _ []string) error {
	if ledgerService == nil {
		return errors.New("ledger service not configured")
	}

	account, err := ledgerService.Balance(context.Background(), currentOwner())
	if err != nil {
		return fmt.Errorf("failed to get balance: %w", err)
	}

	cmd.Printf("Balance for %s: %d credits\n", account.OwnerID, account.Balance)
	return nil
}

func runCreditsTopUp(cmd *cobra.Command, args []string) error {
	if ledgerService == nil {
		return errors.New("ledger service not configured")
	}

	amount, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", args[0], err)
	}

	entry, err := ledgerService.TopUp(context.Background(), currentOwner(), amount)
	if err != nil {
		return fmt.Errorf("topup failed: %w", err)
	}

	account, err := ledgerService.Balance(context.Background(), entry.OwnerID)
	if err != nil {
		return fmt.Errorf("failed to get balance: %w", err)
	}
	cmd.Printf("Added %d credits. New balance: %d\n", amount, account.Balance)
	return nil
}

func runCreditsHistory(cmd *cobra.Command, _ []string) error {
	if ledgerService == nil {
		return errors.New("ledger service not configured")
	}

	entries, err := ledgerService.History(context.Background(), currentOwner(), creditsHistoryLimit)
	if err != nil {
		return fmt.Errorf("failed to get history: %w", err)
	}

	if len(entries) == 0 {
		cmd.Println("No history.")
		return nil
	}

	cmd.Println("History:")
	cmd.Println()
	for i := range entries {
		e := &entries[i]
		cmd.Printf("  %s  %-7s %-6s cost=%d",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Action, e.Result, e.Cost)
		if e.ResourceID != "" {
			cmd.Printf("  %s", e.ResourceID)
		}
		cmd.Println()
		if e.Detail != "" {
			cmd.Printf("      %s\n", e.Detail)
		}
	}
	return nil
}
