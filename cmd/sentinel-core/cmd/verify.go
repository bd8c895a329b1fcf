package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sentinelcore/sentinelcore/internal/adapter/outbound/sqlite"
	"github.com/sentinelcore/sentinelcore/internal/config"
	"github.com/sentinelcore/sentinelcore/internal/domain/audit"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit log's hash chain",
	Long: `Walk the audit log in sequence order and check gaplessness,
previous_hash linkage, and hash recomputation, reporting every break found.`,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx := context.Background()
	store, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	entries, err := sqlite.Audit{Store: store}.AllOrdered(ctx)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}

	result := audit.Verify(entries)
	fmt.Printf("entries: %d\n", result.TotalEntries)
	if result.Valid {
		fmt.Println("chain: valid")
		return nil
	}

	fmt.Println("chain: BROKEN")
	for _, b := range result.BrokenChains {
		fmt.Printf("  seq %d: %s (expected %q, got %q)\n", b.SequenceNumber, b.Reason, b.Expected, b.Actual)
	}
	return fmt.Errorf("audit log has %d break(s)", len(result.BrokenChains))
}
