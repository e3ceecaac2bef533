package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/vietddude/txmonitor/internal/core/config"
	redisclient "github.com/vietddude/txmonitor/internal/infra/redis"
)

var clearRetriesCmd = &cobra.Command{
	Use:   "clear-retries [chain_id] [transaction_id]",
	Short: "Clear the retry counter for a transaction so the next cycle starts fresh",
	Args:  cobra.ExactArgs(2),
	Run:   runClearRetries,
}

func init() {
	rootCmd.AddCommand(clearRetriesCmd)
}

func runClearRetries(cmd *cobra.Command, args []string) {
	chainID, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fmt.Printf("Invalid chain id: %v\n", err)
		os.Exit(1)
	}
	txID := args[1]

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	rc, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = rc.Close()
	}()

	if err := rc.DeleteRetryCount(ctx, txID, chainID); err != nil {
		slog.Error("Failed to clear retry counter", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Cleared retry counter for %s on chain %d\n", txID, chainID)
}
