package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/vietddude/txmonitor/internal/core/config"
	"github.com/vietddude/txmonitor/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status [transaction_id]",
	Short: "Show all tracked attempts for a transaction id",
	Args:  cobra.ExactArgs(1),
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	txID := args[0]

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	repo := postgres.NewAttemptRepo(db)
	attempts, err := repo.GetByTransactionID(ctx, txID)
	if err != nil {
		slog.Error("Failed to query attempts", "error", err)
		os.Exit(1)
	}
	if len(attempts) == 0 {
		fmt.Printf("No attempts found for %s\n", txID)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "HASH\tSTATUS\tKIND\tFEE\tRESUBMITTED\tUPDATED")

	for _, a := range attempts {
		fee := ""
		if a.FeeAmount != "" {
			fee = fmt.Sprintf("%s %s", a.FeeAmount, a.FeeCurrency)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
			a.TransactionHash, a.Status, a.Kind, fee, a.Resubmitted,
			a.UpdatedAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}
