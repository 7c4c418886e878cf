package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/todosync/internal/core/config"
	"github.com/vietddude/todosync/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the cursor position of every synchronized source",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if err := requirePostgres(cfg, "status"); err != nil {
		slog.Error("Cannot run command", "error", err)
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

	rows, err := db.QueryContext(ctx, "SELECT source_id, block_number, log_index, updated_at FROM cursors ORDER BY source_id")
	if err != nil {
		slog.Error("Failed to query cursors", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = rows.Close()
	}()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "SOURCE\tBLOCK\tLOG INDEX\tUPDATED")

	for rows.Next() {
		var sourceID string
		var block, logIndex int64
		var updatedAt time.Time
		if err := rows.Scan(&sourceID, &block, &logIndex, &updatedAt); err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", sourceID, block, logIndex, updatedAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}
