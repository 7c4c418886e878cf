package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vietddude/todosync/internal/core/config"
	"github.com/vietddude/todosync/internal/core/cursor"
	"github.com/vietddude/todosync/internal/core/domain"
	"github.com/vietddude/todosync/internal/infra/storage/postgres"
)

var resetCursorCmd = &cobra.Command{
	Use:   "reset-cursor [source_id] [block_height]",
	Short: "Rewind the cursor of one source to a given block height",
	Long:  `Rewinds the sync cursor so the next run re-scans from the given height. The projection absorbs the replayed events as duplicates.`,
	Args:  cobra.ExactArgs(2),
	Run:   runResetCursor,
}

func init() {
	rootCmd.AddCommand(resetCursorCmd)
}

func runResetCursor(cmd *cobra.Command, args []string) {
	sourceID := domain.SourceID(args[0])
	height, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		fmt.Printf("Invalid block height: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if err := requirePostgres(cfg, "reset-cursor"); err != nil {
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

	mgr := cursor.NewManager(postgres.NewCursorRepo(db))
	if err := mgr.Rollback(ctx, sourceID, height); err != nil {
		slog.Error("Failed to reset cursor", "source", sourceID, "error", err)
		os.Exit(1)
	}

	fmt.Printf("Successfully reset cursor for %s to block %d\n", sourceID, height)
}
