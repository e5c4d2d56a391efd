package commands

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	qdb "github.com/meadowlark-sync/willow/db"
	"github.com/meadowlark-sync/willow/logger"
	"github.com/meadowlark-sync/willow/pkg/config"
)

// StoreCmd groups operations on the local SQLite entry store.
var StoreCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect the local entry store",
}

var storeStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show entry counts and storage statistics",
	RunE:  runStoreStats,
}

func init() {
	StoreCmd.AddCommand(storeStatsCmd)
}

func runStoreStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	conn, err := qdb.OpenWithMigrations(cfg.Database.Path, logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer conn.Close()

	var totalEntries, namespaces, subspaces int
	var totalBytes sql.NullInt64
	err = conn.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(DISTINCT namespace_id),
			COUNT(DISTINCT subspace_id),
			SUM(payload_length)
		FROM entries
	`).Scan(&totalEntries, &namespaces, &subspaces, &totalBytes)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to query store stats: %w", err)
	}

	fmt.Printf("Store Statistics\n")
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Printf("Database Path:    %s\n", cfg.Database.Path)
	fmt.Printf("Total Entries:    %d\n", totalEntries)
	fmt.Printf("Namespaces:       %d\n", namespaces)
	fmt.Printf("Subspaces:        %d\n", subspaces)
	fmt.Printf("Total Payload:    %d bytes\n", totalBytes.Int64)

	return nil
}
