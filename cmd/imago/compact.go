package imago

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/imago-ai/imago/pkg/config"
	"github.com/imago-ai/imago/pkg/store"
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Archive and remove superseded records past the retention window",
	Long: `Compact the record log: superseded records whose transaction interval closed
before the retention window are exported to parquet archives and removed from
the log. Records still referenced by retained lineage are kept.`,
	RunE: runCompact,
}

func init() {
	rootCmd.AddCommand(compactCmd)

	compactCmd.Flags().Int("retention-days", 0, "Retention window in days (0 uses the configured value)")
	compactCmd.Flags().Int("keep-versions", 0, "Minimum versions to keep per agent (0 uses the configured value)")
	compactCmd.Flags().String("archive-dir", "", "Directory for parquet archives (empty uses the configured value)")
}

func runCompact(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if days, _ := cmd.Flags().GetInt("retention-days"); days > 0 {
		cfg.Compaction.RetentionDays = days
	}
	if keep, _ := cmd.Flags().GetInt("keep-versions"); keep > 0 {
		cfg.Compaction.KeepVersions = keep
	}
	if dir, _ := cmd.Flags().GetString("archive-dir"); dir != "" {
		cfg.Compaction.ArchiveDir = dir
	}

	client, err := initializeImago(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize Imago: %w", err)
	}
	defer client.Close()

	removed, err := client.Compact(cmd.Context(), store.CompactOptions{
		Retention:    time.Duration(cfg.Compaction.RetentionDays) * 24 * time.Hour,
		KeepVersions: cfg.Compaction.KeepVersions,
		ArchiveDir:   cfg.Compaction.ArchiveDir,
	})
	if err != nil {
		return fmt.Errorf("compaction failed: %w", err)
	}

	fmt.Printf("Compaction complete: %d records archived and removed\n", removed)
	return nil
}
