package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/garnizeh/estate/internal/jobs"
	"github.com/garnizeh/estate/internal/repository/sqlite"
	"github.com/garnizeh/estate/pkg/models"
)

var (
	// Cleanup flags
	dryRun    bool
	olderThan time.Duration
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete finished background jobs",
	Long: `Delete background jobs that finished before the retention window.

Examples:
  estatectl cleanup --dry-run             # count what would be removed
  estatectl cleanup --older-than 72h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, conn, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer conn.Close()

		n, err := jobs.NewRepository(conn).PurgeDone(cmd.Context(), time.Now().Add(-olderThan), dryRun)
		if err != nil {
			return err
		}
		if dryRun {
			fmt.Fprintf(cmd.OutOrStdout(), "%d finished jobs would be deleted\n", n)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d finished jobs\n", n)
		return nil
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Queue every approved listing for semantic indexing",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, conn, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer conn.Close()

		repo := sqlite.New(conn, nil)
		indexer := jobs.NewPropertyIndexer(jobs.NewRepository(conn), cfg.Jobs.MaxAttempts)
		const pageSize = 100
		queued := 0
		for page := 1; ; page++ {
			items, _, err := repo.ListProperties(cmd.Context(), models.PropertyFilter{
				Statuses: []models.PropertyStatus{models.StatusApproved},
				Page:     page,
				Limit:    pageSize,
				Sort:     models.SortOldest,
			})
			if err != nil {
				return err
			}
			for _, p := range items {
				if err := indexer.EnqueueIndex(cmd.Context(), p.ID); err != nil {
					return fmt.Errorf("queue %s: %w", p.ID, err)
				}
				queued++
			}
			if len(items) < pageSize {
				break
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queued %d listings for indexing\n", queued)
		return nil
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Show background job counts and recent dead letters",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, conn, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer conn.Close()

		repo := jobs.NewRepository(conn)
		counts, err := repo.Counts(cmd.Context())
		if err != nil {
			return err
		}
		statuses := make([]string, 0, len(counts))
		for s := range counts {
			statuses = append(statuses, s)
		}
		sort.Strings(statuses)
		out := cmd.OutOrStdout()
		for _, s := range statuses {
			fmt.Fprintf(out, "%-8s %d\n", s, counts[s])
		}
		dead, err := repo.ListDeadLetters(cmd.Context(), 10)
		if err != nil {
			return err
		}
		for _, d := range dead {
			fmt.Fprintf(out, "dead %d %s: %s\n", d.JobID, d.Type, d.LastError)
		}
		return nil
	},
}

func init() {
	cleanupCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only count the jobs that would be deleted")
	cleanupCmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "Retention window for finished jobs")
	rootCmd.AddCommand(cleanupCmd, reindexCmd, jobsCmd)
}
