package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/garnizeh/estate/internal/db"
)

var backupOut string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, conn, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer conn.Close()
		applied, err := db.Applied(cmd.Context(), conn)
		if err != nil {
			return err
		}
		for _, name := range applied {
			fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
		}
		return nil
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write a consistent copy of the database",
	Long: `Write a consistent copy of the database with VACUUM INTO. The server may
keep running while the backup is taken.

Examples:
  estatectl backup                    # writes <database>.bak
  estatectl backup --out /tmp/e.db    # writes /tmp/e.db`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dst := backupOut
		if dst == "" {
			dst = cfg.DatabasePath + ".bak"
		}
		if _, err := os.Stat(dst); err == nil {
			return fmt.Errorf("backup target %s already exists", dst)
		}
		conn, err := db.Open(cmd.Context(), cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer conn.Close()
		if _, err := conn.Exec(cmd.Context(), `VACUUM INTO ?`, dst); err != nil {
			return fmt.Errorf("backup: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "database backup written to %s\n", dst)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <backup-file>",
	Short: "Replace the database with a backup",
	Long: `Replace the database file with a backup. Stop the server first: the
write-ahead log of the current database is discarded.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := copyFile(args[0], cfg.DatabasePath); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		for _, suffix := range []string{"-wal", "-shm"} {
			if err := os.Remove(cfg.DatabasePath + suffix); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("restore: %w", err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "database restored from %s\n", args[0])
		return nil
	},
}

func init() {
	backupCmd.Flags().StringVar(&backupOut, "out", "", "Backup file path (default <database>.bak)")
	rootCmd.AddCommand(migrateCmd, backupCmd, restoreCmd)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".restore"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
