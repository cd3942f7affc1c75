package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tanutb/AnanBot/internal/backup"
)

var (
	backupDir  string
	backupKeep int
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot and restore the data directory",
}

var backupRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Create a new snapshot",
	Run: func(cmd *cobra.Command, args []string) {
		info, err := openSnapshotter().Snapshot()
		if err != nil {
			exitErr("snapshot failed", err)
		}
		fmt.Printf("snapshot written to %s (%d bytes)\n", info.Path, info.Size)
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List existing snapshots, newest first",
	Run: func(cmd *cobra.Command, args []string) {
		snapshots, err := openSnapshotter().List()
		if err != nil {
			exitErr("failed to list snapshots", err)
		}
		printJSON(snapshots)
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <snapshot-path>",
	Short: "Restore the data directory from a snapshot (server must be stopped)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := openSnapshotter().Restore(args[0]); err != nil {
			exitErr("restore failed", err)
		}
		fmt.Println("restore complete")
	},
}

func init() {
	backupCmd.PersistentFlags().StringVar(&backupDir, "dir", "./backups", "Snapshot directory")
	backupCmd.PersistentFlags().IntVar(&backupKeep, "keep", 10, "Snapshots to retain")
	backupCmd.AddCommand(backupRunCmd, backupListCmd, backupRestoreCmd)
	RootCmd.AddCommand(backupCmd)
}

func openSnapshotter() *backup.Snapshotter {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("failed to load config", err)
	}
	return backup.New(backup.Config{
		DataDir:   cfg.Storage.DataPath,
		BackupDir: backupDir,
		Keep:      backupKeep,
	})
}
