package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/tanutb/AnanBot/internal/karma"
)

var karmaCmd = &cobra.Command{
	Use:   "karma",
	Short: "Inspect and adjust user karma records",
}

var karmaGetCmd = &cobra.Command{
	Use:   "get <user-id>",
	Short: "Show one user's record",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store := openKarmaStore()
		printJSON(store.Get(args[0]))
	},
}

var karmaSetCmd = &cobra.Command{
	Use:   "set <user-id> <score>",
	Short: "Overwrite one user's score",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		score, err := strconv.Atoi(args[1])
		if err != nil {
			exitErr("score must be an integer", err)
		}
		store := openKarmaStore()
		if _, err := store.Set(args[0], score); err != nil {
			exitErr("failed to persist score", err)
		}
		printJSON(store.Get(args[0]))
	},
}

var karmaListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show every known user record",
	Run: func(cmd *cobra.Command, args []string) {
		store := openKarmaStore()
		printJSON(store.All())
	},
}

func init() {
	karmaCmd.AddCommand(karmaGetCmd, karmaSetCmd, karmaListCmd)
	RootCmd.AddCommand(karmaCmd)
}

func openKarmaStore() *karma.Store {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("failed to load config", err)
	}
	store, err := karma.NewStore(filepath.Join(cfg.Storage.DataPath, "karma.json"))
	if err != nil {
		exitErr("failed to open karma store", err)
	}
	return store
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to encode output: %v\n", err)
		os.Exit(1)
	}
}
