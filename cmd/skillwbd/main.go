// Command skillwbd is a thin CLI over pkg/workbench: save a skill
// Markdown file through the 2PC coordinator, search the hybrid index,
// pack slices against a named contract, and gate a shell command
// through the safety gate. Output is plain text or JSON; richer
// rendering belongs to downstream consumers.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skillwb/skillwb/internal/config"
	"github.com/skillwb/skillwb/internal/logging"
)

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var (
	archiveRoot string
	metadataDB  string
)

var rootCmd = &cobra.Command{
	Use:     "skillwbd",
	Short:   "skill workbench: archive, retrieve, pack, and gate skills",
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&archiveRoot, "archive", "./skillwb-data/archive", "archive root directory")
	rootCmd.PersistentFlags().StringVar(&metadataDB, "db", "./skillwb-data/metadata.db", "metadata sqlite path")
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(packCmd)
	rootCmd.AddCommand(gateCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(deprecateCmd)
}

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func newLogger() (*logging.Logger, error) {
	return logging.New(logging.Config{Level: "info", Format: "console"})
}
