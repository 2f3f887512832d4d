package cmd

import (
	"github.com/spf13/cobra"

	"github.com/abhisek/pathfinder/internal/store"
)

var rootCmd = &cobra.Command{
	Use:           "pathfinder",
	Short:         "Personalized learning roadmaps",
	Long:          "Pathfinder generates personalized learning roadmaps from a course catalog and adapts them as assessment results arrive.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default ./config.yaml or ~/.config/pathfinder/config.yaml)")
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides PATHFINDER_DB and store.path)")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(assessCmd)
	rootCmd.AddCommand(patternsCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}

// resolveDBPath returns the database path using --db flag (highest priority),
// then the configured store path, then PATHFINDER_DB or the default XDG path.
func resolveDBPath(cmd *cobra.Command, configured string) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, store.EnsureDir(p)
	}
	if configured != "" {
		return configured, store.EnsureDir(configured)
	}
	return store.DefaultDBPath()
}
