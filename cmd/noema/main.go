// Package main provides the noema CLI entry point.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/noemadb/noema/internal/config"
)

// Version is set at build time via ldflags
var Version = "dev"

// humanOutput controls whether to use human-readable output
var humanOutput bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "noema",
	Short: "Content-addressed semantic graph over a spatial index",
	Long: `noema converts digital content into a deduplicated semantic graph.

Every Unicode code point is an atom with a fixed position on the unit
hypersphere; content becomes content-addressed compositions of atoms,
co-occurring compositions become rated relations, and everything is
queryable through a 4-dimensional spatial index. All commands output
JSON by default for easy integration with other tools.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Load .env if present (for NOEMA_ROOT and embedding overrides)
	_ = godotenv.Load()

	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.Version = Version
}

// getRepoRoot returns the repository root, walking up from the working
// directory unless NOEMA_ROOT overrides it.
func getRepoRoot() (string, int) {
	if root := os.Getenv("NOEMA_ROOT"); root != "" {
		return root, 0
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", outputError(ExitError, "getting current directory: %v", err)
	}

	root, err := config.FindRepository(cwd)
	if err != nil {
		return "", outputError(ExitConfigError, "%v", err)
	}
	return root, 0
}
