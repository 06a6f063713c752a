package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/noemadb/noema/internal/config"
	"github.com/noemadb/noema/internal/storage"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new noema repository",
	Long: `Initialize a new noema repository in the current directory.

Creates:
  .noema/
  ├── config.yaml     # Default config
  └── cache/
      └── noema.db    # Empty database`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	root := os.Getenv("NOEMA_ROOT")
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			exitWithError(ExitError, "getting current directory: %v", err)
		}
		root = cwd
	}

	if _, err := config.Init(root); err != nil {
		exitWithError(ExitError, "%v", err)
	}

	// Open once so the schema exists before the first seed run.
	db, err := storage.OpenDB(config.DBPath(root))
	if err != nil {
		exitWithError(ExitError, "creating database: %v", err)
	}
	db.Close()

	if humanOutput {
		outputHuman("Initialized noema repository in %s\n", root)
	} else {
		outputJSON(StatusResponse{Status: "initialized", Path: root})
	}
	return nil
}
