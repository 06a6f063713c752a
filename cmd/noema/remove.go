package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/noemadb/noema/internal/ingest"
)

func init() {
	rootCmd.AddCommand(removeCmd)
}

var removeCmd = &cobra.Command{
	Use:   "remove <content-hash>",
	Short: "Surgically delete ingested content",
	Long: `Remove one piece of content: invalidate every evidence record it
contributed, revert its rating contributions, drop relations left with
no valid evidence, and garbage collect orphaned compositions. Evidence
records survive as provenance.`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
}

func runRemove(cmd *cobra.Command, args []string) error {
	_, db, p := openPipeline(cmd.Context())
	defer db.Close()

	stats, err := p.RemoveContent(cmd.Context(), args[0])
	if err != nil {
		if errors.Is(err, ingest.ErrContentNotFound) {
			exitWithError(ExitNotFound, "%v", err)
		}
		exitWithError(ExitError, "removing content: %v", err)
	}

	if humanOutput {
		outputHuman("Removed %s\n", args[0])
		outputHuman("  evidence invalidated:  %d\n", stats.EvidenceInvalidated)
		outputHuman("  relations removed:     %d\n", stats.RelationsRemoved)
		outputHuman("  compositions removed:  %d\n", stats.CompositionsRemoved)
	} else {
		outputJSON(stats)
	}
	return nil
}
