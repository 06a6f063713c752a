package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/noemadb/noema/internal/ingest"
)

var evidenceContent string

func init() {
	evidenceCmd.Flags().StringVar(&evidenceContent, "content", "", "List all evidence contributed by a content hash")
	evidenceCmd.AddCommand(evidenceInvalidateCmd)
	rootCmd.AddCommand(evidenceCmd)
}

var evidenceCmd = &cobra.Command{
	Use:   "evidence [id]",
	Short: "Show evidence provenance",
	Long: `Show one evidence record by id, or every record a piece of content
contributed with --content. Invalidated records stay visible with their
valid flag cleared.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEvidence,
}

func runEvidence(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, _, db := openRepo()
	defer db.Close()

	if evidenceContent != "" {
		evidence, err := db.ListEvidenceByContent(ctx, evidenceContent)
		if err != nil {
			exitWithError(ExitError, "listing evidence: %v", err)
		}
		if humanOutput {
			for _, ev := range evidence {
				state := "valid"
				if !ev.Valid {
					state = "invalidated"
				}
				outputHuman("%s  %s  rating %.1f weight %.1f  %s\n",
					ev.ID, ev.RelationHash, ev.Rating, ev.Weight, state)
			}
			outputHuman("%d records\n", len(evidence))
		} else {
			outputJSON(evidence)
		}
		return nil
	}

	if len(args) == 0 {
		exitWithError(ExitError, "an evidence id or --content is required")
	}

	ev, err := db.GetEvidence(ctx, args[0])
	if err != nil {
		exitWithError(ExitError, "loading evidence: %v", err)
	}
	if ev == nil {
		exitWithError(ExitNotFound, "evidence %s not found", args[0])
	}

	if humanOutput {
		outputHuman("id:        %s\n", ev.ID)
		outputHuman("relation:  %s\n", ev.RelationHash)
		outputHuman("content:   %s\n", ev.ContentHash)
		outputHuman("rating:    %.1f (weight %.1f)\n", ev.Rating, ev.Weight)
		outputHuman("valid:     %v\n", ev.Valid)
		outputHuman("created:   %s\n", ev.CreatedAt.Format("2006-01-02 15:04:05"))
		if ev.InvalidatedAt != nil {
			outputHuman("invalidated: %s\n", ev.InvalidatedAt.Format("2006-01-02 15:04:05"))
		}
	} else {
		outputJSON(ev)
	}
	return nil
}

var evidenceInvalidateCmd = &cobra.Command{
	Use:   "invalidate <id>",
	Short: "Invalidate one evidence record",
	Long: `Invalidate one evidence record and revert its rating contribution.
A relation left with no valid evidence is removed, and compositions
nothing references anymore are garbage collected.`,
	Args: cobra.ExactArgs(1),
	RunE: runEvidenceInvalidate,
}

func runEvidenceInvalidate(cmd *cobra.Command, args []string) error {
	_, db, p := openPipeline(cmd.Context())
	defer db.Close()

	stats, err := p.InvalidateEvidence(cmd.Context(), args[0])
	if err != nil {
		if errors.Is(err, ingest.ErrEvidenceNotFound) {
			exitWithError(ExitNotFound, "%v", err)
		}
		exitWithError(ExitError, "invalidating evidence: %v", err)
	}

	if humanOutput {
		outputHuman("Invalidated %s\n", args[0])
		if stats.RelationRemoved {
			outputHuman("  relation removed, %d compositions collected\n", stats.CompositionsRemoved)
		}
	} else {
		outputJSON(stats)
	}
	return nil
}
