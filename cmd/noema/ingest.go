package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/noemadb/noema/internal/frontend"
	"github.com/noemadb/noema/internal/graph"
	"github.com/noemadb/noema/internal/ingest"
)

var (
	ingestMode   string
	ingestSource string
)

func init() {
	ingestCmd.Flags().StringVar(&ingestMode, "mode", "dense", "Storage mode: dense (reconstructable) or sparse")
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "Source identifier (defaults to the file path)")
	rootCmd.AddCommand(ingestCmd)
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Ingest a file into the semantic graph",
	Long: `Ingest a file: decode it to code points, store its tokens as
deduplicated compositions, and record co-occurrence relations with
evidence. Dense mode keeps every code point so the exact bytes can be
reconstructed; sparse mode keeps word tokens only.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	path := args[0]

	mode, err := graph.ParseMode(ingestMode)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}

	f, err := frontend.ForPath(path)
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		exitWithError(ExitError, "reading %s: %v", path, err)
	}

	source := ingestSource
	if source == "" {
		source = path
	}

	_, db, p := openPipeline(cmd.Context())
	defer db.Close()

	stats, err := p.Ingest(cmd.Context(), source, data, f, mode)
	if err != nil {
		if errors.Is(err, ingest.ErrEmptyContent) {
			exitWithError(ExitDataError, "%v", err)
		}
		exitWithError(ExitError, "ingesting %s: %v", path, err)
	}

	if humanOutput {
		if stats.Deduplicated {
			outputHuman("Already ingested: %s\n", stats.ContentHash)
		} else {
			outputHuman("Ingested %s (%s)\n", path, formatBytes(stats.BytesIn))
			outputHuman("  content:      %s\n", stats.ContentHash)
			outputHuman("  root:         %s\n", stats.RootHash)
			outputHuman("  compositions: %d new, %d reused\n", stats.CompositionsCreated, stats.CompositionsReused)
			outputHuman("  relations:    %d new, %d evidence\n", stats.RelationsCreated, stats.EvidenceAdded)
		}
	} else {
		outputJSON(stats)
	}
	return nil
}
