package main

import (
	"github.com/spf13/cobra"
)

var similarK int

func init() {
	similarCmd.Flags().IntVarP(&similarK, "count", "k", 0, "Neighbors per composition (defaults to config)")
	rootCmd.AddCommand(similarCmd)
}

var similarCmd = &cobra.Command{
	Use:   "similar <composition-hash>...",
	Short: "Create similarity relations from embeddings",
	Long: `Embed the given compositions and create similarity relations over
their k-nearest-neighbor graph. Requires a running Ollama instance with
the configured embedding model. With no arguments, every stored
composition is embedded.`,
	RunE: runSimilar,
}

func runSimilar(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, db, p := openPipeline(ctx)
	defer db.Close()

	provider := cfg.Provider()
	if err := provider.IsAvailable(ctx); err != nil {
		exitWithError(ExitOllama, "%v", err)
	}
	ok, err := provider.HasModel(ctx)
	if err != nil {
		exitWithError(ExitOllama, "%v", err)
	}
	if !ok {
		exitWithError(ExitOllama, "model %s is not available in ollama", provider.ModelName())
	}

	hashes := args
	if len(hashes) == 0 {
		rows, err := db.ListCompositionPositions(ctx)
		if err != nil {
			exitWithError(ExitError, "listing compositions: %v", err)
		}
		for _, row := range rows {
			hashes = append(hashes, row.ID)
		}
	}
	if len(hashes) == 0 {
		exitWithError(ExitDataError, "no compositions to embed")
	}

	k := similarK
	if k <= 0 {
		k = cfg.Neighbors
	}

	stats, err := p.DetectSimilar(ctx, provider, hashes, k)
	if err != nil {
		exitWithError(ExitError, "detecting similarity: %v", err)
	}

	if humanOutput {
		outputHuman("Embedded %d compositions with %s\n", stats.Embedded, provider.ModelName())
		outputHuman("  relations: %d new, %d evidence\n", stats.RelationsCreated, stats.EvidenceAdded)
	} else {
		outputJSON(stats)
	}
	return nil
}
