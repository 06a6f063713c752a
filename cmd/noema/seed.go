package main

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/noemadb/noema/internal/atom"
	"github.com/noemadb/noema/internal/spatialkey"
)

var (
	seedStart uint32
	seedEnd   uint32
)

func init() {
	seedCmd.Flags().Uint32Var(&seedStart, "start", 0, "First code point to seed")
	seedCmd.Flags().Uint32Var(&seedEnd, "end", uint32(utf8.MaxRune), "Last code point to seed")
	rootCmd.AddCommand(seedCmd)
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the atom table",
	Long: `Seed the atom table: project every Unicode code point to its fixed
position on the unit hypersphere and store it with its spatial key.

Runs once per repository. Re-running against a seeded repository fails;
a data version upgrade requires a fresh repository.`,
	RunE: runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	_, cfg, db := openRepo()
	defer db.Close()

	enc, err := spatialkey.NewEncoder(cfg.BitDepth)
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}

	stats, err := atom.NewSeeder(db, enc).RunRange(cmd.Context(), rune(seedStart), rune(seedEnd))
	if err != nil {
		switch {
		case errors.Is(err, atom.ErrAlreadySeeded):
			exitWithError(ExitDataError, "%v", err)
		case errors.Is(err, context.Canceled):
			exitWithError(ExitError, "seeding interrupted: %v", err)
		default:
			exitWithError(ExitError, "seeding: %v", err)
		}
	}

	if humanOutput {
		outputHuman("Seeded %d atoms in %d batches (data version %d)\n",
			stats.Atoms, stats.Batches, stats.Version)
	} else {
		outputJSON(stats)
	}
	return nil
}
