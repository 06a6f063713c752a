package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show repository statistics",
	RunE:  runStats,
}

// StatsResponse summarizes the repository.
type StatsResponse struct {
	SeedVersion  int `json:"seed_version"`
	Atoms        int `json:"atoms"`
	Compositions int `json:"compositions"`
	Relations    int `json:"relations"`
	Contents     int `json:"contents"`
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, _, db := openRepo()
	defer db.Close()

	var resp StatsResponse
	var err error

	if resp.SeedVersion, err = db.SeedVersion(ctx); err != nil {
		exitWithError(ExitError, "reading seed version: %v", err)
	}
	if resp.Atoms, err = db.CountAtoms(ctx); err != nil {
		exitWithError(ExitError, "counting atoms: %v", err)
	}
	if resp.Compositions, err = db.CountCompositions(ctx); err != nil {
		exitWithError(ExitError, "counting compositions: %v", err)
	}
	if resp.Relations, err = db.CountRelations(ctx); err != nil {
		exitWithError(ExitError, "counting relations: %v", err)
	}
	if resp.Contents, err = db.CountContents(ctx); err != nil {
		exitWithError(ExitError, "counting contents: %v", err)
	}

	if humanOutput {
		outputHuman("seed version:  %d\n", resp.SeedVersion)
		outputHuman("atoms:         %d\n", resp.Atoms)
		outputHuman("compositions:  %d\n", resp.Compositions)
		outputHuman("relations:     %d\n", resp.Relations)
		outputHuman("contents:      %d\n", resp.Contents)
	} else {
		outputJSON(resp)
	}
	return nil
}
