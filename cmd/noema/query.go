package main

import (
	"github.com/spf13/cobra"

	"github.com/noemadb/noema/internal/spatial"
)

var (
	queryMin       string
	queryMax       string
	queryPoint     string
	queryK         int
	queryRelations bool
)

func init() {
	queryRangeCmd.Flags().StringVar(&queryMin, "min", "-1,-1,-1,-1", "Region minimum corner as x0,x1,x2,x3")
	queryRangeCmd.Flags().StringVar(&queryMax, "max", "1,1,1,1", "Region maximum corner as x0,x1,x2,x3")
	queryNearestCmd.Flags().StringVar(&queryPoint, "point", "", "Query point as x0,x1,x2,x3 (required)")
	queryNearestCmd.Flags().IntVarP(&queryK, "count", "k", 10, "Number of neighbors")
	queryNearestCmd.MarkFlagRequired("point")

	queryCmd.PersistentFlags().BoolVar(&queryRelations, "relations", false, "Query relations instead of compositions")
	queryCmd.AddCommand(queryRangeCmd)
	queryCmd.AddCommand(queryNearestCmd)
	rootCmd.AddCommand(queryCmd)
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Spatial queries over the graph",
}

// QueryResult is one spatial query hit.
type QueryResult struct {
	ID       string     `json:"id"`
	Position [4]float64 `json:"position"`
	Key      string     `json:"key"`
	Distance float64    `json:"distance,omitempty"`
}

func entryResult(e spatial.Entry) QueryResult {
	return QueryResult{
		ID:       e.ID,
		Position: [4]float64(e.Position),
		Key:      e.Key.String(),
	}
}

var queryRangeCmd = &cobra.Command{
	Use:   "range",
	Short: "List everything inside an axis-aligned region",
	RunE:  runQueryRange,
}

func runQueryRange(cmd *cobra.Command, args []string) error {
	min, err := parseVec4(queryMin)
	if err != nil {
		exitWithError(ExitError, "parsing --min: %v", err)
	}
	max, err := parseVec4(queryMax)
	if err != nil {
		exitWithError(ExitError, "parsing --max: %v", err)
	}
	region, err := spatial.NewRect([4]float64(min), [4]float64(max))
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}

	_, db, p := openPipeline(cmd.Context())
	defer db.Close()

	var entries []spatial.Entry
	if queryRelations {
		entries = p.RangeRelations(region)
	} else {
		entries = p.RangeCompositions(region)
	}

	results := make([]QueryResult, len(entries))
	for i, e := range entries {
		results[i] = entryResult(e)
	}

	if humanOutput {
		for _, r := range results {
			outputHuman("%s  %v\n", r.ID, r.Position)
		}
		outputHuman("%d results\n", len(results))
	} else {
		outputJSON(results)
	}
	return nil
}

var queryNearestCmd = &cobra.Command{
	Use:   "nearest",
	Short: "List the k entries nearest to a point",
	RunE:  runQueryNearest,
}

func runQueryNearest(cmd *cobra.Command, args []string) error {
	point, err := parseVec4(queryPoint)
	if err != nil {
		exitWithError(ExitError, "parsing --point: %v", err)
	}

	_, db, p := openPipeline(cmd.Context())
	defer db.Close()

	var neighbors []spatial.Neighbor
	if queryRelations {
		neighbors, err = p.NearestRelations(point, queryK)
	} else {
		neighbors, err = p.NearestCompositions(point, queryK)
	}
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}

	results := make([]QueryResult, len(neighbors))
	for i, n := range neighbors {
		r := entryResult(n.Entry)
		r.Distance = n.Distance
		results[i] = r
	}

	if humanOutput {
		for i, r := range results {
			outputHuman("%d. [%.4f] %s\n", i+1, r.Distance, r.ID)
		}
	} else {
		outputJSON(results)
	}
	return nil
}
