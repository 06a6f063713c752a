package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/noemadb/noema/internal/atom"
	"github.com/noemadb/noema/internal/config"
	"github.com/noemadb/noema/internal/geometry"
	"github.com/noemadb/noema/internal/ingest"
	"github.com/noemadb/noema/internal/storage"
)

// openRepo locates the repository and opens its configuration and database.
func openRepo() (string, *config.Config, *storage.DB) {
	root, exitCode := getRepoRoot()
	if exitCode != 0 {
		exitWithError(exitCode, "not in a noema repository")
	}

	cfg, err := config.Load(root)
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}

	db, err := storage.OpenDB(config.DBPath(root))
	if err != nil {
		exitWithError(ExitError, "opening database: %v", err)
	}
	return root, cfg, db
}

// openPipeline opens the repository and a pipeline over it. Exits with
// ExitDataError when the atom table has not been seeded yet.
func openPipeline(ctx context.Context) (*config.Config, *storage.DB, *ingest.Pipeline) {
	_, cfg, db := openRepo()

	p, err := ingest.Open(ctx, db, cfg.BitDepth, cfg.Window)
	if err != nil {
		db.Close()
		if errors.Is(err, atom.ErrNotSeeded) || errors.Is(err, atom.ErrVersionSkew) {
			exitWithError(ExitDataError, "%v (run 'noema seed' first)", err)
		}
		exitWithError(ExitError, "opening pipeline: %v", err)
	}
	return cfg, db, p
}

// parseVec4 parses "x0,x1,x2,x3" into a vector.
func parseVec4(s string) (geometry.Vec4, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return geometry.Vec4{}, fmt.Errorf("expected 4 comma-separated coordinates, got %d", len(parts))
	}
	var v geometry.Vec4
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return geometry.Vec4{}, fmt.Errorf("coordinate %d: %w", i, err)
		}
		v[i] = f
	}
	return v, nil
}
