// Package integration provides end-to-end tests for noema commands.
package integration

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
)

var (
	noemaBinary     string
	noemaBinaryOnce sync.Once
	noemaBinaryErr  error
)

// getNoemaBinary builds the noema binary once and returns its path.
func getNoemaBinary(t *testing.T) string {
	t.Helper()
	noemaBinaryOnce.Do(func() {
		_, filename, _, ok := runtime.Caller(0)
		if !ok {
			noemaBinaryErr = os.ErrInvalid
			return
		}
		moduleRoot := filepath.Dir(filepath.Dir(filepath.Dir(filename)))

		tmpDir, err := os.MkdirTemp("", "noema-test-*")
		if err != nil {
			noemaBinaryErr = err
			return
		}
		noemaBinary = filepath.Join(tmpDir, "noema")

		cmd := exec.Command("go", "build", "-o", noemaBinary, "./cmd/noema")
		cmd.Dir = moduleRoot
		if output, err := cmd.CombinedOutput(); err != nil {
			noemaBinaryErr = &buildError{output: string(output), err: err}
			return
		}
	})
	if noemaBinaryErr != nil {
		t.Fatalf("failed to build noema: %v", noemaBinaryErr)
	}
	return noemaBinary
}

type buildError struct {
	output string
	err    error
}

func (e *buildError) Error() string {
	return e.err.Error() + ": " + e.output
}

// runNoema runs the binary against the given repository root and returns
// stdout. Fails the test on a nonzero exit unless wantErr is set.
func runNoema(t *testing.T, root string, wantErr bool, args ...string) string {
	t.Helper()
	cmd := exec.Command(getNoemaBinary(t), args...)
	cmd.Env = append(os.Environ(), "NOEMA_ROOT="+root)
	cmd.Dir = root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if wantErr && err == nil {
		t.Fatalf("noema %s: expected failure, got success\nstdout: %s", strings.Join(args, " "), stdout.String())
	}
	if !wantErr && err != nil {
		t.Fatalf("noema %s: %v\nstdout: %s\nstderr: %s", strings.Join(args, " "), err, stdout.String(), stderr.String())
	}
	return stdout.String()
}

// setupSeededRepo initializes a repository and seeds the Latin-1 range.
func setupSeededRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	runNoema(t, root, false, "init")
	runNoema(t, root, false, "seed", "--end", "255")
	return root
}

type ingestStats struct {
	ContentHash         string `json:"content_hash"`
	RootHash            string `json:"root_hash"`
	Deduplicated        bool   `json:"deduplicated"`
	CompositionsCreated int    `json:"compositions_created"`
	RelationsCreated    int    `json:"relations_created"`
	EvidenceAdded       int    `json:"evidence_added"`
}

func TestInitSeedIngestReconstruct(t *testing.T) {
	root := setupSeededRepo(t)

	input := filepath.Join(root, "greeting.txt")
	content := []byte("hello hello")
	if err := os.WriteFile(input, content, 0644); err != nil {
		t.Fatal(err)
	}

	var stats ingestStats
	out := runNoema(t, root, false, "ingest", input)
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("parsing ingest output: %v\n%s", err, out)
	}

	// "hello", " ", and the root; the repeated "hello" dedups, and the
	// single windowed pair collapses to one relation.
	if stats.CompositionsCreated != 3 {
		t.Errorf("compositions_created = %d, want 3", stats.CompositionsCreated)
	}
	if stats.RelationsCreated != 1 || stats.EvidenceAdded != 1 {
		t.Errorf("relations = %d evidence = %d, want 1 and 1", stats.RelationsCreated, stats.EvidenceAdded)
	}

	// Re-ingest is a pure dedup hit.
	var second ingestStats
	out = runNoema(t, root, false, "ingest", input)
	if err := json.Unmarshal([]byte(out), &second); err != nil {
		t.Fatalf("parsing second ingest output: %v", err)
	}
	if !second.Deduplicated || second.CompositionsCreated != 0 || second.RelationsCreated != 0 {
		t.Errorf("second ingest not idempotent: %+v", second)
	}
	if second.ContentHash != stats.ContentHash {
		t.Errorf("content hash changed across identical ingests")
	}

	// Byte-exact reconstruction.
	var resp struct {
		Text string `json:"text"`
	}
	out = runNoema(t, root, false, "reconstruct", stats.ContentHash)
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("parsing reconstruct output: %v", err)
	}
	if resp.Text != string(content) {
		t.Errorf("reconstruction = %q, want %q", resp.Text, string(content))
	}
}

func TestSeedTwiceFails(t *testing.T) {
	root := setupSeededRepo(t)
	runNoema(t, root, true, "seed", "--end", "255")
}

func TestIngestBeforeSeedFails(t *testing.T) {
	root := t.TempDir()
	runNoema(t, root, false, "init")

	input := filepath.Join(root, "a.txt")
	if err := os.WriteFile(input, []byte("hi"), 0644); err != nil {
		t.Fatal(err)
	}
	runNoema(t, root, true, "ingest", input)
}

func TestQueryAndStats(t *testing.T) {
	root := setupSeededRepo(t)

	input := filepath.Join(root, "words.txt")
	if err := os.WriteFile(input, []byte("alpha beta gamma"), 0644); err != nil {
		t.Fatal(err)
	}

	var stats ingestStats
	out := runNoema(t, root, false, "ingest", input)
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("parsing ingest output: %v", err)
	}

	var results []struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	out = runNoema(t, root, false, "query", "range")
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("parsing query output: %v\n%s", err, out)
	}
	if len(results) != stats.CompositionsCreated {
		t.Errorf("range query found %d compositions, want %d", len(results), stats.CompositionsCreated)
	}
	for _, r := range results {
		if len(r.Key) != 32 {
			t.Errorf("key %q is not 32 hex digits", r.Key)
		}
	}

	var repoStats struct {
		SeedVersion  int `json:"seed_version"`
		Atoms        int `json:"atoms"`
		Compositions int `json:"compositions"`
		Relations    int `json:"relations"`
		Contents     int `json:"contents"`
	}
	out = runNoema(t, root, false, "stats")
	if err := json.Unmarshal([]byte(out), &repoStats); err != nil {
		t.Fatalf("parsing stats output: %v", err)
	}
	if repoStats.SeedVersion != 1 {
		t.Errorf("seed_version = %d, want 1", repoStats.SeedVersion)
	}
	// Latin-1 minus the unseeded surrogate-free range is all 256 points.
	if repoStats.Atoms != 256 {
		t.Errorf("atoms = %d, want 256", repoStats.Atoms)
	}
	if repoStats.Compositions != stats.CompositionsCreated {
		t.Errorf("compositions = %d, want %d", repoStats.Compositions, stats.CompositionsCreated)
	}
	if repoStats.Contents != 1 {
		t.Errorf("contents = %d, want 1", repoStats.Contents)
	}
}

func TestRemoveContent(t *testing.T) {
	root := setupSeededRepo(t)

	input := filepath.Join(root, "gone.txt")
	if err := os.WriteFile(input, []byte("soon gone"), 0644); err != nil {
		t.Fatal(err)
	}

	var stats ingestStats
	out := runNoema(t, root, false, "ingest", input)
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("parsing ingest output: %v", err)
	}

	var removal struct {
		EvidenceInvalidated int `json:"evidence_invalidated"`
		RelationsRemoved    int `json:"relations_removed"`
		CompositionsRemoved int `json:"compositions_removed"`
	}
	out = runNoema(t, root, false, "remove", stats.ContentHash)
	if err := json.Unmarshal([]byte(out), &removal); err != nil {
		t.Fatalf("parsing remove output: %v", err)
	}
	if removal.CompositionsRemoved != stats.CompositionsCreated {
		t.Errorf("removed %d compositions, want %d", removal.CompositionsRemoved, stats.CompositionsCreated)
	}

	runNoema(t, root, true, "reconstruct", stats.ContentHash)

	// Evidence survives as invalidated provenance.
	var evidence []struct {
		Valid bool `json:"Valid"`
	}
	out = runNoema(t, root, false, "evidence", "--content", stats.ContentHash)
	if err := json.Unmarshal([]byte(out), &evidence); err != nil {
		t.Fatalf("parsing evidence output: %v", err)
	}
	if len(evidence) != 1 {
		t.Fatalf("got %d evidence records, want 1", len(evidence))
	}
	if evidence[0].Valid {
		t.Error("evidence still valid after content removal")
	}
}
