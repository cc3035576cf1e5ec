package main

import (
	"context"
	"encoding/csv"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"sharpbench.dev/internal/backend"
	"sharpbench.dev/internal/config"
	"sharpbench.dev/internal/orchestrator"
)

// TestSingleRepetitionProducesOneCSVRow exercises the full orchestrator
// pipeline for a Count(1) repeater against the local backend: the CSV log
// should end up with exactly one data row, repeat=1, concurrency=1, rank=0,
// and a numeric outer_time.
func TestSingleRepetitionProducesOneCSVRow(t *testing.T) {
	dir := t.TempDir()
	opts := &config.Options{
		Function:     "true",
		Task:         "T",
		Experiment:   "E",
		Directory:    dir,
		Copies:       1,
		Repeats:      "1",
		Mode:         config.ModeWrite,
		SkipSysSpecs: true,
		Backends:     []string{"local"},
		BackendOptions: map[string]config.BackendConfig{
			"local": {Run: "$CMD $ARGS"},
		},
	}

	if err := orchestrator.Run(context.Background(), opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows := readCSV(t, filepath.Join(dir, "E", "T.csv"))
	header, data := rows[0], rows[1:]
	if len(data) != 1 {
		t.Fatalf("expected exactly one data row, got %d: %v", len(data), data)
	}

	col := columnIndex(header)
	row := data[0]
	if row[col["repeat"]] != "1" {
		t.Errorf("expected repeat=1, got %q", row[col["repeat"]])
	}
	if row[col["concurrency"]] != "1" {
		t.Errorf("expected concurrency=1, got %q", row[col["concurrency"]])
	}
	if row[col["rank"]] != "0" {
		t.Errorf("expected rank=0, got %q", row[col["rank"]])
	}
	if _, err := strconv.ParseFloat(row[col["outer_time"]], 64); err != nil {
		t.Errorf("expected outer_time to be numeric, got %q", row[col["outer_time"]])
	}
}

// TestSleepOneSecondBoundsOuterTime runs `sleep 1` through the local backend
// and checks the recorded outer_time falls in a loose window around one
// second.
func TestSleepOneSecondBoundsOuterTime(t *testing.T) {
	dir := t.TempDir()
	opts := &config.Options{
		Function:     "sleep",
		Arguments:    "1",
		Task:         "T",
		Experiment:   "E",
		Directory:    dir,
		Copies:       1,
		Repeats:      "1",
		Mode:         config.ModeWrite,
		SkipSysSpecs: true,
		Backends:     []string{"local"},
		BackendOptions: map[string]config.BackendConfig{
			"local": {Run: "$CMD $ARGS"},
		},
	}

	if err := orchestrator.Run(context.Background(), opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows := readCSV(t, filepath.Join(dir, "E", "T.csv"))
	col := columnIndex(rows[0])
	outer, err := strconv.ParseFloat(rows[1][col["outer_time"]], 64)
	if err != nil {
		t.Fatalf("outer_time not numeric: %v", err)
	}
	if outer < 1.0 || outer > 2.0 {
		t.Errorf("expected outer_time in [1.0, 2.0], got %v", outer)
	}
}

// TestMPIStyleBackendEmitsOneCommandWithSingleNP checks that an mpi-style
// backend composes exactly one outermost command and substitutes $MPL
// exactly once.
func TestMPIStyleBackendEmitsOneCommandWithSingleNP(t *testing.T) {
	b, err := backend.New("mpi-like", config.BackendConfig{Run: "mpirun -np $MPL $CMD $ARGS"},
		backend.Context{Function: "nope"})
	if err != nil {
		t.Fatal(err)
	}
	chain := backend.NewChain([]*backend.Backend{b})

	cmds, err := chain.OutermostCommands(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(cmds) != 1 {
		t.Fatalf("expected exactly one outermost command, got %d: %v", len(cmds), cmds)
	}
	if n := strings.Count(cmds[0], "-np 2"); n != 1 {
		t.Errorf("expected '-np 2' to appear exactly once, got %d in %q", n, cmds[0])
	}
}

// TestSSHOuterSeesSingleCopyWhenInnerIsMPIStyle checks that when an
// mpi-style backend sits inside a non-mpi outer backend, the outer layer is
// invoked once (its own internal concurrency stays at 1) while the mpi
// layer still receives the full copy count via $MPL.
func TestSSHOuterSeesSingleCopyWhenInnerIsMPIStyle(t *testing.T) {
	ctx := backend.Context{Function: "nope"}
	ssh, err := backend.New("ssh", config.BackendConfig{Run: "ssh $HOST $CMD", Hosts: "h1,h2,h3"}, ctx)
	if err != nil {
		t.Fatal(err)
	}
	mpi, err := backend.New("mpi-like", config.BackendConfig{Run: "mpirun -np $MPL $CMD $ARGS"}, ctx)
	if err != nil {
		t.Fatal(err)
	}
	chain := backend.NewChain([]*backend.Backend{ssh, mpi})

	cmds, err := chain.OutermostCommands(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(cmds) != 1 {
		t.Fatalf("expected the ssh layer to emit a single command, got %d: %v", len(cmds), cmds)
	}
	if n := strings.Count(cmds[0], "-np 2"); n != 1 {
		t.Errorf("expected the mpi layer to see $MPL=2 exactly once, got %d in %q", n, cmds[0])
	}
	if !strings.Contains(cmds[0], "ssh h1") {
		t.Errorf("expected the outer ssh layer to be invoked once against its first host, got %q", cmds[0])
	}
}

// TestNestedLocalBackendsDoNotDuplicateArguments checks that wrapping a
// local backend in another local backend doesn't duplicate the inner
// command's argument string.
func TestNestedLocalBackendsDoNotDuplicateArguments(t *testing.T) {
	ctx := backend.Context{Function: "echo", Arguments: "test"}
	outer, err := backend.New("local", config.BackendConfig{Run: "$CMD $ARGS"}, ctx)
	if err != nil {
		t.Fatal(err)
	}
	inner, err := backend.New("local", config.BackendConfig{Run: "$CMD $ARGS"}, ctx)
	if err != nil {
		t.Fatal(err)
	}
	chain := backend.NewChain([]*backend.Backend{outer, inner})

	cmds, err := chain.OutermostCommands(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(cmds) != 1 {
		t.Fatalf("expected exactly one command, got %v", cmds)
	}

	out, err := exec.Command("sh", "-c", cmds[0]).Output()
	if err != nil {
		t.Fatalf("failed to run composed command %q: %v", cmds[0], err)
	}
	if n := strings.Count(string(out), "test"); n != 1 {
		t.Errorf("expected 'test' to appear exactly once in output, got %d in %q", n, out)
	}
}

// TestLaterConfigFileWinsTaskName checks that when two config files both set
// the task label, the later file (higher priority) wins.
func TestLaterConfigFileWinsTaskName(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "A.json")
	b := filepath.Join(dir, "B.json")
	if err := os.WriteFile(a, []byte(`{"task": "t3"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte(`{"task": "t4"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	pipeline := &config.Pipeline{ConfigFiles: []string{a, b}}
	opts, err := pipeline.Resolve()
	if err != nil {
		t.Fatal(err)
	}
	if opts.Task != "t4" {
		t.Fatalf("expected the later file's task to win, got %q", opts.Task)
	}
	if got := opts.Task + ".csv"; got != "t4.csv" {
		t.Errorf("expected output file t4.csv, derived %q", got)
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open csv %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to read csv %s: %v", path, err)
	}
	if len(rows) < 1 {
		t.Fatalf("expected at least a header row in %s", path)
	}
	return rows
}

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	return idx
}
