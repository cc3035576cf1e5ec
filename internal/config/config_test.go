package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	contents := `function: nope
arguments: "--n 100"
copies: 4
backends: ["local"]
backend_options:
  local:
    run: "$CMD $ARGS"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	opts, err := ParseFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Function != "nope" {
		t.Errorf("expected function 'nope', got %q", opts.Function)
	}
	if opts.Copies != 4 {
		t.Errorf("expected copies 4, got %d", opts.Copies)
	}
	if len(opts.Backends) != 1 || opts.Backends[0] != "local" {
		t.Errorf("expected backends [local], got %v", opts.Backends)
	}
	if opts.BackendOptions["local"].Run != "$CMD $ARGS" {
		t.Errorf("expected local run template '$CMD $ARGS', got %q", opts.BackendOptions["local"].Run)
	}
}

func TestParseFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.json")
	contents := `{"function": "nope", "copies": 2}`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	opts, err := ParseFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Function != "nope" || opts.Copies != 2 {
		t.Errorf("unexpected options: %+v", opts)
	}
}

func TestParseFileRejectsUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.txt")
	if err := os.WriteFile(path, []byte("function: nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ParseFile(path); err == nil {
		t.Fatalf("expected an error for an unsupported extension")
	}
}

func TestMergeScalarsOverrideInOrder(t *testing.T) {
	base := Merge(DefaultOptions(), &Options{Function: "a", Copies: 2})
	overlay := Merge(base, &Options{Function: "b"})

	if overlay.Function != "b" {
		t.Errorf("expected the later layer's function to win, got %q", overlay.Function)
	}
	if overlay.Copies != 2 {
		t.Errorf("expected copies to survive from the earlier layer, got %d", overlay.Copies)
	}
}

func TestMergeBackendsAppendsAcrossLayers(t *testing.T) {
	result := DefaultOptions()
	result = Merge(result, &Options{Backends: []string{"local"}})
	result = Merge(result, &Options{Backends: []string{"ssh"}})
	result = Merge(result, &Options{Backends: []string{"local"}})

	if len(result.Backends) != 2 {
		t.Fatalf("expected two distinct backends, got %v", result.Backends)
	}
	if result.Backends[0] != "local" || result.Backends[1] != "ssh" {
		t.Errorf("expected [local ssh] in first-seen order, got %v", result.Backends)
	}
}

func TestMergeBackendOptionsMergesPerField(t *testing.T) {
	base := Merge(DefaultOptions(), &Options{
		BackendOptions: map[string]BackendConfig{
			"local": {Run: "$CMD $ARGS", Reset: "sync"},
		},
	})
	overlay := Merge(base, &Options{
		BackendOptions: map[string]BackendConfig{
			"local": {Run: "$CMD $ARGS --fast"},
		},
	})

	cfg := overlay.BackendOptions["local"]
	if cfg.Run != "$CMD $ARGS --fast" {
		t.Errorf("expected overlay run template to win, got %q", cfg.Run)
	}
	if cfg.Reset != "sync" {
		t.Errorf("expected base's reset template to survive, got %q", cfg.Reset)
	}
}

func TestMergeDoesNotMutateBase(t *testing.T) {
	base := Merge(DefaultOptions(), &Options{Backends: []string{"local"}})
	baseLen := len(base.Backends)

	_ = Merge(base, &Options{Backends: []string{"ssh"}})

	if len(base.Backends) != baseLen {
		t.Fatalf("expected Merge to leave base untouched, got %v", base.Backends)
	}
}

func TestValidateRequiresFunctionAndBackend(t *testing.T) {
	opts := DefaultOptions()
	err := Validate(opts)
	if err == nil {
		t.Fatal("expected an error for missing function and backends")
	}
}

func TestValidateAcceptsCompleteOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.Function = "nope"
	opts.Backends = []string{"local"}
	opts.BackendOptions = map[string]BackendConfig{"local": {Run: "$CMD"}}

	if err := Validate(opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsBackendWithoutRunTemplate(t *testing.T) {
	opts := DefaultOptions()
	opts.Function = "nope"
	opts.Backends = []string{"local"}
	opts.BackendOptions = map[string]BackendConfig{"local": {}}

	if err := Validate(opts); err == nil {
		t.Fatal("expected an error for a backend missing its run template")
	}
}

func TestPipelineResolveLayersConfigFilesInOrder(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.yaml")
	second := filepath.Join(dir, "second.yaml")

	if err := os.WriteFile(first, []byte("function: nope\ntask: base\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(second, []byte("task: override\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := &Pipeline{ConfigFiles: []string{first, second}}
	opts, err := p.Resolve()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Function != "nope" {
		t.Errorf("expected function from the first file to survive, got %q", opts.Function)
	}
	if opts.Task != "override" {
		t.Errorf("expected the later file's task to win, got %q", opts.Task)
	}
}

func TestPipelineResolveAutoLoadsBackend(t *testing.T) {
	dir := t.TempDir()
	backendsDir := filepath.Join(dir, "backends")
	if err := os.MkdirAll(backendsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(backendsDir, "local.yaml"), []byte("run: \"$CMD $ARGS\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := &Pipeline{
		CLIOverlay:  &Options{Function: "nope", Backends: []string{"local"}},
		BackendsDir: backendsDir,
	}
	opts, err := p.Resolve()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.BackendOptions["local"].Run != "$CMD $ARGS" {
		t.Errorf("expected the auto-loaded backend file to populate local's run template, got %+v", opts.BackendOptions["local"])
	}
}

func TestPipelineResolveCLIOverlayWinsLast(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	if err := os.WriteFile(path, []byte("task: from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := &Pipeline{
		ConfigFiles: []string{path},
		CLIOverlay:  &Options{Task: "from-cli"},
	}
	opts, err := p.Resolve()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Task != "from-cli" {
		t.Errorf("expected the CLI layer to win, got %q", opts.Task)
	}
}
