package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/loom/manifest"
)

const testSchema = `package example;

enum Code {
  one,
  two
}

host api ExampleHostApi {
  int add(int a, int b);
}
`

// writeProject lays down a loom.toml project with one schema file and
// returns its directory.
func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	toml := `[project]
name = "example"
schemas = ["schemas"]
copyright = ["Copyright 2026 Example Authors."]

[go]
out = "gen"

[kotlin]
out = "kt"
package = "dev.example.messages"
`
	if err := os.WriteFile(filepath.Join(dir, "loom.toml"), []byte(toml), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "schemas"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "schemas", "example.loom"), []byte(testSchema), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestRun_GeneratesFromManifest(t *testing.T) {
	dir := writeProject(t)

	if err := run(runConfig{configDir: dir}); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	goPath := filepath.Join(dir, "gen", "example.gen.go")
	content, err := os.ReadFile(goPath)
	if err != nil {
		t.Fatalf("expected Go output at %s: %v", goPath, err)
	}
	if len(content) == 0 {
		t.Error("Go output should not be empty")
	}

	ktPath := filepath.Join(dir, "kt", "Example.gen.kt")
	if _, err := os.Stat(ktPath); err != nil {
		t.Fatalf("expected Kotlin output at %s: %v", ktPath, err)
	}
}

func TestRun_SecondRunIsUpToDate(t *testing.T) {
	dir := writeProject(t)

	if err := run(runConfig{configDir: dir}); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	goPath := filepath.Join(dir, "gen", "example.gen.go")
	before, err := os.Stat(goPath)
	if err != nil {
		t.Fatal(err)
	}

	if err := run(runConfig{configDir: dir}); err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	after, err := os.Stat(goPath)
	if err != nil {
		t.Fatal(err)
	}
	if !after.ModTime().Equal(before.ModTime()) {
		t.Error("up-to-date output should not be rewritten")
	}
}

func TestRun_DeletedOutputIsRegenerated(t *testing.T) {
	dir := writeProject(t)

	if err := run(runConfig{configDir: dir}); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	goPath := filepath.Join(dir, "gen", "example.gen.go")
	if err := os.Remove(goPath); err != nil {
		t.Fatal(err)
	}

	if err := run(runConfig{configDir: dir}); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if _, err := os.Stat(goPath); err != nil {
		t.Errorf("deleted output should be regenerated: %v", err)
	}
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	dir := writeProject(t)

	if err := run(runConfig{configDir: dir, dryRun: true}); err != nil {
		t.Fatalf("dry run failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "gen")); !os.IsNotExist(err) {
		t.Error("dry run should not create output directories")
	}
}

func TestRun_BrokenSchemaReportsDiagnostics(t *testing.T) {
	dir := writeProject(t)
	broken := filepath.Join(dir, "schemas", "broken.loom")
	if err := os.WriteFile(broken, []byte("package example;\nclass {"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := run(runConfig{configDir: dir})
	if err == nil {
		t.Fatal("run over a broken schema should fail")
	}
}

func TestRun_NoSchemasIsAnError(t *testing.T) {
	dir := t.TempDir()
	err := run(runConfig{goOut: dir, schemas: nil, configDir: ""})
	if err == nil {
		t.Fatal("run without schemas should fail")
	}
}

func TestResolveTargets_FlagsWinOverManifest(t *testing.T) {
	mf := &manifest.Manifest{Dir: "/proj"}
	mf.Go.Out = "gen"
	mf.Go.Package = "fromtoml"

	targets, err := resolveTargets(runConfig{goOut: "/elsewhere", pkgOverride: "fromflag"}, mf)
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 1 {
		t.Fatalf("got %d targets, want 1", len(targets))
	}
	if targets[0].out != "/elsewhere" {
		t.Errorf("out = %q, want flag value", targets[0].out)
	}
	if targets[0].opts.PackageName != "fromflag" {
		t.Errorf("package = %q, want flag value", targets[0].opts.PackageName)
	}
}

func TestResolveTargets_NoOutputs(t *testing.T) {
	if _, err := resolveTargets(runConfig{}, nil); err == nil {
		t.Fatal("resolveTargets without outputs should fail")
	}
}

func TestResolveTargets_ManifestPathsAreProjectRelative(t *testing.T) {
	mf := &manifest.Manifest{Dir: "/proj"}
	mf.Kotlin.Out = "kt"

	targets, err := resolveTargets(runConfig{}, mf)
	if err != nil {
		t.Fatal(err)
	}
	if targets[0].out != filepath.Join("/proj", "kt") {
		t.Errorf("out = %q, want project-relative path", targets[0].out)
	}
}
