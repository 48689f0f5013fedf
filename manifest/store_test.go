package manifest

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), ".loom", "record.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RecordAndQuery(t *testing.T) {
	s := openTestStore(t)
	hash := "3f1c6a9e"

	if err := s.Record("idl/example.loom", hash, "go", []string{"gen/go/example.gen.go"}); err != nil {
		t.Fatal(err)
	}

	ok, err := s.UpToDate("idl/example.loom", hash, "go")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("UpToDate = false right after Record")
	}

	outputs, err := s.Outputs("idl/example.loom", "go")
	if err != nil {
		t.Fatal(err)
	}
	if len(outputs) != 1 || outputs[0] != "gen/go/example.gen.go" {
		t.Errorf("Outputs = %v", outputs)
	}
}

func TestStore_HashChangeInvalidates(t *testing.T) {
	s := openTestStore(t)
	if err := s.Record("a.loom", "hash-v1", "go", []string{"out.go"}); err != nil {
		t.Fatal(err)
	}
	ok, err := s.UpToDate("a.loom", "hash-v2", "go")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("UpToDate = true for a different schema hash")
	}
}

func TestStore_LanguagesAreIndependent(t *testing.T) {
	s := openTestStore(t)
	hash := "3f1c6a9e"
	if err := s.Record("a.loom", hash, "go", []string{"a.gen.go"}); err != nil {
		t.Fatal(err)
	}
	ok, err := s.UpToDate("a.loom", hash, "kotlin")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("kotlin reported up to date from a go record")
	}
}

func TestStore_RecordReplaces(t *testing.T) {
	s := openTestStore(t)
	hash := "3f1c6a9e"
	if err := s.Record("a.loom", hash, "go", []string{"old.gen.go"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Record("a.loom", hash, "go", []string{"new.gen.go"}); err != nil {
		t.Fatal(err)
	}
	outputs, err := s.Outputs("a.loom", "go")
	if err != nil {
		t.Fatal(err)
	}
	if len(outputs) != 1 || outputs[0] != "new.gen.go" {
		t.Errorf("Outputs = %v, want the replacement only", outputs)
	}
}

func TestStore_UnknownSchema(t *testing.T) {
	s := openTestStore(t)
	ok, err := s.UpToDate("missing.loom", "deadbeef", "go")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("UpToDate = true for an unrecorded schema")
	}
}
