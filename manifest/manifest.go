// Package manifest handles loom.toml project configuration and the
// local generation record.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents a loom.toml project configuration.
type Manifest struct {
	Project Project      `toml:"project"`
	Go      GoTarget     `toml:"go"`
	Kotlin  KotlinTarget `toml:"kotlin"`

	// Dir is the directory containing the loom.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name string `toml:"name"`
	// Schemas lists the directories scanned for .loom files.
	Schemas []string `toml:"schemas"`
	// Copyright lines prepended to every generated file.
	Copyright []string `toml:"copyright"`
}

// GoTarget configures the Go binding output.
type GoTarget struct {
	Out     string `toml:"out"`
	Package string `toml:"package"`
}

// KotlinTarget configures the Kotlin binding output.
type KotlinTarget struct {
	Out     string `toml:"out"`
	Package string `toml:"package"`
	Runtime string `toml:"runtime"`
}

// Load parses a loom.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "loom.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if len(m.Project.Schemas) == 0 {
		m.Project.Schemas = []string{"schemas"}
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a loom.toml file, then
// loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "loom.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// SchemaDirPaths returns absolute paths for the configured schema
// directories.
func (m *Manifest) SchemaDirPaths() []string {
	var paths []string
	for _, d := range m.Project.Schemas {
		paths = append(paths, filepath.Join(m.Dir, d))
	}
	return paths
}

// StateDir returns the path to the .loom directory.
func (m *Manifest) StateDir() string {
	return filepath.Join(m.Dir, ".loom")
}

// RecordPath returns the path to the generation record database.
func (m *Manifest) RecordPath() string {
	return filepath.Join(m.StateDir(), "record.db")
}

// SchemaFiles lists every .loom file under the configured schema
// directories, sorted within each directory walk.
func (m *Manifest) SchemaFiles() ([]string, error) {
	var files []string
	for _, dir := range m.SchemaDirPaths() {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && filepath.Ext(path) == ".loom" {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", dir, err)
		}
	}
	return files, nil
}
