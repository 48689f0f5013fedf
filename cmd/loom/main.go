// Loom CLI - compiles .loom schemas into Go and Kotlin message bindings
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"

	"github.com/chazu/loom/compiler"
	"github.com/chazu/loom/compiler/hash"
	"github.com/chazu/loom/manifest"
	"github.com/chazu/loom/pkg/codegen"
	"github.com/chazu/loom/server"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	goOut := flag.String("go_out", "", "Directory for generated Go bindings")
	kotlinOut := flag.String("kotlin_out", "", "Directory for generated Kotlin bindings")
	pkgName := flag.String("package", "", "Override the generated package name (channel names keep the schema package)")
	configDir := flag.String("config", "", "Directory containing loom.toml (default: search upward from the working directory)")
	lspMode := flag.Bool("lsp", false, "Start the language server on stdio")
	dryRun := flag.Bool("dry-run", false, "Report what would be generated without writing files")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: loom [options] [schemas...]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles .loom schema files into Go and Kotlin bindings.\n")
		fmt.Fprintf(os.Stderr, "Without schema arguments, schemas come from loom.toml.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  loom --go_out ./gen messages.loom       # Generate Go bindings\n")
		fmt.Fprintf(os.Stderr, "  loom --go_out ./gen --kotlin_out ./kt   # Generate both, schemas from loom.toml\n")
		fmt.Fprintf(os.Stderr, "  loom --dry-run                          # Show what would be regenerated\n")
		fmt.Fprintf(os.Stderr, "  loom --lsp                              # Editor language server on stdio\n")
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 1
	}
	commonlog.Configure(verbosity, nil)

	if *lspMode {
		if err := server.NewLSP().Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg := runConfig{
		goOut:       *goOut,
		kotlinOut:   *kotlinOut,
		pkgOverride: *pkgName,
		configDir:   *configDir,
		dryRun:      *dryRun,
		schemas:     flag.Args(),
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type runConfig struct {
	goOut       string
	kotlinOut   string
	pkgOverride string
	configDir   string
	dryRun      bool
	schemas     []string
}

// target pairs an emitter with its resolved output directory and options.
type target struct {
	emitter codegen.Emitter
	out     string
	opts    codegen.Options
}

func run(cfg runConfig) error {
	log := commonlog.GetLogger("loom")

	mf, err := loadManifest(cfg.configDir)
	if err != nil {
		return err
	}

	schemas := cfg.schemas
	if len(schemas) == 0 && mf != nil {
		schemas, err = mf.SchemaFiles()
		if err != nil {
			return err
		}
	}
	if len(schemas) == 0 {
		return fmt.Errorf("no schemas: pass .loom files or configure loom.toml")
	}

	targets, err := resolveTargets(cfg, mf)
	if err != nil {
		return err
	}

	var store *manifest.Store
	if mf != nil && !cfg.dryRun {
		store, err = manifest.OpenStore(mf.RecordPath())
		if err != nil {
			return err
		}
		defer store.Close()
	}

	for _, schemaPath := range schemas {
		source, err := os.ReadFile(schemaPath)
		if err != nil {
			return err
		}
		defs, err := compiler.Build(schemaPath, string(source))
		if err != nil {
			return err
		}

		// Hash the analyzed model, not the bytes: formatting-only edits
		// leave the generated output untouched.
		schemaHash := hash.Hex(defs)

		for _, tgt := range targets {
			lang := tgt.emitter.Language()

			if store != nil {
				current, err := store.UpToDate(schemaPath, schemaHash, lang)
				if err != nil {
					return err
				}
				if current && outputsExist(store, schemaPath, lang, tgt.out) {
					log.Infof("%s: %s bindings up to date", schemaPath, lang)
					continue
				}
			}

			files, err := tgt.emitter.Emit(defs, tgt.opts)
			if err != nil {
				return fmt.Errorf("%s: %w", schemaPath, err)
			}

			names := make([]string, 0, len(files))
			for _, f := range files {
				names = append(names, f.Name)
				outPath := filepath.Join(tgt.out, f.Name)
				if cfg.dryRun {
					fmt.Printf("would write %s\n", outPath)
					continue
				}
				if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
					return err
				}
				if err := os.WriteFile(outPath, f.Content, 0o644); err != nil {
					return err
				}
				log.Infof("wrote %s", outPath)
			}

			if store != nil {
				if err := store.Record(schemaPath, schemaHash, lang, names); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

// loadManifest resolves the project manifest. An explicit --config that
// fails to load is an error; an absent loom.toml in the search path is not.
func loadManifest(configDir string) (*manifest.Manifest, error) {
	if configDir != "" {
		return manifest.Load(configDir)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return manifest.FindAndLoad(cwd)
}

// resolveTargets merges flags over the manifest into the set of emitters
// to run. Flags win; the manifest fills gaps.
func resolveTargets(cfg runConfig, mf *manifest.Manifest) ([]target, error) {
	var copyright []string
	if mf != nil {
		copyright = mf.Project.Copyright
	}

	goOut := cfg.goOut
	goPkg := cfg.pkgOverride
	kotlinOut := cfg.kotlinOut
	kotlinPkg := cfg.pkgOverride
	kotlinRuntime := ""
	if mf != nil {
		if goOut == "" && mf.Go.Out != "" {
			goOut = filepath.Join(mf.Dir, mf.Go.Out)
		}
		if goPkg == "" {
			goPkg = mf.Go.Package
		}
		if kotlinOut == "" && mf.Kotlin.Out != "" {
			kotlinOut = filepath.Join(mf.Dir, mf.Kotlin.Out)
		}
		if kotlinPkg == "" {
			kotlinPkg = mf.Kotlin.Package
		}
		kotlinRuntime = mf.Kotlin.Runtime
	}

	var targets []target
	if goOut != "" {
		targets = append(targets, target{
			emitter: codegen.GoEmitter{},
			out:     goOut,
			opts:    codegen.Options{PackageName: goPkg, CopyrightHeader: copyright},
		})
	}
	if kotlinOut != "" {
		targets = append(targets, target{
			emitter: codegen.KotlinEmitter{RuntimePackage: kotlinRuntime},
			out:     kotlinOut,
			opts:    codegen.Options{PackageName: kotlinPkg, CopyrightHeader: copyright},
		})
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no outputs: pass --go_out or --kotlin_out, or configure loom.toml")
	}
	return targets, nil
}

// outputsExist reports whether every file the record lists for this
// schema and language is still on disk. A deleted output is stale even
// when the schema hash matches.
func outputsExist(store *manifest.Store, schemaPath, lang, outDir string) bool {
	names, err := store.Outputs(schemaPath, lang)
	if err != nil || len(names) == 0 {
		return false
	}
	for _, name := range names {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			return false
		}
	}
	return true
}
