package main

import (
	"bufio"
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
)

// Package is one loaded, type-checked package of the analysed program.
type Package struct {
	Path   string
	Types  *types.Package
	Info   *types.Info
	Syntax []*ast.File
	Files  []string // absolute file names, parallel to Syntax
	SSA    *ssa.Package
}

// Program is everything the extractors need: syntax for markers, types for
// signatures and SSA for the call scan.
type Program struct {
	Fset     *token.FileSet
	Packages []*Package
	SSA      *ssa.Program
	Modules  *ModuleSet
}

// LoadOptions controls LoadProgram.
type LoadOptions struct {
	Patterns  []string
	SkipTests bool
}

// readModulePath returns the module path from dir/go.mod, or "" if unreadable.
func readModulePath(dir string) string {
	f, err := os.Open(filepath.Join(dir, "go.mod"))
	if err != nil {
		return ""
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "module ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "module "))
		}
	}
	return ""
}

// CreateTempGoWork writes a temporary go.work file that includes all modules
// in the ModuleSet. Returns the path to the temp file (caller must os.Remove).
// Modules declaring an already-listed module path are skipped to avoid
// "module appears multiple times".
func CreateTempGoWork(ms *ModuleSet) (string, error) {
	var buf strings.Builder
	buf.WriteString("go 1.25.0\n\nuse (\n")

	seenModPaths := make(map[string]bool, len(ms.Dirs()))
	for _, m := range ms.Dirs() {
		modPath := m.ModPath
		if modPath == "" {
			modPath = readModulePath(m.Dir)
		}
		if modPath != "" && seenModPaths[modPath] {
			continue
		}
		seenModPaths[modPath] = true
		buf.WriteString("\t" + m.Dir + "\n")
	}
	buf.WriteString(")\n")

	f, err := os.CreateTemp("", "sprocheck-workspace-*.work")
	if err != nil {
		return "", fmt.Errorf("create temp go.work: %w", err)
	}
	if _, err := f.WriteString(buf.String()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write go.work: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// LoadProgram loads and type-checks the packages of every module in ms and
// builds their SSA form. Packages with type errors are kept and logged; the
// extractors skip declarations they cannot resolve.
func LoadProgram(ms *ModuleSet, opts LoadOptions, prog *Progress) (*Program, error) {
	patterns := ms.LoadPatterns(opts.Patterns)
	prog.Log("Loading packages %v (%d modules)...", patterns, len(ms.Dirs()))

	env := os.Environ()
	if len(ms.Dirs()) > 1 {
		gowork, err := CreateTempGoWork(ms)
		if err != nil {
			return nil, err
		}
		defer os.Remove(gowork)
		env = replaceEnv(env, "GOWORK", gowork)
	}

	fset := token.NewFileSet()
	cfg := &packages.Config{
		Mode: packages.NeedName |
			packages.NeedFiles |
			packages.NeedCompiledGoFiles |
			packages.NeedImports |
			packages.NeedDeps |
			packages.NeedTypes |
			packages.NeedSyntax |
			packages.NeedTypesInfo |
			packages.NeedTypesSizes,
		Dir:   ms.PrimaryDir(),
		Fset:  fset,
		Tests: !opts.SkipTests,
		Env:   env,
	}

	initial, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("packages.Load: %w", err)
	}

	// Filter to known module packages only. With Tests enabled a package
	// shows up twice; keep the test variant since it is a superset.
	byPath := make(map[string]int, len(initial))
	filtered := make([]*packages.Package, 0, len(initial))
	var errCount int
	for _, pkg := range initial {
		if !ms.IsKnownPkg(pkg.PkgPath) || strings.HasSuffix(pkg.PkgPath, ".test") {
			continue
		}
		if len(pkg.Errors) > 0 {
			errCount++
			prog.Verbose("  warning: %s has %d errors: %v", pkg.PkgPath, len(pkg.Errors), pkg.Errors[0])
		}
		if i, dup := byPath[pkg.PkgPath]; dup {
			if strings.Contains(pkg.ID, "[") {
				filtered[i] = pkg
			}
			continue
		}
		byPath[pkg.PkgPath] = len(filtered)
		filtered = append(filtered, pkg)
	}

	var fileCount int
	for _, pkg := range filtered {
		for _, f := range pkg.CompiledGoFiles {
			if !shouldSkipFile(f, opts.SkipTests) {
				fileCount++
			}
		}
	}
	prog.Log("Loaded %d packages (%d files)", len(filtered), fileCount)
	if errCount > 0 {
		prog.Log("  %d packages had type-check errors (continuing)", errCount)
	}

	ssaProg, ssaPkgs := BuildSSA(filtered, prog)

	out := &Program{Fset: fset, SSA: ssaProg, Modules: ms}
	for i, pkg := range filtered {
		if pkg.Types == nil {
			continue
		}
		out.Packages = append(out.Packages, &Package{
			Path:   pkg.PkgPath,
			Types:  pkg.Types,
			Info:   pkg.TypesInfo,
			Syntax: pkg.Syntax,
			Files:  pkg.CompiledGoFiles,
			SSA:    ssaPkgs[i],
		})
	}
	return out, nil
}

// replaceEnv returns a copy of environ with key set to val, replacing any
// existing entry for key. Duplicate env vars have platform-dependent
// behavior (last-wins on Linux, first-wins on some BSDs).
func replaceEnv(environ []string, key, val string) []string {
	prefix := key + "="
	result := make([]string, 0, len(environ)+1)
	for _, e := range environ {
		if !strings.HasPrefix(e, prefix) {
			result = append(result, e)
		}
	}
	return append(result, prefix+val)
}

// shouldSkipFile returns true for test files (when skipped) and generated
// protobuf files, neither of which declares controllers.
func shouldSkipFile(path string, skipTests bool) bool {
	base := BaseName(filepath.ToSlash(path))
	if skipTests && strings.HasSuffix(base, "_test.go") {
		return true
	}
	return strings.HasSuffix(base, ".pb.go")
}

// Position formats pos relative to the module set as "file:line".
func (p *Program) Position(pos token.Pos) string {
	if !pos.IsValid() {
		return ""
	}
	position := p.Fset.Position(pos)
	file := position.Filename
	if p.Modules != nil {
		file = p.Modules.RelFile(file)
	}
	return PosString(file, position.Line)
}
