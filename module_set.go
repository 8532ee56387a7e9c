package main

import (
	"path/filepath"
	"strings"
)

// ModuleInfo describes one Go module whose controllers are analysed.
type ModuleInfo struct {
	ModPath string // e.g. "example.com/shop"
	Dir     string // absolute path to module root
}

// ModuleSet holds all modules under analysis. The first module is primary:
// packages are loaded from its directory and relative positions are
// reported against it when a file belongs to no other module.
type ModuleSet struct {
	modules []ModuleInfo
}

// NewModuleSet builds a ModuleSet from a primary module and optional extras.
func NewModuleSet(primary ModuleInfo, extras []ModuleInfo) *ModuleSet {
	ms := &ModuleSet{
		modules: make([]ModuleInfo, 0, 1+len(extras)),
	}
	ms.modules = append(ms.modules, primary)
	ms.modules = append(ms.modules, extras...)
	return ms
}

// IsKnownPkg returns true if pkgPath belongs to any module in the set.
// A set whose modules have no module path accepts every package.
func (ms *ModuleSet) IsKnownPkg(pkgPath string) bool {
	var constrained bool
	for _, m := range ms.modules {
		if m.ModPath == "" {
			continue
		}
		constrained = true
		if pkgPath == m.ModPath || strings.HasPrefix(pkgPath, m.ModPath+"/") {
			return true
		}
	}
	return !constrained
}

// RelFile converts an absolute file path to a module-relative path, used for
// endpoint positions. Files outside every module keep their absolute path.
//
// When module directories are nested we prefer the most specific match
// (longest Dir) so the parent module does not claim a child's files.
func (ms *ModuleSet) RelFile(absPath string) string {
	bestRel := absPath
	bestDirLen := -1

	for _, m := range ms.modules {
		rel, err := filepath.Rel(m.Dir, absPath)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		if len(m.Dir) > bestDirLen {
			bestDirLen = len(m.Dir)
			bestRel = filepath.ToSlash(rel)
		}
	}
	return bestRel
}

// PrimaryDir returns the first (primary) module's directory.
func (ms *ModuleSet) PrimaryDir() string {
	if len(ms.modules) == 0 {
		return "."
	}
	return ms.modules[0].Dir
}

// Dirs returns all module infos.
func (ms *ModuleSet) Dirs() []ModuleInfo {
	return ms.modules
}

// LoadPatterns returns the patterns for packages.Load: the explicit patterns
// when given, else "<module>/..." for every module.
func (ms *ModuleSet) LoadPatterns(explicit []string) []string {
	if len(explicit) > 0 {
		return explicit
	}
	patterns := make([]string, 0, len(ms.modules))
	for _, m := range ms.modules {
		if m.ModPath == "" {
			patterns = append(patterns, "./...")
			continue
		}
		patterns = append(patterns, m.ModPath+"/...")
	}
	return patterns
}
