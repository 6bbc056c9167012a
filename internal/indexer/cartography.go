package indexer

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/getmira/mira-core/pkg/models"
)

// maxHeuristicExports bounds the purpose summary's export list so it
// stays a one-sentence line rather than a full export dump.
const maxHeuristicExports = 5

// BuildModules groups every indexed file under a project into
// directory-scoped modules, computing each module's exported symbols
// and its dependencies on other modules from resolved imports. Purpose
// is generated by the heuristic fallback formula; a purpose already
// set by an LLM call (HeuristicPurpose == false) is left untouched on
// re-run rather than being overwritten by this pass, per spec §4.1's
// cartographer step.
func (ix *Indexer) BuildModules(ctx context.Context, projectID, root string) error {
	files, err := ix.Store.FilesByProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}

	byDir := make(map[string][]*models.RepositoryFile)
	for _, f := range files {
		dir := filepath.Dir(f.FilePath)
		byDir[dir] = append(byDir[dir], f)
	}

	existing, err := ix.Store.ModulesByProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("list existing modules: %w", err)
	}
	llmPurpose := make(map[string]string, len(existing))
	for _, m := range existing {
		if !m.HeuristicPurpose && m.Purpose != "" {
			llmPurpose[m.Directory] = m.Purpose
		}
	}

	dirToModuleName := make(map[string]string, len(byDir))
	for dir := range byDir {
		dirToModuleName[dir] = moduleName(dir)
	}

	for dir, dirFiles := range byDir {
		mod, err := ix.buildOneModule(ctx, projectID, root, dir, dirFiles, dirToModuleName)
		if err != nil {
			return fmt.Errorf("build module %s: %w", dir, err)
		}
		if purpose, ok := llmPurpose[dir]; ok {
			mod.Purpose = purpose
			mod.HeuristicPurpose = false
		}
		if err := ix.Store.UpsertModule(ctx, mod); err != nil {
			return fmt.Errorf("upsert module %s: %w", dir, err)
		}
	}
	return nil
}

func (ix *Indexer) buildOneModule(ctx context.Context, projectID, root, dir string, files []*models.RepositoryFile, dirToModuleName map[string]string) (*models.Module, error) {
	var exports []string
	var lineCount, symbolCount int
	dependsOn := map[string]bool{}

	for _, f := range files {
		symbols, err := ix.Store.SymbolsByFile(ctx, projectID, f.FilePath)
		if err != nil {
			return nil, err
		}
		symbolCount += len(symbols)
		for _, sym := range symbols {
			lineCount += sym.EndLine - sym.StartLine + 1
			if isExported(sym) {
				exports = append(exports, sym.QualifiedName)
			}
		}

		imports, err := ix.Store.ImportsByFile(ctx, projectID, f.FilePath)
		if err != nil {
			return nil, err
		}
		resolver := ResolverFor(f.Language)
		for _, imp := range imports {
			if imp.IsExternal {
				continue
			}
			resolved, ok := resolver.Resolve(imp.ImportPath, root, filepath.Join(root, f.FilePath))
			if !ok {
				continue
			}
			rel, err := filepath.Rel(root, resolved.FilePath)
			if err != nil {
				continue
			}
			depDir := filepath.Dir(rel)
			if depDir == dir {
				continue
			}
			if name, ok := dirToModuleName[depDir]; ok {
				dependsOn[name] = true
			}
		}
	}

	sort.Strings(exports)
	deps := make([]string, 0, len(dependsOn))
	for d := range dependsOn {
		deps = append(deps, d)
	}
	sort.Strings(deps)

	name := dirToModuleName[dir]
	return &models.Module{
		ID:               moduleID(projectID, dir),
		ProjectID:        projectID,
		Name:             name,
		Directory:        dir,
		Purpose:          heuristicPurpose(name, lineCount, exports),
		HeuristicPurpose: true,
		Exports:          exports,
		DependsOn:        deps,
		SymbolCount:      symbolCount,
		LineCount:        lineCount,
	}, nil
}

// isExported approximates "publicly reachable" per language: Go-style
// capitalized names, Rust's "pub" visibility, and Python/TS/JS symbols
// that don't start with an underscore.
func isExported(sym *models.CodeSymbol) bool {
	if sym.Name == "" {
		return false
	}
	if sym.Language == "rust" {
		return sym.Visibility == "pub"
	}
	if strings.HasPrefix(sym.Name, "_") {
		return false
	}
	return true
}

func moduleName(dir string) string {
	if dir == "." {
		return "root"
	}
	return filepath.Base(dir)
}

func moduleID(projectID, dir string) string {
	return sha256Hex([]byte(projectID + ":" + dir))
}

// heuristicPurpose is the fallback summary used until an LLM-generated
// purpose (C6) replaces it.
func heuristicPurpose(name string, lineCount int, exports []string) string {
	top := exports
	if len(top) > maxHeuristicExports {
		top = top[:maxHeuristicExports]
	}
	if len(top) == 0 {
		return fmt.Sprintf("%s module (%d lines).", name, lineCount)
	}
	return fmt.Sprintf("%s module (%d lines). Exports: %s", name, lineCount, strings.Join(top, ", "))
}
