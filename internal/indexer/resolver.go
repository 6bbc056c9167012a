package indexer

import (
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// ResolvedImport is the file an import path was resolved to.
type ResolvedImport struct {
	FilePath   string
	SymbolName string
	ModulePath string
}

// ImportResolver maps an import path found in one file to a file
// elsewhere in the same project. Returns ok=false when the import is
// external, relative-but-ambiguous, or simply not found on disk.
type ImportResolver interface {
	Resolve(importPath, projectRoot, fromFile string) (ResolvedImport, bool)
}

// RustImportResolver resolves crate::-rooted paths by walking the
// crate's module tree from src/lib.rs or src/main.rs, ported from the
// original Rust indexer's resolver.rs. super:: and self:: are
// explicitly left unresolved: both are relative to the call site, and
// the resolver here only receives the project root.
type RustImportResolver struct{}

func (RustImportResolver) Resolve(importPath, projectRoot, _ string) (ResolvedImport, bool) {
	rest, ok := strings.CutPrefix(importPath, "crate::")
	if !ok {
		return ResolvedImport{}, false
	}
	if strings.HasPrefix(importPath, "super::") || strings.HasPrefix(importPath, "self::") {
		return ResolvedImport{}, false
	}
	if strings.HasPrefix(importPath, "std::") || strings.HasPrefix(importPath, "core::") || strings.HasPrefix(importPath, "alloc::") {
		return ResolvedImport{}, false
	}

	crateRoot := findRustCrateRoot(projectRoot)
	if crateRoot == "" {
		return ResolvedImport{}, false
	}
	srcRoot := filepath.Dir(crateRoot)

	segments, symbolName := splitRustImport(rest)
	if len(segments) == 0 {
		return ResolvedImport{}, false
	}

	filePath, ok := resolveRustSegments(srcRoot, segments)
	if !ok {
		return ResolvedImport{}, false
	}

	return ResolvedImport{
		FilePath:   filePath,
		SymbolName: symbolName,
		ModulePath: "crate::" + strings.Join(segments, "::"),
	}, true
}

func findRustCrateRoot(projectRoot string) string {
	candidates := []string{
		filepath.Join(projectRoot, "src", "lib.rs"),
		filepath.Join(projectRoot, "src", "main.rs"),
		filepath.Join(projectRoot, "lib.rs"),
		filepath.Join(projectRoot, "main.rs"),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// resolveRustSegments tries segments/.../last.rs, then the mod.rs form.
func resolveRustSegments(srcRoot string, segments []string) (string, bool) {
	if len(segments) == 0 {
		return "", false
	}
	path := srcRoot
	for _, seg := range segments {
		path = filepath.Join(path, seg)
	}

	asFile := path + ".rs"
	if fileExists(asFile) && strings.HasPrefix(asFile, srcRoot) {
		return asFile, true
	}
	asMod := filepath.Join(path, "mod.rs")
	if fileExists(asMod) && strings.HasPrefix(asMod, srcRoot) {
		return asMod, true
	}
	return "", false
}

// splitRustImport splits "tools::core::Code" into (["tools", "core"],
// "Code") using the teacher-matching heuristic: the last segment is a
// symbol name when it starts with an uppercase letter.
func splitRustImport(importPath string) ([]string, string) {
	segments := strings.Split(importPath, "::")
	if len(segments) == 0 {
		return nil, ""
	}
	last := segments[len(segments)-1]
	isSymbol := last != "" && unicode.IsUpper(rune(last[0]))
	if isSymbol && len(segments) > 1 {
		return segments[:len(segments)-1], last
	}
	return segments, ""
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// RelativeImportResolver resolves Python/TypeScript/JavaScript-style
// relative imports (paths starting with "." or "/") to a file next to
// the importing file. Bare-name imports (no leading dot) are treated
// as external packages and left unresolved, matching the spec's
// "bare external crate paths are explicitly unresolvable" policy
// generalized to every supported language.
type RelativeImportResolver struct {
	// Extensions tried, in order, when the import path has none
	// (e.g. "./util" -> "util.py", "util/index.ts", ...).
	Extensions []string
}

func (r RelativeImportResolver) Resolve(importPath, _, fromFile string) (ResolvedImport, bool) {
	if !strings.HasPrefix(importPath, ".") && !strings.HasPrefix(importPath, "/") {
		return ResolvedImport{}, false
	}
	base := filepath.Join(filepath.Dir(fromFile), importPath)

	if filepath.Ext(base) != "" && fileExists(base) {
		return ResolvedImport{FilePath: base, ModulePath: importPath}, true
	}
	for _, ext := range r.Extensions {
		candidate := base + "." + ext
		if fileExists(candidate) {
			return ResolvedImport{FilePath: candidate, ModulePath: importPath}, true
		}
		indexCandidate := filepath.Join(base, "index."+ext)
		if fileExists(indexCandidate) {
			return ResolvedImport{FilePath: indexCandidate, ModulePath: importPath}, true
		}
	}
	return ResolvedImport{}, false
}

// ResolverFor returns the import resolver appropriate for a language.
func ResolverFor(language string) ImportResolver {
	switch language {
	case "rust":
		return RustImportResolver{}
	case "python":
		return RelativeImportResolver{Extensions: []string{"py"}}
	case "typescript":
		return RelativeImportResolver{Extensions: []string{"ts", "tsx"}}
	case "javascript":
		return RelativeImportResolver{Extensions: []string{"js", "jsx", "mjs", "cjs"}}
	default:
		return RelativeImportResolver{}
	}
}
