package indexer

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// skipDirs is the canonical set of directories the walker never
// descends into, per spec §4.1.
var skipDirs = map[string]bool{
	"node_modules": true, ".git": true, "target": true, "dist": true,
	"build": true, ".next": true, "vendor": true, ".cargo": true,
}

// MaxFileSize is the per-file size ceiling; larger files are skipped
// with a log line rather than parsed.
const MaxFileSize = 1 << 20 // 1 MiB

// WalkFile is one file the walker decided to hand to a language parser.
type WalkFile struct {
	AbsPath  string
	RelPath  string
	Language string
}

// Walk enumerates parseable files under root, respecting skipDirs, a
// best-effort .gitignore, and the per-file size ceiling. onSkip is
// called (if non-nil) with a reason when a file is excluded for
// exceeding MaxFileSize, so the caller can log it; files excluded by
// skipDirs or .gitignore are skipped without a callback.
func Walk(root string, registry *Registry, onSkip func(path, reason string)) ([]WalkFile, error) {
	ignore := loadGitignore(root)

	var files []WalkFile
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}

		if d.IsDir() {
			if skipDirs[d.Name()] || ignore.match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.TrimPrefix(filepath.Ext(path), ".")
		parser, ok := registry.Get(ext)
		if !ok {
			return nil
		}
		if ignore.match(rel, false) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > MaxFileSize {
			if onSkip != nil {
				onSkip(path, "exceeds max file size")
			}
			return nil
		}

		files = append(files, WalkFile{AbsPath: path, RelPath: rel, Language: parser.Language()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// gitignoreSet is a minimal, best-effort .gitignore matcher: exact
// path, path-prefix, and (for patterns without a "/") base-name
// matches only, no glob wildcards. Good enough to
// honor the common case ("vendor/", "*.log" is NOT supported) without
// pulling in a full gitignore-matching dependency the teacher doesn't
// already use elsewhere.
type gitignoreSet struct {
	patterns []string
}

func loadGitignore(root string) gitignoreSet {
	f, err := os.Open(filepath.Join(root, ".gitignore"))
	if err != nil {
		return gitignoreSet{}
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, strings.Trim(line, "/"))
	}
	return gitignoreSet{patterns: patterns}
}

func (g gitignoreSet) match(relPath string, isDir bool) bool {
	relPath = filepath.ToSlash(relPath)
	for _, p := range g.patterns {
		if p == "" {
			continue
		}
		if relPath == p || strings.HasPrefix(relPath, p+"/") {
			return true
		}
		if !strings.Contains(p, "/") {
			// Bare pattern like "*.log" without wildcard support:
			// match by base name only.
			if filepath.Base(relPath) == p {
				return true
			}
		}
	}
	return false
}
