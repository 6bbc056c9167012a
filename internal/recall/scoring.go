package recall

import (
	"sort"
	"strings"

	"github.com/getmira/mira-core/pkg/models"
)

// Module-tree scope narrowing, ported from the original server's
// search/tree.rs: score every cartography module against the query terms
// and boost code hits whose file lives under one of the top-scoring
// module directories.
const (
	maxScopeModules = 3
	minModuleScore  = 2.0
	scopeBoost      = 1.3
)

func queryTerms(query string) []string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if t := strings.ToLower(f); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

// scoreModule weighs a module against query terms: name match 3pts,
// purpose match 2pts, export match 2pts, path match 1pt, per term.
func scoreModule(m *models.Module, terms []string) float64 {
	name := strings.ToLower(m.Name)
	dir := strings.ToLower(m.Directory)
	purpose := strings.ToLower(m.Purpose)

	var score float64
	for _, term := range terms {
		if strings.Contains(name, term) {
			score += 3
		}
		if strings.Contains(purpose, term) {
			score += 2
		}
		for _, e := range m.Exports {
			if strings.Contains(strings.ToLower(e), term) {
				score += 2
				break
			}
		}
		if strings.Contains(dir, term) {
			score += 1
		}
	}
	return score
}

// scopeModules scores every cartography module against the query and
// returns the directory prefixes of the top matches. Returns nil when the
// module tree is empty or nothing scores above minModuleScore.
func scopeModules(modules []*models.Module, query string) []string {
	terms := queryTerms(query)
	if len(terms) == 0 || len(modules) == 0 {
		return nil
	}

	type candidate struct {
		dir   string
		score float64
	}
	var scored []candidate
	for _, m := range modules {
		if s := scoreModule(m, terms); s > 0 {
			scored = append(scored, candidate{m.Directory, s})
		}
	}
	if len(scored) == 0 {
		return nil
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	var dirs []string
	for i, c := range scored {
		if i >= maxScopeModules {
			break
		}
		if c.score >= minModuleScore {
			dirs = append(dirs, c.dir)
		}
	}
	return dirs
}

// pathInScope reports whether filePath falls under one of the scope
// directory prefixes.
func pathInScope(filePath string, scopeDirs []string) bool {
	for _, prefix := range scopeDirs {
		if strings.HasPrefix(filePath, prefix) {
			return true
		}
	}
	return false
}
