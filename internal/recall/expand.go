package recall

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxExpandFileBytes mirrors the indexer's walker size cap (internal/
// indexer.MaxFileSize): a file this large is typically generated code, so
// expansion is skipped and the chunk is returned as-is rather than risking
// an oversized response.
const maxExpandFileBytes = 1 << 20

// expanded is a chunk's header plus the context-expanded source it refers
// to; expandContext always returns one, falling back all the way to the
// original chunk text when expansion is impossible.
type expanded struct {
	header  string
	content string
}

// parseSymbolHeader recovers the (kind, name) pair from a chunk header
// line written by internal/indexer's chunkHeader: "// <kind> <name>",
// "// <kind> <name>: <signature>", or "// <kind> <name> (continued)".
// Module-level chunks ("// module-level code...") and anything without
// the leading comment return ok=false.
func parseSymbolHeader(chunkContent string) (kind, name string, ok bool) {
	firstLine, _, _ := strings.Cut(chunkContent, "\n")
	rest, found := strings.CutPrefix(firstLine, "// ")
	if !found {
		return "", "", false
	}
	if strings.HasPrefix(rest, "module") {
		return "", "", false
	}
	k, remainder, found := strings.Cut(rest, " ")
	if !found {
		return "", "", false
	}

	var n string
	switch {
	case strings.Contains(remainder, ":"):
		n, _, _ = strings.Cut(remainder, ":")
	case strings.Contains(remainder, " (continued)"):
		n, _, _ = strings.Cut(remainder, " (continued)")
	default:
		n = remainder
	}
	n = strings.TrimSpace(n)
	if n == "" {
		return "", "", false
	}
	return k, n, true
}

func withinExpandSizeLimit(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() <= maxExpandFileBytes
}

// expandContext recovers as much surrounding source as it safely can for
// one code search hit, in three tiers (spec §4.2): a DB-backed full-symbol
// read, a +-5 line substring fallback, or the raw chunk unchanged.
func (e *Engine) expandContext(ctx context.Context, projectID, projectRoot, filePath, chunkContent string) expanded {
	var headerLine string
	if strings.HasPrefix(chunkContent, "// ") {
		headerLine, _, _ = strings.Cut(chunkContent, "\n")
	}

	if projectRoot == "" {
		return expanded{header: headerLine, content: chunkContent}
	}
	fullPath := filepath.Join(projectRoot, filePath)

	if kind, name, ok := parseSymbolHeader(chunkContent); ok {
		if start, end, found := e.lookupSymbolBounds(ctx, projectID, filePath, name); found && withinExpandSizeLimit(fullPath) {
			if data, err := os.ReadFile(fullPath); err == nil {
				lines := strings.Split(string(data), "\n")
				startIdx := start - 1
				if startIdx < 0 {
					startIdx = 0
				}
				endIdx := end
				if endIdx > len(lines) {
					endIdx = len(lines)
				}
				if startIdx < len(lines) && startIdx < endIdx {
					return expanded{
						header:  fmt.Sprintf("// %s %s (lines %d-%d)", kind, name, start, end),
						content: strings.Join(lines[startIdx:endIdx], "\n"),
					}
				}
			}
		}
	}

	if withinExpandSizeLimit(fullPath) {
		if data, err := os.ReadFile(fullPath); err == nil {
			fileStr := string(data)
			search := chunkContent
			if strings.HasPrefix(chunkContent, "// ") {
				_, rest, _ := strings.Cut(chunkContent, "\n")
				search = rest
			}
			if pos := strings.Index(fileStr, search); pos >= 0 {
				linesBefore := strings.Count(fileStr[:pos], "\n")
				allLines := strings.Split(fileStr, "\n")
				matchLines := strings.Count(search, "\n") + 1

				start := linesBefore - 5
				if start < 0 {
					start = 0
				}
				end := linesBefore + matchLines + 5
				if end > len(allLines) {
					end = len(allLines)
				}
				return expanded{header: headerLine, content: strings.Join(allLines[start:end], "\n")}
			}
		}
	}

	return expanded{header: headerLine, content: chunkContent}
}

// lookupSymbolBounds finds a file-scoped symbol's (start, end) line range
// by exact name match against the indexed symbol table.
func (e *Engine) lookupSymbolBounds(ctx context.Context, projectID, filePath, name string) (start, end int, found bool) {
	symbols, err := e.Store.SymbolsByFile(ctx, projectID, filePath)
	if err != nil {
		return 0, 0, false
	}
	for _, sym := range symbols {
		if sym.Name == name {
			return sym.StartLine, sym.EndLine, true
		}
	}
	return 0, 0, false
}

// expandCodeHit is expandContext's counterpart for vector-search hits: the
// index stores a chunk's (file, symbol, line range) as payload metadata
// rather than its raw text, so there is no header line to parse. It
// follows the same three tiers in spirit: re-look-up the symbol's current
// bounds (the file may have changed since the chunk was embedded), fall
// back to the stored chunk bounds padded by 5 lines, and finally give up
// with no expanded content at all (the caller still has FilePath/Start/EndLine).
func (e *Engine) expandCodeHit(ctx context.Context, projectID, projectRoot, filePath, symbolName string, startLine, endLine int) string {
	if projectRoot == "" {
		return ""
	}
	fullPath := filepath.Join(projectRoot, filePath)
	if !withinExpandSizeLimit(fullPath) {
		return ""
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return ""
	}
	lines := strings.Split(string(data), "\n")

	start, end := startLine, endLine
	if symbolName != "" {
		if s, e2, found := e.lookupSymbolBounds(ctx, projectID, filePath, symbolName); found {
			start, end = s, e2
		}
	} else {
		start -= 5
		end += 5
	}

	startIdx := start - 1
	if startIdx < 0 {
		startIdx = 0
	}
	endIdx := end
	if endIdx > len(lines) {
		endIdx = len(lines)
	}
	if startIdx >= endIdx || startIdx >= len(lines) {
		return ""
	}
	return strings.Join(lines[startIdx:endIdx], "\n")
}
