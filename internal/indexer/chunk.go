package indexer

import (
	"fmt"
	"strings"

	"github.com/getmira/mira-core/pkg/models"
)

// ChunkLineBudget is the maximum number of source lines per chunk
// before a symbol spills into continuation chunks.
const ChunkLineBudget = 120

// Chunk is one unit handed to the embedding client, with enough
// payload to reconstruct the code context builder uses for expansion.
type Chunk struct {
	Text       string
	FilePath   string
	SymbolName string
	StartLine  int
	EndLine    int
}

// ChunkSymbols turns a file's symbols into one-chunk-per-symbol (with
// continuation chunks for oversized symbols), each prefixed by a
// header comment line of the form "// <kind> <name>[: <signature>]"
// per spec §4.1 step 5.
func ChunkSymbols(filePath string, lines []string, symbols []*models.CodeSymbol) []Chunk {
	var chunks []Chunk
	for _, sym := range symbols {
		header := chunkHeader(sym)
		start := sym.StartLine
		end := sym.EndLine
		if start < 1 {
			start = 1
		}
		if end > len(lines) {
			end = len(lines)
		}
		if start > end {
			continue
		}

		for lo := start; lo <= end; lo += ChunkLineBudget {
			hi := lo + ChunkLineBudget - 1
			if hi > end {
				hi = end
			}
			body := strings.Join(lines[lo-1:hi], "\n")
			chunks = append(chunks, Chunk{
				Text:       header + "\n" + body,
				FilePath:   filePath,
				SymbolName: sym.QualifiedName,
				StartLine:  lo,
				EndLine:    hi,
			})
		}
	}
	return chunks
}

func chunkHeader(sym *models.CodeSymbol) string {
	if sym.Signature != "" {
		return fmt.Sprintf("// %s %s: %s", sym.SymbolType, sym.QualifiedName, sym.Signature)
	}
	return fmt.Sprintf("// %s %s", sym.SymbolType, sym.QualifiedName)
}
