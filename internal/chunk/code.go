package chunk

import (
	"strings"

	"ragcore/internal/storage"
)

// CodeChunk is a single scope-bounded code region plus the metadata
// attached to the persisted storage.Chunk.
type CodeChunk struct {
	Text string
	Meta storage.CodeMetadata
}

// CodeChunkFile splits source code along language-specific block starters
// (function/class/type declarations), tracking bracket and quote nesting so
// a block boundary is never cut inside an open string literal or brace
// group (spec.md §4.3). Blocks over chunkSize tokens are re-split at line
// boundaries by splitOversizedBlock, which does not track brackets or
// string literals; a single line over chunkSize tokens is kept whole, so
// such a chunk exceeds chunkSize.
func CodeChunkFile(lang, text string, chunkSize int, countTokens func(string) int) []CodeChunk {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	starters := blockStartersFor(lang)

	var blocks []CodeChunk
	var cur []string
	curStart := 1
	depth := 0
	inString := byte(0)

	flush := func(endLine int) {
		if len(cur) == 0 {
			return
		}
		body := strings.TrimRight(strings.Join(cur, "\n"), "\n")
		if strings.TrimSpace(body) == "" {
			cur = nil
			return
		}
		blocks = append(blocks, CodeChunk{
			Text: body,
			Meta: storage.CodeMetadata{
				Language:        lang,
				StartLine:       curStart,
				EndLine:         endLine,
				ContainingScope: scopeNameOf(body, starters),
				ScopeType:       scopeTypeOf(body),
			},
		})
		cur = nil
	}

	for i, line := range lines {
		lineNo := i + 1
		atTopLevel := depth == 0 && inString == 0
		if atTopLevel && isBlockStart(line, starters) && len(cur) > 0 {
			flush(lineNo - 1)
			curStart = lineNo
		}
		if len(cur) == 0 {
			curStart = lineNo
		}
		cur = append(cur, line)
		depth, inString = trackBalance(line, depth, inString)
	}
	flush(len(lines))

	// Fold oversized blocks back through line-granularity grouping.
	var out []CodeChunk
	for _, b := range blocks {
		if countTokens(b.Text) <= chunkSize {
			out = append(out, b)
			continue
		}
		out = append(out, splitOversizedBlock(b, chunkSize, countTokens)...)
	}
	return out
}

func isBlockStart(line string, starters []string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	for _, s := range starters {
		if strings.HasPrefix(trimmed, s) {
			return true
		}
	}
	return false
}

// trackBalance updates brace depth and string-literal state across a line,
// so isBlockStart is only honored outside both (spec.md §4.3 "never split
// mid bracket-group or mid string-literal").
func trackBalance(line string, depth int, inString byte) (int, byte) {
	escaped := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		if inString != 0 {
			if escaped {
				escaped = false
				continue
			}
			if c == '\\' {
				escaped = true
				continue
			}
			if c == inString {
				inString = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			inString = c
		case '{', '(', '[':
			depth++
		case '}', ')', ']':
			if depth > 0 {
				depth--
			}
		}
	}
	return depth, inString
}

func scopeNameOf(body string, starters []string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimLeft(line, " \t")
		for _, s := range starters {
			if strings.HasPrefix(trimmed, s) {
				rest := strings.TrimPrefix(trimmed, s)
				if idx := strings.IndexAny(rest, "({: \t"); idx > 0 {
					return rest[:idx]
				}
				return strings.TrimSpace(rest)
			}
		}
	}
	return ""
}

func scopeTypeOf(body string) storage.ScopeType {
	trimmed := strings.TrimSpace(body)
	switch {
	case strings.HasPrefix(trimmed, "import") || strings.HasPrefix(trimmed, "package") || strings.HasPrefix(trimmed, "use "):
		return storage.ScopeImport
	case strings.Contains(trimmed, "class ") || strings.Contains(trimmed, "struct ") || strings.Contains(trimmed, "interface "):
		return storage.ScopeClass
	case strings.Contains(trimmed, "func ") || strings.Contains(trimmed, "def ") || strings.Contains(trimmed, "function "):
		return storage.ScopeFunction
	default:
		return storage.ScopeOther
	}
}

func splitOversizedBlock(b CodeChunk, chunkSize int, countTokens func(string) int) []CodeChunk {
	lines := strings.Split(b.Text, "\n")
	var out []CodeChunk
	var cur []string
	start := b.Meta.StartLine
	flush := func(end int) {
		if len(cur) == 0 {
			return
		}
		m := b.Meta
		m.StartLine, m.EndLine = start, end
		out = append(out, CodeChunk{Text: strings.Join(cur, "\n"), Meta: m})
		cur = nil
	}
	for i, line := range lines {
		candidate := append(append([]string{}, cur...), line)
		if len(cur) > 0 && countTokens(strings.Join(candidate, "\n")) > chunkSize {
			flush(b.Meta.StartLine + i - 1)
			start = b.Meta.StartLine + i
			cur = nil
		}
		cur = append(cur, line)
	}
	flush(b.Meta.EndLine)
	return out
}
