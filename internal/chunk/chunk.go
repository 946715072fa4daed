// Package chunk implements C3: splitting ingested documents into
// storage.Chunk records. Prose documents use a token-windowed sliding
// split with overlap; code documents use a language-aware block splitter
// that never cuts inside a bracket group or string literal. Binary content
// is rejected before either path runs; when the encoding cannot be detected
// with confidence, invalid UTF-8 sequences are dropped from the text.
//
// Grounded on internal/textsplitters' boundary/code splitters (teacher
// idiom: regex block-start detection, hybrid paragraph/sentence grouping
// with measure/groupByTarget), generalized to the spec's ~15-language
// breadth, encoding/binary gating, and {language,startLine,endLine,scope}
// metadata the original splitters didn't track.
package chunk

import (
	"fmt"
	"strings"
	"unicode"

	"ragcore/internal/storage"
)

// ErrBinaryContent is returned by ChunkDocument when the document fails the
// binary-content gate.
type ErrBinaryContent struct{ Filename string }

func (e ErrBinaryContent) Error() string { return fmt.Sprintf("binary content rejected: %s", e.Filename) }

// Options configures chunking; CountTokens defaults to countWords, a
// whitespace-and-punctuation tokenizer, not a model-specific one (spec.md
// §4.3). LLM token-usage accounting uses its own chars/4 estimate
// (internal/llmapi.EstimateTokens) rather than this counter.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	CountTokens  func(string) int
}

func (o Options) normalized() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 1200
	}
	if o.ChunkOverlap < 0 {
		o.ChunkOverlap = 0
	}
	if o.CountTokens == nil {
		o.CountTokens = countWords
	}
	return o
}

// countWords counts words and punctuation runs as separate tokens, adapted
// from internal/util.CountTokens's word/punctuation split.
func countWords(s string) int {
	inWord := false
	count := 0
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			if inWord {
				count++
				inWord = false
			}
		case unicode.IsPunct(r):
			if inWord {
				count++
				inWord = false
			}
			count++
		default:
			inWord = true
		}
	}
	if inWord {
		count++
	}
	return count
}

func estimateTokens(s string) int { return (len(s) + 3) / 4 }

// ChunkDocument dispatches to the prose or code path by storage.DocType and
// returns ordered, zero-indexed chunks ready for embedding.
func ChunkDocument(filename string, raw []byte, docType storage.DocType, opt Options) ([]storage.Chunk, error) {
	if IsBinary(filename, raw) {
		return nil, ErrBinaryContent{Filename: filename}
	}
	opt = opt.normalized()

	text := string(raw)
	if _, confident := DetectEncoding(raw); !confident {
		text = strings.ToValidUTF8(text, "")
	}

	var texts []string
	var codeMeta []*storage.CodeMetadata

	switch docType {
	case storage.DocCode:
		lang := DetectLanguage(filename)
		blocks := CodeChunkFile(lang, text, opt.ChunkSize, opt.CountTokens)
		for _, b := range blocks {
			texts = append(texts, b.Text)
			m := b.Meta
			codeMeta = append(codeMeta, &m)
		}
	default:
		texts = ProseChunk(text, opt.ChunkSize, opt.ChunkOverlap, opt.CountTokens)
		codeMeta = make([]*storage.CodeMetadata, len(texts))
	}

	out := make([]storage.Chunk, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			continue
		}
		out = append(out, storage.Chunk{
			ChunkIndex: i,
			Content:    t,
			TokenCount: opt.CountTokens(t),
			Code:       codeMeta[i],
		})
	}
	return out, nil
}
