package chunk

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var sentenceRe = regexp.MustCompile(`(?s)([^.!?]+[.!?]+|[^.!?]+$)`)
var blankLineRe = regexp.MustCompile(`\n\s*\n+`)

func sentencesOf(text string) []string {
	parts := sentenceRe.FindAllString(strings.TrimSpace(text), -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func paragraphsOf(text string) []string {
	raw := blankLineRe.Split(strings.TrimSpace(text), -1)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ProseChunk splits free text into token-sized windows along paragraph and
// sentence boundaries, with a token overlap between consecutive chunks
// (spec.md §4.3 sliding window; defaults chunkSize=1200, chunkOverlap=100
// per internal/config.Default).
func ProseChunk(text string, chunkSize, chunkOverlap int, countTokens func(string) int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = 1200
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}

	var units []string
	for _, para := range paragraphsOf(text) {
		if countTokens(para) > chunkSize*2 {
			units = append(units, sentencesOf(para)...)
		} else {
			units = append(units, para)
		}
	}
	if len(units) == 0 {
		return nil
	}

	var chunks []string
	var cur strings.Builder
	flush := func() {
		if s := cur.String(); s != "" {
			chunks = append(chunks, s)
		}
	}
	for _, u := range units {
		candidate := u
		if cur.Len() > 0 {
			candidate = cur.String() + "\n" + u
		}
		if cur.Len() == 0 || countTokens(candidate) <= chunkSize {
			if cur.Len() > 0 {
				cur.WriteString("\n")
			}
			cur.WriteString(u)
			continue
		}
		prev := cur.String()
		flush()
		cur.Reset()
		if tail := overlapTail(prev, chunkOverlap); tail != "" {
			cur.WriteString(tail)
			cur.WriteString("\n")
		}
		cur.WriteString(u)
	}
	flush()
	return chunks
}

// overlapTail returns the trailing approxTokens*4-char slice of s used to
// seed the next chunk, approximating token overlap without a real
// tokenizer (mirrors internal/util's chars/4 heuristic).
func overlapTail(s string, approxTokens int) string {
	if approxTokens <= 0 || s == "" {
		return ""
	}
	wantChars := approxTokens * 4
	n := utf8.RuneCountInString(s)
	if wantChars >= n {
		return s
	}
	runes := []rune(s)
	return string(runes[n-wantChars:])
}
