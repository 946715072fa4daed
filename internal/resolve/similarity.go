package resolve

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName applies NFKC normalization and case-folds an entity name
// so visually/semantically identical names compare equal regardless of
// source encoding quirks (spec.md §4.6 operates on normalized tokens).
func NormalizeName(s string) string {
	return strings.ToLower(norm.NFKC.String(strings.TrimSpace(s)))
}

func tokenize(s string) []string {
	return strings.FieldsFunc(NormalizeName(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter, union := intersectUnion(a, b)
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func containment(a, b map[string]struct{}) float64 {
	inter, _ := intersectUnion(a, b)
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	if minLen == 0 {
		return 0
	}
	return float64(inter) / float64(minLen)
}

func intersectUnion(a, b map[string]struct{}) (inter, union int) {
	union = len(a)
	for k := range b {
		if _, ok := a[k]; ok {
			inter++
		} else {
			union++
		}
	}
	return inter, union
}

// levenshtein is the classic O(n*m) edit distance, dynamic-programming
// with a rolling two-row buffer.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			curr[j] = m
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// normEdit is spec.md §4.6's `1 - levenshtein / max(|a|,|b|)`.
func normEdit(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(maxLen)
}

// acronymMatch is 1 iff one string equals the acronym formed by the
// leading capitals of the other's tokens (spec.md §4.6).
func acronymMatch(a, b string) float64 {
	if isAcronymOf(a, b) || isAcronymOf(b, a) {
		return 1
	}
	return 0
}

func isAcronymOf(short, long string) bool {
	s := strings.TrimSpace(short)
	if s == "" || strings.ContainsAny(s, " \t") {
		return false
	}
	fields := strings.Fields(long)
	if len(fields) < 2 || len(fields) != len([]rune(s)) {
		return false
	}
	var acr strings.Builder
	for _, f := range fields {
		r := []rune(f)
		if len(r) == 0 {
			continue
		}
		acr.WriteRune(unicode.ToUpper(r[0]))
	}
	return strings.EqualFold(acr.String(), s)
}

// Weights is the metric mix from spec.md §4.6, config.EntityResolutionConfig.Weights.
type Weights struct {
	Jaccard     float64
	Containment float64
	Edit        float64
	Acronym     float64
}

// Similarity computes the weighted blend sim = wj*jaccard + wc*containment
// + we*normEdit + wa*acronymMatch over the names after NormalizeName; the
// caller is expected to have already decided the names are worth
// comparing (see ShouldCompare).
func Similarity(a, b string, w Weights) float64 {
	na, nb := NormalizeName(a), NormalizeName(b)
	ta, tb := tokenSet(tokenize(a)), tokenSet(tokenize(b))
	return w.Jaccard*jaccard(ta, tb) +
		w.Containment*containment(ta, tb) +
		w.Edit*normEdit(na, nb) +
		w.Acronym*acronymMatch(na, nb)
}

// ShouldCompare implements spec.md §4.6's early-termination heuristic:
// skip the heavy metrics if the relative length difference exceeds 0.5
// and no containment/acronym relationship is geometrically possible.
func ShouldCompare(a, b string) bool {
	la, lb := len([]rune(a)), len([]rune(b))
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	if maxLen == 0 {
		return true
	}
	diff := la - lb
	if diff < 0 {
		diff = -diff
	}
	if float64(diff)/float64(maxLen) <= 0.5 {
		return true
	}
	ta, tb := tokenize(a), tokenize(b)
	if len(ta) > 0 && len(tb) > 0 && ta[0] == tb[0] {
		return true
	}
	return isAcronymOf(a, b) || isAcronymOf(b, a)
}
