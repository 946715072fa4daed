package query

// mergeMax dedups candidates by ID, keeping the max score across modes
// (spec.md §4.9 HYBRID: "per-source relevance taken as max across
// modes"), in the style of the teacher's fusion.go dedup-by-id idiom but
// with a max rather than RRF-weighted combination.
func mergeMax(lists ...[]Candidate) []Candidate {
	byID := map[string]Candidate{}
	var order []string
	for _, list := range lists {
		for _, c := range list {
			existing, ok := byID[c.ID]
			if !ok {
				byID[c.ID] = c
				order = append(order, c.ID)
				continue
			}
			if c.Score > existing.Score {
				byID[c.ID] = c
			}
		}
	}
	out := make([]Candidate, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}
