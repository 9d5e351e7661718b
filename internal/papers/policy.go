package papers

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/types"
)

// policy enforces the selection rules on a ranked list of candidate indices.
type policy struct {
	maxSelected   int
	maxReputation int
	recentFrom    int
}

func (p policy) isRecent(paper types.PaperRecord) bool {
	return paper.Year >= p.recentFrom
}

// apply drops invalid and duplicate indices, limits older picks, caps the list
// and guarantees a highly cited candidate is present.
func (p policy) apply(ranked []int, candidates []types.PaperRecord) []int {
	seen := make(map[int]bool, len(ranked))
	picks := make([]int, 0, p.maxSelected)
	older := 0
	for _, idx := range ranked {
		if idx < 0 || idx >= len(candidates) || seen[idx] {
			continue
		}
		seen[idx] = true
		if !p.isRecent(candidates[idx]) {
			if older >= p.maxReputation {
				continue
			}
			older++
		}
		picks = append(picks, idx)
		if len(picks) == p.maxSelected {
			break
		}
	}

	top := mostCited(candidates, 2)
	if len(top) == 0 {
		return picks
	}
	for _, idx := range top {
		if contains(picks, idx) {
			return picks
		}
	}

	best := top[0]
	if !p.isRecent(candidates[best]) && older >= p.maxReputation {
		for i := len(picks) - 1; i >= 0; i-- {
			if !p.isRecent(candidates[picks[i]]) {
				picks = append(picks[:i], picks[i+1:]...)
				break
			}
		}
	}
	if len(picks) >= p.maxSelected {
		picks = picks[:p.maxSelected-1]
	}
	return append(picks, best)
}

// mostCited returns up to n candidate indices with the highest positive citation counts.
func mostCited(candidates []types.PaperRecord, n int) []int {
	var idx []int
	for i, c := range candidates {
		if c.Citations() > 0 {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return candidates[idx[a]].Citations() > candidates[idx[b]].Citations()
	})
	if len(idx) > n {
		idx = idx[:n]
	}
	return idx
}

func contains(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// fallbackRank orders candidates by interest overlap, recency and citations.
// Only candidates sharing a keyword with the interests are returned unless none do.
func (p policy) fallbackRank(candidates []types.PaperRecord, interests string) []int {
	keywords := keywordSet(interests)

	type scored struct {
		idx     int
		overlap int
		score   float64
	}
	all := make([]scored, 0, len(candidates))
	for i, c := range candidates {
		overlap := 0
		for word := range keywordSet(c.Title + " " + c.Abstract) {
			if keywords[word] {
				overlap++
			}
		}
		score := float64(overlap) * 10
		if p.isRecent(c) {
			score += 3
		}
		score += math.Log10(float64(c.Citations()) + 1)
		all = append(all, scored{idx: i, overlap: overlap, score: score})
	}
	sort.SliceStable(all, func(a, b int) bool { return all[a].score > all[b].score })

	var out []int
	for _, s := range all {
		if s.overlap > 0 {
			out = append(out, s.idx)
		}
	}
	if len(out) == 0 {
		for _, s := range all {
			out = append(out, s.idx)
		}
	}
	return out
}

var stopwords = map[string]bool{
	"about": true, "also": true, "and": true, "based": true, "from": true, "have": true,
	"into": true, "more": true, "over": true, "such": true, "that": true, "their": true,
	"these": true, "this": true, "using": true, "very": true, "want": true, "with": true,
	"work": true, "would": true, "research": true, "interested": true, "towards": true,
}

func keywordSet(text string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]bool, len(words))
	for _, w := range words {
		if len(w) < 4 || stopwords[w] {
			continue
		}
		out[w] = true
	}
	return out
}
