package faculty

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/resolver"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/types"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/web"
)

var genericInstitutionWords = map[string]bool{
	"university": true, "college": true, "institute": true, "school": true, "the": true,
	"of": true, "and": true, "for": true, "at": true, "state": true, "technology": true,
	"department": true, "dept": true,
}

// profileQueries builds up to three search variations for a Scholar profile.
func profileQueries(r *types.FacultyRecord) []string {
	queries := []string{
		strings.TrimSpace(fmt.Sprintf("%q %s google scholar", r.Name, r.Institution)),
	}
	if len(r.ResearchAreas) > 0 {
		queries = append(queries, fmt.Sprintf("%s %s google scholar", r.Name, r.ResearchAreas[0]))
	}
	affiliation := r.Department
	if affiliation == "" {
		affiliation = r.Institution
	}
	queries = append(queries, strings.TrimSpace(fmt.Sprintf("site:scholar.google.com %s %s", r.Name, affiliation)))
	return queries
}

func (e *Extractor) searchScholarProfile(ctx context.Context, record *types.FacultyRecord) (string, error) {
	if e.deps.Searcher == nil {
		return "", fmt.Errorf("%w: no scholar link on the page and web search is not configured", ErrProfileNotFound)
	}

	log := e.deps.Logger
	attempt := func(ctx context.Context, query string) (string, bool, error) {
		results, err := e.deps.Searcher.Search(ctx, query)
		if err != nil {
			return "", false, err
		}

		candidate := ""
		for _, result := range results {
			if slot, canonical := classifyProfile(result.URL); slot == slotGoogleScholar {
				candidate = canonical
				break
			}
		}
		if candidate == "" {
			return "", false, nil
		}

		page, err := e.deps.Fetcher.Fetch(ctx, candidate)
		if err != nil {
			return "", false, err
		}
		return candidate, verifyProfile(page, record), nil
	}

	res, err := resolver.Resolve(ctx, profileQueries(record), e.cfg.MaxQueries, attempt, log)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w for %s: %v", ErrProfileNotFound, record.Name, err)
	}

	log.Info("scholar profile resolved by search",
		zap.String("profile", res.Value),
		zap.String("query", res.Query),
		zap.Int("attempts", res.Attempts),
	)
	return res.Value, nil
}

// verifyProfile checks that a fetched profile names the person and overlaps
// with their institution or research areas. Matching is on whole words.
func verifyProfile(page *web.Page, r *types.FacultyRecord) bool {
	if page == nil {
		return false
	}
	haystack := tokenize(page.Title + "\n" + page.Text)

	if !namesPerson(haystack, r.Name) {
		return false
	}

	if inst := tokenize(r.Institution); len(inst) > 0 {
		if containsPhrase(haystack, inst) {
			return true
		}
		for _, word := range inst {
			if len(word) >= 3 && !genericInstitutionWords[word] && containsPhrase(haystack, []string{word}) {
				return true
			}
		}
	}

	for _, area := range r.ResearchAreas {
		if words := tokenize(area); len(words) > 0 && containsPhrase(haystack, words) {
			return true
		}
	}
	return false
}

// maxNameGap is how many middle-name tokens may sit between given name and surname.
const maxNameGap = 2

// namesPerson requires the surname near the given name or its initial, in
// either order. A single-word name only needs that word.
func namesPerson(haystack []string, name string) bool {
	parts := tokenize(name)
	if len(parts) == 0 {
		return false
	}
	surname := parts[len(parts)-1]
	if len(parts) == 1 {
		return containsPhrase(haystack, []string{surname})
	}

	given := parts[0]
	initial := given[:utf8.RuneLen([]rune(given)[0])]
	matchesGiven := func(w string) bool { return w == given || w == initial }

	for i, w := range haystack {
		if w != surname {
			continue
		}
		for j := max(0, i-1-maxNameGap); j < i; j++ {
			if matchesGiven(haystack[j]) {
				return true
			}
		}
		if i+1 < len(haystack) && matchesGiven(haystack[i+1]) {
			return true
		}
	}
	return false
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsPhrase(haystack, phrase []string) bool {
	if len(phrase) == 0 {
		return false
	}
	for i := 0; i+len(phrase) <= len(haystack); i++ {
		match := true
		for j, w := range phrase {
			if haystack[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
