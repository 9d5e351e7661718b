package recruiting

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/types"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/web"
)

// pageGenerator answers with the response registered for the page URL found in the prompt.
type pageGenerator struct {
	byURL map[string]string
	calls []string
}

func (g *pageGenerator) GenerateContent(_ context.Context, _ string, message string) (string, error) {
	for url, resp := range g.byURL {
		if strings.Contains(message, "Page URL: "+url+"\n") {
			g.calls = append(g.calls, url)
			return resp, nil
		}
	}
	return `{"found": false, "signal": "none"}`, nil
}

func (g *pageGenerator) Model() string { return "stub" }

type fakeFetcher struct {
	pages map[string]string
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*web.Page, error) {
	f.calls = append(f.calls, url)
	text, ok := f.pages[url]
	if !ok {
		return nil, &web.FetchError{URL: url, StatusCode: 404}
	}
	return &web.Page{URL: url, FinalURL: url, Text: text}, nil
}

type fakeSearcher struct {
	results map[string][]web.SearchResult
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, query string) ([]web.SearchResult, error) {
	f.queries = append(f.queries, query)
	return f.results[query], nil
}

const (
	homeURL       = "https://janedoe.github.io/"
	joinURL       = "https://janedoe.github.io/join"
	labURL        = "https://nlp.example.edu/"
	searchHitURL  = "https://news.example.edu/doe-lab-hiring"
	searchMissURL = "https://example.com/unrelated"
)

func record() *types.FacultyRecord {
	return &types.FacultyRecord{
		Name:        "Jane Doe",
		Institution: "Example University",
		Profiles:    types.Profiles{PersonalHomepage: homeURL},
		OtherLinks: []types.Link{
			{URL: labURL, Category: types.LinkLab},
			{URL: joinURL, Category: types.LinkRecruiting},
		},
	}
}

func newTestFinder(fetcher *fakeFetcher, searcher *fakeSearcher, gen *pageGenerator) *Finder {
	deps := Deps{Fetcher: fetcher, Generator: gen}
	if searcher != nil {
		deps.Searcher = searcher
	}
	f := NewFinder(deps, Config{})
	f.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	return f
}

func assertInTier(t *testing.T, insight types.RecruitingInsight) {
	t.Helper()
	low, high := insight.Signal.ConfidenceRange()
	assert.GreaterOrEqual(t, insight.Confidence, low)
	assert.LessOrEqual(t, insight.Confidence, high)
}

func TestFindDatedExplicitRefusal(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		homeURL: "Jane Doe\nI work on efficient NLP.",
		joinURL: "Prospective students\nI am not accepting students for Fall 2025.\n(Updated January 2025)",
	}}
	gen := &pageGenerator{byURL: map[string]string{
		joinURL: `{"found": true, "verbatim_text": "I am not accepting students for Fall 2025.",
			"is_recruiting": false, "signal": "dated_explicit", "statement_date": "January 2025", "confidence": 0.95}`,
	}}
	searcher := &fakeSearcher{}

	insight := newTestFinder(fetcher, searcher, gen).Find(context.Background(), record())

	assert.False(t, insight.IsRecruiting)
	assert.Equal(t, types.SignalDatedExplicit, insight.Signal)
	assert.Equal(t, joinURL, insight.SourceURL)
	assert.Equal(t, "I am not accepting students for Fall 2025.", insight.VerbatimText)
	assert.InDelta(t, 0.95, insight.Confidence, 1e-9)
	assertInTier(t, insight)

	assert.Equal(t, []string{homeURL, joinURL}, fetcher.calls)
	assert.Empty(t, searcher.queries, "explicit statement stops the search")
}

func TestFindRejectsParaphrase(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		homeURL: "I am   looking for\nnew PhD students in 2026.",
	}}
	gen := &pageGenerator{byURL: map[string]string{
		homeURL: `{"found": true, "verbatim_text": "She is recruiting PhD students for 2026.", "is_recruiting": true,
			"signal": "dated_explicit", "statement_date": "2026", "confidence": 0.9}`,
	}}

	rec := record()
	rec.OtherLinks = nil
	insight := newTestFinder(fetcher, nil, gen).Find(context.Background(), rec)
	assert.Equal(t, types.NoRecruitingInsight(), insight)
}

func TestFindAcceptsWhitespaceDifferences(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		homeURL: "I am   looking for\nnew PhD students for Fall 2026.",
	}}
	gen := &pageGenerator{byURL: map[string]string{
		homeURL: `{"found": true, "verbatim_text": "I am looking for new PhD students for Fall 2026.", "is_recruiting": "yes",
			"signal": "dated_explicit", "statement_date": "Fall 2026", "confidence": "0.85"}`,
	}}

	rec := record()
	rec.OtherLinks = nil
	insight := newTestFinder(fetcher, nil, gen).Find(context.Background(), rec)
	assert.True(t, insight.IsRecruiting)
	assert.Equal(t, types.SignalDatedExplicit, insight.Signal)
	assert.InDelta(t, 0.85, insight.Confidence, 1e-9)
}

func TestFindAmbiguousUndatedStatementIsLowTier(t *testing.T) {
	for name, response := range map[string]string{
		"agent says ambiguous": `{"found": true, "verbatim_text": "I may have openings for motivated students.",
			"is_recruiting": true, "signal": "ambiguous", "confidence": 0.65}`,
		"hedged undated statement": `{"found": true, "verbatim_text": "I may have openings for motivated students.",
			"is_recruiting": true, "signal": "undated_explicit", "confidence": 0.6}`,
	} {
		t.Run(name, func(t *testing.T) {
			fetcher := &fakeFetcher{pages: map[string]string{
				homeURL: "Students: I may have openings for motivated students.",
			}}
			gen := &pageGenerator{byURL: map[string]string{homeURL: response}}

			rec := record()
			rec.OtherLinks = nil
			insight := newTestFinder(fetcher, nil, gen).Find(context.Background(), rec)

			assert.Equal(t, types.SignalAmbiguous, insight.Signal)
			assert.InDelta(t, 0.4, insight.Confidence, 1e-9)
			assertInTier(t, insight)
		})
	}
}

func TestFindKeepsAmbiguousWhileSearchingForExplicit(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		homeURL:      "Students: I may have openings for motivated students.",
		joinURL:      "Join us!",
		searchHitURL: "News\nDoe lab is hiring two PhD students this year.",
	}}
	gen := &pageGenerator{byURL: map[string]string{
		homeURL: `{"found": true, "verbatim_text": "I may have openings for motivated students.",
			"is_recruiting": true, "signal": "ambiguous", "confidence": 0.3}`,
		searchHitURL: `{"found": true, "verbatim_text": "Doe lab is hiring two PhD students this year.",
			"is_recruiting": true, "signal": "undated_explicit", "confidence": 0.6}`,
	}}
	searcher := &fakeSearcher{results: map[string][]web.SearchResult{
		`"Jane Doe" Example University prospective PhD students`: {{URL: searchMissURL}, {URL: searchHitURL}, {URL: "https://never.example/"}},
	}}

	insight := newTestFinder(fetcher, searcher, gen).Find(context.Background(), record())

	assert.Equal(t, types.SignalUndatedExplicit, insight.Signal)
	assert.Equal(t, searchHitURL, insight.SourceURL)
	assertInTier(t, insight)
	assert.Equal(t, []string{homeURL, joinURL, searchMissURL, searchHitURL}, fetcher.calls)
	assert.Len(t, searcher.queries, 1)
}

func TestFindFallsThroughToLabPage(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		homeURL: "Jane Doe",
		labURL:  "Openings: We are recruiting PhD students for Fall 2026.",
	}}
	gen := &pageGenerator{byURL: map[string]string{
		labURL: `{"found": true, "verbatim_text": "We are recruiting PhD students for Fall 2026.",
			"is_recruiting": true, "signal": "dated_explicit", "statement_date": "", "confidence": 1.4}`,
	}}
	searcher := &fakeSearcher{}

	insight := newTestFinder(fetcher, searcher, gen).Find(context.Background(), record())

	assert.Equal(t, labURL, insight.SourceURL)
	assert.Equal(t, types.SignalDatedExplicit, insight.Signal, "the year in the quote counts as a date")
	assert.InDelta(t, 1.0, insight.Confidence, 1e-9)
	assert.Len(t, searcher.queries, 2, "both search variations are tried before the lab page")
}

func TestFindNothingReturnsSentinel(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{}}
	gen := &pageGenerator{}
	searcher := &fakeSearcher{}

	insight := newTestFinder(fetcher, searcher, gen).Find(context.Background(), record())

	assert.Equal(t, types.NoRecruitingInsight(), insight)
	assert.False(t, insight.IsRecruiting)
	assertInTier(t, insight)
}

func TestFindSkipsAgentErrors(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{homeURL: "text"}}
	rec := record()
	rec.OtherLinks = nil

	f := NewFinder(Deps{Fetcher: fetcher, Generator: failingGenerator{}}, Config{})
	assert.Equal(t, types.NoRecruitingInsight(), f.Find(context.Background(), rec))
}

type failingGenerator struct{}

func (failingGenerator) GenerateContent(context.Context, string, string) (string, error) {
	return "", errors.New("model unavailable")
}

func (failingGenerator) Model() string { return "failing" }

func TestNormalizeSignal(t *testing.T) {
	tests := []struct {
		name     string
		signal   types.RecruitingSignal
		verbatim string
		date     string
		want     types.RecruitingSignal
	}{
		{"dated with date field", types.SignalDatedExplicit, "Not taking students.", "Spring 2024", types.SignalDatedExplicit},
		{"dated without any date", types.SignalDatedExplicit, "Not taking students.", "recently", types.SignalUndatedExplicit},
		{"undated plain", types.SignalUndatedExplicit, "I am recruiting students.", "", types.SignalUndatedExplicit},
		{"undated hedged", types.SignalUndatedExplicit, "Depending on funding, I take students.", "", types.SignalAmbiguous},
		{"unknown label", types.RecruitingSignal("maybe"), "x", "", types.SignalAmbiguous},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeSignal(tt.signal, tt.verbatim, tt.date))
		})
	}
}

func TestClampConfidence(t *testing.T) {
	require.InDelta(t, 0.8, clampConfidence(types.SignalDatedExplicit, 0.2), 1e-9)
	require.InDelta(t, 0.7, clampConfidence(types.SignalUndatedExplicit, 0.9), 1e-9)
	require.InDelta(t, 0.3, clampConfidence(types.SignalAmbiguous, 0.3), 1e-9)
}
