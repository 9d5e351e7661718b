package faculty

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/types"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/web"
)

type stubGenerator struct {
	responses []string
	messages  []string
}

func (s *stubGenerator) GenerateContent(_ context.Context, _ string, message string) (string, error) {
	s.messages = append(s.messages, message)
	if len(s.responses) == 0 {
		return "", errors.New("unexpected call")
	}
	out := s.responses[0]
	s.responses = s.responses[1:]
	return out, nil
}

func (s *stubGenerator) Model() string { return "stub" }

type fakeFetcher struct {
	pages map[string]*web.Page
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*web.Page, error) {
	f.calls = append(f.calls, url)
	page, ok := f.pages[url]
	if !ok {
		return nil, &web.FetchError{URL: url, StatusCode: 404}
	}
	return page, nil
}

type fakeSearcher struct {
	results map[string][]web.SearchResult
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, query string) ([]web.SearchResult, error) {
	f.queries = append(f.queries, query)
	return f.results[query], nil
}

const individualJSON = `{"is_individual_page": true, "reason": "single bio", "name": "Jane Doe",
 "institution": "Example University", "department": "Computer Science", "email": "jane@example.edu",
 "bio_summary": "Works on efficient NLP.", "research_areas": ["efficient NLP", "sparse attention", "efficient nlp"],
 "personal_homepage": "https://janedoe.github.io/"}`

func facultyPage() *web.Page {
	return &web.Page{
		URL:      "https://cs.example.edu/people/doe",
		FinalURL: "https://cs.example.edu/people/doe",
		Title:    "Jane Doe",
		Text:     "Jane Doe\nAssociate Professor",
		Links: []web.Link{
			{URL: "https://cs.example.edu/", Label: "Home"},
			{URL: "https://cs.example.edu/courses/cs229", Label: "CS 229"},
			{URL: "https://twitter.com/janedoe", Label: "Twitter"},
			{URL: "https://janedoe.github.io/", Label: "Personal homepage"},
			{URL: "https://nlp.example.edu/", Label: "Efficient NLP Lab"},
			{URL: "https://dblp.org/pid/12/3456.html", Label: "DBLP"},
		},
	}
}

func homePage() *web.Page {
	return &web.Page{
		URL:      "https://janedoe.github.io/",
		FinalURL: "https://janedoe.github.io/",
		Title:    "Jane Doe",
		Links: []web.Link{
			{URL: "https://scholar.google.com/citations?user=abc123&hl=en", Label: "Google Scholar"},
			{URL: "https://janedoe.github.io/prospective-students", Label: "Prospective students"},
			{URL: "https://janedoe.github.io/cv.pdf", Label: "CV"},
			{URL: "https://janedoe.github.io/blog", Label: "Blog"},
			{URL: "https://nlp.example.edu/", Label: "Lab"},
			{URL: "https://www.youtube.com/watch?v=1", Label: "Keynote"},
		},
	}
}

func TestExtractBuildsRecordFromBothPages(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]*web.Page{
		"https://cs.example.edu/people/doe": facultyPage(),
		"https://janedoe.github.io/":        homePage(),
	}}
	gen := &stubGenerator{responses: []string{individualJSON}}
	searcher := &fakeSearcher{}

	e := NewExtractor(Deps{Fetcher: fetcher, Searcher: searcher, Generator: gen}, Config{})
	record, err := e.Extract(context.Background(), "https://cs.example.edu/people/doe")
	require.NoError(t, err)

	assert.Equal(t, "Jane Doe", record.Name)
	assert.Equal(t, []string{"efficient NLP", "sparse attention"}, record.ResearchAreas)
	assert.Equal(t, "https://scholar.google.com/citations?user=abc123", record.Profiles.GoogleScholar)
	assert.Equal(t, "https://dblp.org/pid/12/3456.html", record.Profiles.DBLP)
	assert.Equal(t, "https://janedoe.github.io/", record.Profiles.PersonalHomepage)
	assert.Equal(t, []string{"https://cs.example.edu/people/doe", "https://janedoe.github.io/"}, record.PagesCrawled)
	assert.Empty(t, searcher.queries, "scholar link on the homepage avoids search")

	byURL := make(map[string]types.Link)
	for _, l := range record.OtherLinks {
		_, dup := byURL[l.URL]
		assert.False(t, dup, "duplicate link %s", l.URL)
		byURL[l.URL] = l
	}

	assert.NotContains(t, byURL, "https://cs.example.edu/", "same-site navigation is dropped")
	assert.NotContains(t, byURL, "https://janedoe.github.io/", "homepage lives in its slot")
	assert.Equal(t, types.LinkTeaching, byURL["https://cs.example.edu/courses/cs229"].Category)
	assert.Equal(t, types.LinkSocial, byURL["https://twitter.com/janedoe"].Category)
	assert.Equal(t, types.LinkLab, byURL["https://nlp.example.edu/"].Category)
	assert.Equal(t, types.SourceFacultyProfile, byURL["https://nlp.example.edu/"].Source)
	assert.Equal(t, types.LinkRecruiting, byURL["https://janedoe.github.io/prospective-students"].Category)
	assert.Equal(t, types.SourcePersonalHomepage, byURL["https://janedoe.github.io/prospective-students"].Source)
	assert.Equal(t, types.LinkCV, byURL["https://janedoe.github.io/cv.pdf"].Category)
	assert.Equal(t, types.LinkMedia, byURL["https://www.youtube.com/watch?v=1"].Category)
	assert.NotContains(t, byURL, "https://janedoe.github.io/blog")
}

func TestExtractRejectsDirectoryPage(t *testing.T) {
	directory := &web.Page{
		URL:      "https://cs.example.edu/people",
		FinalURL: "https://cs.example.edu/people",
		Title:    "Faculty Directory",
		Text:     "Alice Smith\nBob Jones\nCarol White",
	}
	fetcher := &fakeFetcher{pages: map[string]*web.Page{directory.URL: directory}}
	gen := &stubGenerator{responses: []string{`{"is_individual_page": false, "reason": "directory listing three professors"}`}}
	searcher := &fakeSearcher{}

	e := NewExtractor(Deps{Fetcher: fetcher, Searcher: searcher, Generator: gen}, Config{})
	_, err := e.Extract(context.Background(), directory.URL)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotIndividualPage)
	assert.Contains(t, err.Error(), "directory listing")
	assert.Equal(t, []string{directory.URL}, fetcher.calls, "no further pages fetched")
	assert.Empty(t, searcher.queries)
}

func TestExtractFailsWhenInputPageUnavailable(t *testing.T) {
	e := NewExtractor(Deps{Fetcher: &fakeFetcher{}, Generator: &stubGenerator{}}, Config{})
	_, err := e.Extract(context.Background(), "https://cs.example.edu/missing")

	var fetchErr *web.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "https://cs.example.edu/missing", fetchErr.URL)
}

func TestExtractResolvesProfileBySearch(t *testing.T) {
	page := facultyPage()
	page.Links = page.Links[:3]

	profile := &web.Page{
		URL:      "https://scholar.google.com/citations?user=xyz",
		FinalURL: "https://scholar.google.com/citations?user=xyz",
		Title:    "Jane Doe - Google Scholar",
		Text:     "Jane Doe\nAssociate Professor, Example University\nefficient NLP",
	}
	wrong := &web.Page{
		URL:   "https://scholar.google.com/citations?user=other",
		Title: "John Doe - Google Scholar",
		Text:  "John Doe\nChemistry, Other College",
	}
	fetcher := &fakeFetcher{pages: map[string]*web.Page{
		page.URL:    page,
		profile.URL: profile,
		wrong.URL:   wrong,
	}}

	noHomepage := strings.Replace(individualJSON, "https://janedoe.github.io/", "", 1)
	gen := &stubGenerator{responses: []string{noHomepage}}

	queries := profileQueries(&types.FacultyRecord{
		Name: "Jane Doe", Institution: "Example University", Department: "Computer Science",
		ResearchAreas: []string{"efficient NLP"},
	})
	require.Len(t, queries, 3)

	searcher := &fakeSearcher{results: map[string][]web.SearchResult{
		queries[0]: {{URL: "https://scholar.google.com/citations?user=other&hl=en"}},
		queries[1]: {{URL: "https://example.edu/news"}, {URL: "https://scholar.google.com/citations?user=xyz&hl=en"}},
	}}

	e := NewExtractor(Deps{Fetcher: fetcher, Searcher: searcher, Generator: gen}, Config{})
	record, err := e.Extract(context.Background(), page.URL)
	require.NoError(t, err)

	assert.Equal(t, "https://scholar.google.com/citations?user=xyz", record.Profiles.GoogleScholar)
	assert.Equal(t, queries[:2], searcher.queries)
}

func TestExtractProfileNotFoundAfterBoundedSearch(t *testing.T) {
	page := facultyPage()
	page.Links = nil
	fetcher := &fakeFetcher{pages: map[string]*web.Page{page.URL: page}}
	noHomepage := strings.Replace(individualJSON, "https://janedoe.github.io/", "", 1)
	searcher := &fakeSearcher{}

	e := NewExtractor(Deps{Fetcher: fetcher, Searcher: searcher, Generator: &stubGenerator{responses: []string{noHomepage}}}, Config{})
	_, err := e.Extract(context.Background(), page.URL)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProfileNotFound)
	assert.Len(t, searcher.queries, 3)
}

func TestExtractWithoutSearcher(t *testing.T) {
	page := facultyPage()
	page.Links = nil
	fetcher := &fakeFetcher{pages: map[string]*web.Page{page.URL: page}}
	noHomepage := strings.Replace(individualJSON, "https://janedoe.github.io/", "", 1)

	e := NewExtractor(Deps{Fetcher: fetcher, Generator: &stubGenerator{responses: []string{noHomepage}}}, Config{})
	_, err := e.Extract(context.Background(), page.URL)
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestExtractToleratesMissingHomepage(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]*web.Page{
		"https://cs.example.edu/people/doe": facultyPage(),
	}}
	profile := &web.Page{Title: "Jane Doe", Text: "Example University"}
	fetcher.pages["https://scholar.google.com/citations?user=s1"] = profile

	queries := profileQueries(&types.FacultyRecord{
		Name: "Jane Doe", Institution: "Example University", Department: "Computer Science",
		ResearchAreas: []string{"efficient NLP"},
	})
	searcher := &fakeSearcher{results: map[string][]web.SearchResult{
		queries[0]: {{URL: "https://scholar.google.com/citations?user=s1"}},
	}}

	e := NewExtractor(Deps{Fetcher: fetcher, Searcher: searcher, Generator: &stubGenerator{responses: []string{individualJSON}}}, Config{})
	record, err := e.Extract(context.Background(), "https://cs.example.edu/people/doe")
	require.NoError(t, err)

	assert.Equal(t, "https://janedoe.github.io/", record.Profiles.PersonalHomepage)
	assert.Equal(t, []string{"https://cs.example.edu/people/doe"}, record.PagesCrawled)
}

func TestVerifyProfile(t *testing.T) {
	record := &types.FacultyRecord{Name: "Jane Doe", Institution: "University of Example", ResearchAreas: []string{"robotics"}}

	assert.True(t, verifyProfile(&web.Page{Text: "Jane Doe, Example"}, record))
	assert.True(t, verifyProfile(&web.Page{Text: "J. Doe - robotics"}, record))
	assert.False(t, verifyProfile(&web.Page{Text: "Jane Smith, University of Example"}, record))
	assert.False(t, verifyProfile(&web.Page{Text: "Jane Doe, University of Elsewhere"}, record))
	assert.True(t, verifyProfile(&web.Page{Text: "Doe, Jane Q.\nExample"}, record))
	assert.True(t, verifyProfile(&web.Page{Text: "Jane Q. Doe\nExample"}, record))
	assert.False(t, verifyProfile(&web.Page{Text: "John Doe\nUniversity of Example"}, record))
}

func TestVerifyProfileMatchesWholeWords(t *testing.T) {
	li := &types.FacultyRecord{Name: "Wei Li", Institution: "Stanford University", ResearchAreas: []string{"AI"}}

	other := &web.Page{Title: "Jane Doe - Google Scholar", Text: "Jane Doe\nStanford University\nPublications\nmachine learning"}
	assert.False(t, verifyProfile(other, li), "surname inside another word")

	assert.True(t, verifyProfile(&web.Page{Title: "Wei Li - Google Scholar", Text: "Wei Li\nStanford University"}, li))
	assert.True(t, verifyProfile(&web.Page{Text: "W. Li\nhuman-centred AI"}, li))
	assert.False(t, verifyProfile(&web.Page{Text: "Wei Li\nTechnion\nrailway maintenance"}, li), "area inside another word")
}
