// Package recruiting looks for verbatim statements about taking new PhD students.
package recruiting

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/ai"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/resolver"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/types"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/utils"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/web"
)

//go:embed prompt.md
var recruitingPrompt string

const recruitingSystem = "You extract exact quotations from web pages. Reply with JSON only."

const (
	defaultMaxQueries      = 2
	defaultResultsPerQuery = 2
	defaultMaxPages        = 8
	defaultMaxPageChars    = 20000
)

// Deps groups the collaborators of the Finder. Searcher may be nil.
type Deps struct {
	Fetcher   web.PageFetcher
	Searcher  web.Searcher
	Generator ai.Generator
	Logger    *zap.Logger
}

// Config bounds the search. Zero values select defaults.
type Config struct {
	MaxQueries      int
	ResultsPerQuery int
	MaxPages        int
	MaxPageChars    int
}

// Finder locates a recruiting statement for a faculty member.
type Finder struct {
	deps Deps
	cfg  Config
	now  func() time.Time
}

type statement struct {
	Found         bool    `mapstructure:"found"`
	VerbatimText  string  `mapstructure:"verbatim_text"`
	IsRecruiting  bool    `mapstructure:"is_recruiting"`
	Signal        string  `mapstructure:"signal"`
	StatementDate string  `mapstructure:"statement_date"`
	Confidence    float64 `mapstructure:"confidence"`
}

// NewFinder returns a Finder.
func NewFinder(deps Deps, cfg Config) *Finder {
	if cfg.MaxQueries <= 0 || cfg.MaxQueries > defaultMaxQueries {
		cfg.MaxQueries = defaultMaxQueries
	}
	if cfg.ResultsPerQuery <= 0 {
		cfg.ResultsPerQuery = defaultResultsPerQuery
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	if cfg.MaxPageChars <= 0 {
		cfg.MaxPageChars = defaultMaxPageChars
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Finder{deps: deps, cfg: cfg, now: time.Now}
}

// search holds the state of one Find call.
type search struct {
	record  *types.FacultyRecord
	visited map[string]bool
	best    types.RecruitingInsight
	fetched int
}

// Find searches the homepage, recruiting links, web search results and lab
// pages in that order. It always returns an insight; when nothing verifiable
// is found the result is NoRecruitingInsight.
func (f *Finder) Find(ctx context.Context, record *types.FacultyRecord) types.RecruitingInsight {
	log := f.deps.Logger
	s := &search{record: record, visited: make(map[string]bool), best: types.NoRecruitingInsight()}

	if home := record.Profiles.PersonalHomepage; home != "" {
		if f.check(ctx, s, home) {
			return f.finish(s)
		}
	}

	for _, link := range record.LinksByCategory(types.LinkRecruiting) {
		if f.check(ctx, s, link.URL) {
			return f.finish(s)
		}
	}

	if f.searchWeb(ctx, s) {
		return f.finish(s)
	}

	for _, link := range record.LinksByCategory(types.LinkLab) {
		if f.check(ctx, s, link.URL) {
			return f.finish(s)
		}
	}

	if !s.best.Found() {
		log.Info("no recruiting statement found", zap.Int("pages_checked", s.fetched))
	}
	return f.finish(s)
}

func (f *Finder) finish(s *search) types.RecruitingInsight {
	if s.best.Found() {
		f.deps.Logger.Info("recruiting statement found",
			zap.String("source", s.best.SourceURL),
			zap.String("signal", string(s.best.Signal)),
			zap.Bool("is_recruiting", s.best.IsRecruiting),
			zap.Float64("confidence", s.best.Confidence),
		)
	}
	return s.best
}

func (f *Finder) searchWeb(ctx context.Context, s *search) bool {
	if f.deps.Searcher == nil {
		return false
	}

	attempt := func(ctx context.Context, query string) (types.RecruitingInsight, bool, error) {
		results, err := f.deps.Searcher.Search(ctx, query)
		if err != nil {
			return types.RecruitingInsight{}, false, err
		}
		for i, result := range results {
			if i >= f.cfg.ResultsPerQuery {
				break
			}
			if f.check(ctx, s, result.URL) {
				return s.best, true, nil
			}
		}
		return types.RecruitingInsight{}, false, nil
	}

	_, err := resolver.Resolve(ctx, searchQueries(s.record), f.cfg.MaxQueries, attempt, f.deps.Logger)
	if err != nil {
		f.deps.Logger.Debug("recruiting search found nothing explicit", zap.Error(err))
		return false
	}
	return true
}

func searchQueries(r *types.FacultyRecord) []string {
	return []string{
		strings.TrimSpace(fmt.Sprintf("%q %s prospective PhD students", r.Name, r.Institution)),
		strings.TrimSpace(fmt.Sprintf("%s lab openings PhD students", r.Name)),
	}
}

// check fetches rawURL once and evaluates it. It reports whether an explicit
// statement was found and the search can stop.
func (f *Finder) check(ctx context.Context, s *search, rawURL string) bool {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" || s.visited[rawURL] || s.fetched >= f.cfg.MaxPages || ctx.Err() != nil {
		return false
	}
	s.visited[rawURL] = true
	s.fetched++

	log := f.deps.Logger.With(zap.String("url", rawURL))

	page, err := f.deps.Fetcher.Fetch(ctx, rawURL)
	if err != nil {
		log.Warn("recruiting source unavailable", zap.Error(err))
		return false
	}

	insight, ok, err := f.evaluate(ctx, s.record, page)
	if err != nil {
		log.Warn("recruiting agent failed", zap.Error(err))
		return false
	}
	if !ok {
		return false
	}

	if strength(insight.Signal) > strength(s.best.Signal) {
		s.best = insight
	}
	return explicit(s.best.Signal)
}

func (f *Finder) evaluate(ctx context.Context, record *types.FacultyRecord, page *web.Page) (types.RecruitingInsight, bool, error) {
	text := page.Text
	if utf8.RuneCountInString(text) > f.cfg.MaxPageChars {
		text = string([]rune(text)[:f.cfg.MaxPageChars])
	}

	message := ai.RenderTemplate(recruitingPrompt, map[string]string{
		"NAME":  record.Name,
		"URL":   page.FinalURL,
		"TODAY": f.now().Format("January 2, 2006"),
		"TEXT":  text,
	})

	raw, err := f.deps.Generator.GenerateContent(ctx, recruitingSystem, message)
	if err != nil {
		return types.RecruitingInsight{}, false, err
	}

	var out statement
	if err := ai.DecodeJSON(raw, &out); err != nil {
		return types.RecruitingInsight{}, false, err
	}

	verbatim := strings.TrimSpace(out.VerbatimText)
	claimed := types.RecruitingSignal(strings.ToLower(strings.TrimSpace(out.Signal)))
	if !out.Found || verbatim == "" || claimed == types.SignalNone {
		return types.RecruitingInsight{}, false, nil
	}
	if !verbatimIn(verbatim, page.Text) {
		f.deps.Logger.Warn("recruiting statement is not verbatim, discarded",
			zap.String("url", page.FinalURL),
			zap.String("text", utils.TruncateForLog(verbatim, 200)),
		)
		return types.RecruitingInsight{}, false, nil
	}

	signal := normalizeSignal(claimed, verbatim, out.StatementDate)
	source := page.FinalURL
	if source == "" {
		source = page.URL
	}

	return types.RecruitingInsight{
		SourceURL:    source,
		VerbatimText: verbatim,
		IsRecruiting: out.IsRecruiting,
		Confidence:   clampConfidence(signal, out.Confidence),
		Signal:       signal,
	}, true, nil
}

// verbatimIn reports whether quote occurs in text once whitespace runs are collapsed.
func verbatimIn(quote, text string) bool {
	quote = utils.CollapseWhitespace(quote)
	return quote != "" && strings.Contains(utils.CollapseWhitespace(text), quote)
}
