// Package papers down-selects harvested papers and collects their reviews.
package papers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "embed"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/ai"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/types"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/utils"
)

//go:embed rank_prompt.md
var rankPrompt string

const rankSystem = "You rank academic papers for a prospective PhD applicant. Reply with JSON only."

const (
	defaultMaxSelected   = 6
	defaultMaxConcurrent = 6
	defaultRecencyYears  = 3
	defaultMaxReputation = 2
	maxAbstractChars     = 400
)

// Summarizer produces a review for one paper.
type Summarizer interface {
	Summarize(ctx context.Context, paper types.PaperRecord, interests string) (*types.PaperReview, error)
}

// Deps groups the collaborators of the Selector. Generator may be nil, in which
// case ranking falls back to the keyword heuristic.
type Deps struct {
	Generator  ai.Generator
	Summarizer Summarizer
	Logger     *zap.Logger
}

// Config tunes selection. Zero values select defaults.
type Config struct {
	MaxSelected   int
	MaxConcurrent int
	RecencyYears  int
	MaxReputation int
}

// Selector picks the papers worth reading and summarizes them.
type Selector struct {
	deps Deps
	cfg  Config
	now  func() time.Time
}

type ranking struct {
	Selected []struct {
		Index     int    `mapstructure:"index"`
		Relevance int    `mapstructure:"relevance"`
		Reason    string `mapstructure:"reason"`
	} `mapstructure:"selected"`
}

// NewSelector returns a Selector.
func NewSelector(deps Deps, cfg Config) *Selector {
	if cfg.MaxSelected <= 0 || cfg.MaxSelected > defaultMaxSelected {
		cfg.MaxSelected = defaultMaxSelected
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.RecencyYears <= 0 {
		cfg.RecencyYears = defaultRecencyYears
	}
	if cfg.MaxReputation <= 0 {
		cfg.MaxReputation = defaultMaxReputation
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Selector{deps: deps, cfg: cfg, now: time.Now}
}

// Select filters papers to those with a PDF, chooses the ones to read and
// reviews them concurrently. A failed review is recorded, never fatal; only
// cancellation of ctx returns an error.
func (s *Selector) Select(ctx context.Context, papers []types.PaperRecord, interests string) (*types.PaperSelection, error) {
	log := s.deps.Logger

	candidates := make([]types.PaperRecord, 0, len(papers))
	for _, p := range papers {
		if p.HasPDF() {
			candidates = append(candidates, p)
		}
	}

	selection := &types.PaperSelection{
		Considered:   len(papers),
		SkippedNoPDF: len(papers) - len(candidates),
	}
	if len(candidates) == 0 {
		log.Info("no papers with pdf links", zap.Int("papers", len(papers)))
		return selection, nil
	}

	pol := policy{
		maxSelected:   s.cfg.MaxSelected,
		maxReputation: s.cfg.MaxReputation,
		recentFrom:    s.now().Year() - s.cfg.RecencyYears + 1,
	}

	ranked, err := s.rank(ctx, candidates, interests, pol)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("ranking agent failed, using keyword ranking", zap.Error(err))
		ranked = pol.fallbackRank(candidates, interests)
	}

	picks := pol.apply(ranked, candidates)
	log.Info("papers selected",
		zap.Int("considered", len(papers)),
		zap.Int("with_pdf", len(candidates)),
		zap.Int("selected", len(picks)),
	)

	reviews, failures, err := s.review(ctx, candidates, picks, interests)
	if err != nil {
		return nil, err
	}

	selection.Reviews = reviews
	selection.SelectedCount = len(reviews)
	selection.Failures = failures
	return selection, nil
}

func (s *Selector) rank(ctx context.Context, candidates []types.PaperRecord, interests string, pol policy) ([]int, error) {
	if s.deps.Generator == nil {
		return nil, errors.New("no ranking agent configured")
	}

	message := ai.RenderTemplate(rankPrompt, map[string]string{
		"INTERESTS":   strings.TrimSpace(interests),
		"YEAR":        strconv.Itoa(s.now().Year()),
		"RECENT_FROM": strconv.Itoa(pol.recentFrom),
		"MAX":         strconv.Itoa(pol.maxSelected),
		"CANDIDATES":  formatCandidates(candidates),
	})

	raw, err := s.deps.Generator.GenerateContent(ctx, rankSystem, message)
	if err != nil {
		return nil, fmt.Errorf("ranking agent: %w", err)
	}

	var out ranking
	if err := ai.DecodeJSON(raw, &out); err != nil {
		return nil, fmt.Errorf("ranking agent: %w", err)
	}
	if len(out.Selected) == 0 {
		return nil, errors.New("ranking agent returned no papers")
	}

	ranked := make([]int, 0, len(out.Selected))
	for _, item := range out.Selected {
		ranked = append(ranked, item.Index)
		s.deps.Logger.Debug("paper ranked",
			zap.Int("index", item.Index),
			zap.Int("relevance", item.Relevance),
			zap.String("reason", utils.TruncateForLog(item.Reason, 200)),
		)
	}
	return ranked, nil
}

// review summarizes the picks concurrently. Results are stored by slot so the
// output keeps the pick order.
func (s *Selector) review(ctx context.Context, candidates []types.PaperRecord, picks []int, interests string) ([]types.PaperReview, []types.SelectionFailure, error) {
	if len(picks) == 0 {
		return nil, nil, nil
	}

	reviews := make([]*types.PaperReview, len(picks))
	failures := make([]*types.SelectionFailure, len(picks))

	limit := s.cfg.MaxConcurrent
	if limit > len(picks) {
		limit = len(picks)
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for slot, idx := range picks {
		paper := candidates[idx]
		g.Go(func() error {
			review, err := s.deps.Summarizer.Summarize(ctx, paper, interests)
			if err == nil && review == nil {
				err = errors.New("summarizer returned no review")
			}
			if err != nil {
				s.deps.Logger.Warn("paper review failed",
					zap.String("title", paper.Title),
					zap.String("pdf_url", paper.PDFURL),
					zap.Error(err),
				)
				failures[slot] = &types.SelectionFailure{
					Index:  slot,
					Title:  paper.Title,
					URL:    paper.PDFURL,
					Reason: err.Error(),
				}
				return nil
			}
			reviews[slot] = review
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var outReviews []types.PaperReview
	var outFailures []types.SelectionFailure
	for slot := range picks {
		if reviews[slot] != nil {
			outReviews = append(outReviews, *reviews[slot])
		}
		if failures[slot] != nil {
			outFailures = append(outFailures, *failures[slot])
		}
	}
	return outReviews, outFailures, nil
}

func formatCandidates(candidates []types.PaperRecord) string {
	var b strings.Builder
	for i, c := range candidates {
		year := "unknown year"
		if c.Year > 0 {
			year = strconv.Itoa(c.Year)
		}
		fmt.Fprintf(&b, "[%d] %s (%s)", i, c.Title, year)
		if c.Venue != "" {
			fmt.Fprintf(&b, " | %s", c.Venue)
		}
		fmt.Fprintf(&b, " | cited by %d\n", c.Citations())
		if c.Abstract != "" {
			fmt.Fprintf(&b, "    %s\n", utils.TruncateForLog(c.Abstract, maxAbstractChars))
		}
	}
	return strings.TrimSpace(b.String())
}
