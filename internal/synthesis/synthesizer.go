// Package synthesis scores applicant-faculty fit against a fixed rubric.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	_ "embed"

	"go.uber.org/zap"

	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/ai"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/types"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/utils"
)

//go:embed prompt.md
var synthesisPrompt string

const synthesisSystem = "You are a rigorous academic advisor who scores PhD applicant and faculty fit. Reply with JSON only."

const (
	defaultMaxAttempts = 3
	maxFeedbackChars   = 6000
)

var (
	// ErrScoreReconciliation is returned when the component sum never matched the score.
	ErrScoreReconciliation = errors.New("score breakdown does not reconcile with score")
	// ErrInvalidSynthesis is returned when the agent never produced a valid synthesis.
	ErrInvalidSynthesis = errors.New("invalid synthesis")
)

// Deps groups the collaborators of the Synthesizer.
type Deps struct {
	Generator ai.Generator
	Logger    *zap.Logger
}

// Config tunes synthesis. An empty ProgramConstraint means the applicant did
// not restrict the department or program.
type Config struct {
	MaxAttempts       int
	ProgramConstraint string
	Rubric            *Rubric
}

// Input is everything gathered about one faculty member.
type Input struct {
	Faculty    *types.FacultyRecord
	Papers     *types.PaperSelection
	Recruiting types.RecruitingInsight
	Interests  string
}

// Synthesizer produces the final fit evaluation.
type Synthesizer struct {
	deps Deps
	cfg  Config
}

// NewSynthesizer returns a Synthesizer using the embedded rubric unless one is configured.
func NewSynthesizer(deps Deps, cfg Config) *Synthesizer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Rubric == nil {
		cfg.Rubric = DefaultRubric()
	}
	cfg.ProgramConstraint = strings.TrimSpace(cfg.ProgramConstraint)
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Synthesizer{deps: deps, cfg: cfg}
}

// Synthesize asks the agent for an evaluation and re-asks with the list of
// problems until the output validates or attempts run out.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) (*types.ResearchSynthesis, error) {
	log := s.deps.Logger
	base := s.baseValues(in)

	feedback := ""
	var last *violations
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		values := make(map[string]string, len(base)+1)
		for k, v := range base {
			values[k] = v
		}
		values["FEEDBACK"] = feedback

		raw, err := s.deps.Generator.GenerateContent(ctx, synthesisSystem, ai.RenderTemplate(synthesisPrompt, values))
		if err != nil {
			return nil, fmt.Errorf("synthesis agent: %w", err)
		}

		var out types.ResearchSynthesis
		if err := ai.DecodeJSON(raw, &out); err != nil {
			last = &violations{}
			last.add("response was not a valid JSON object: %v", err)
			log.Warn("synthesis output rejected", zap.Int("attempt", attempt), zap.Error(err))
			feedback = buildFeedback(raw, last)
			continue
		}

		last = validate(&out, s.cfg.Rubric, s.cfg.ProgramConstraint != "")
		if last.empty() {
			out.Recruiting = in.Recruiting
			log.Info("synthesis accepted",
				zap.Int("attempt", attempt),
				zap.Float64("score", out.Score),
			)
			return &out, nil
		}

		log.Warn("synthesis output rejected",
			zap.Int("attempt", attempt),
			zap.Bool("sum_mismatch", last.mismatch),
			zap.String("violations", utils.TruncateForLog(last.String(), 500)),
		)
		feedback = buildFeedback(raw, last)
	}

	if last != nil && last.mismatch {
		return nil, fmt.Errorf("%w after %d attempts: %s", ErrScoreReconciliation, s.cfg.MaxAttempts, last)
	}
	return nil, fmt.Errorf("%w after %d attempts: %s", ErrInvalidSynthesis, s.cfg.MaxAttempts, last)
}

func (s *Synthesizer) baseValues(in Input) map[string]string {
	program := "None stated. The applicant is open to any department or program, so program_fit must be 5."
	if s.cfg.ProgramConstraint != "" {
		program = s.cfg.ProgramConstraint
	}

	return map[string]string{
		"INTERESTS":  strings.TrimSpace(in.Interests),
		"PROGRAM":    program,
		"FACULTY":    ai.MustJSON(in.Faculty),
		"PAPERS":     formatPapers(in.Papers),
		"RECRUITING": ai.MustJSON(in.Recruiting),
		"RUBRIC":     s.cfg.Rubric.Prompt(),
	}
}

func buildFeedback(raw string, v *violations) string {
	var b strings.Builder
	b.WriteString("\n## Your previous answer was rejected\n\n")
	b.WriteString(utils.TruncateForLog(raw, maxFeedbackChars))
	b.WriteString("\n\nFix these problems and answer again with the full JSON object:\n")
	for _, p := range v.problems {
		fmt.Fprintf(&b, "- %s\n", p)
	}
	return b.String()
}

func formatPapers(sel *types.PaperSelection) string {
	if sel == nil || len(sel.Reviews) == 0 {
		return "No papers were reviewed."
	}

	var b strings.Builder
	for i, r := range sel.Reviews {
		fmt.Fprintf(&b, "%d. %s", i+1, r.Paper.Title)
		if r.Paper.Year > 0 {
			fmt.Fprintf(&b, " (%d)", r.Paper.Year)
		}
		if r.Paper.Venue != "" {
			fmt.Fprintf(&b, ", %s", r.Paper.Venue)
		}
		fmt.Fprintf(&b, ", cited by %d\n", r.Paper.Citations())
		fmt.Fprintf(&b, "   Gist: %s\n", r.Summary.Gist)
		for _, bullet := range r.Summary.AlignmentBullets {
			fmt.Fprintf(&b, "   - %s\n", bullet)
		}
		fmt.Fprintf(&b, "   Relevance %d/100, priority %s\n", r.Summary.RelevanceScore, r.Summary.Priority)
	}
	if len(sel.Failures) > 0 {
		fmt.Fprintf(&b, "\n%d selected papers could not be reviewed.\n", len(sel.Failures))
	}
	return strings.TrimSpace(b.String())
}
