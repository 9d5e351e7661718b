package synthesis

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/types"
)

const (
	minExplanation = 10
	maxExplanation = 300
)

// violations collects everything wrong with one synthesis attempt.
type violations struct {
	problems []string
	mismatch bool
}

func (v *violations) add(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *violations) empty() bool { return len(v.problems) == 0 }

func (v *violations) String() string { return strings.Join(v.problems, "; ") }

// validate checks out against the rubric. It forces max_score to the rubric
// maximum but never adjusts a score.
func validate(out *types.ResearchSynthesis, rubric *Rubric, programConstrained bool) *violations {
	v := &violations{}

	for _, def := range rubric.Components {
		c := out.ScoreBreakdown.Component(def.Key)
		c.MaxScore = def.Max

		if math.IsNaN(c.Score) || c.Score < def.Min || c.Score > def.Max {
			v.add("%s score %g is outside %g..%g", def.Key, c.Score, def.Min, def.Max)
		}

		c.Explanation = strings.TrimSpace(c.Explanation)
		if n := utf8.RuneCountInString(c.Explanation); n < minExplanation || n > maxExplanation {
			v.add("%s explanation must be %d-%d characters, got %d", def.Key, minExplanation, maxExplanation, n)
		}
	}

	if !programConstrained && out.ScoreBreakdown.ProgramFit.Score != 5 {
		v.add("program_fit must be 5 because the applicant states no program constraint, got %g", out.ScoreBreakdown.ProgramFit.Score)
	}

	if out.Score < 0 || out.Score > 100 {
		v.add("score %g is outside 0..100", out.Score)
	}

	for _, field := range []struct{ name, text string }{
		{"verdict", out.Verdict},
		{"research_fit", out.ResearchFit},
		{"activity", out.Activity},
	} {
		if strings.TrimSpace(field.text) == "" {
			v.add("%s must not be empty", field.name)
		}
	}

	if !out.ScoreBreakdown.Reconciles(out.Score) {
		v.mismatch = true
		v.add("component scores sum to %g but score is %g; they must agree within %g",
			out.ScoreBreakdown.Total(), out.Score, types.ReconciliationTolerance)
	}

	return v
}
