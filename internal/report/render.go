// Package report renders and writes the markdown fit report.
package report

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/types"
)

var componentLabels = map[string]string{
	types.ComponentResearchAlignment:  "Research Alignment",
	types.ComponentMethodsOverlap:     "Methods Overlap",
	types.ComponentPublicationQuality: "Publication Quality",
	types.ComponentRecentActivity:     "Recent Activity",
	types.ComponentFunding:            "Funding",
	types.ComponentRecruitingStatus:   "Recruiting",
	types.ComponentAdvisingAndLab:     "Advising & Lab",
	types.ComponentProgramFit:         "Program Fit",
	types.ComponentRedFlags:           "Red Flags",
}

// noInformationConfidence is the confidence at or below which a negative
// recruiting insight reads as "nothing found" rather than "not recruiting".
const noInformationConfidence = 0.3

// Input is everything the report shows.
type Input struct {
	Faculty     *types.FacultyRecord
	Synthesis   *types.ResearchSynthesis
	Papers      *types.PaperSelection
	GeneratedAt time.Time
}

// Render produces the report markdown. The output depends only on in.
func Render(in Input) ([]byte, error) {
	if in.Faculty == nil || strings.TrimSpace(in.Faculty.Name) == "" {
		return nil, errors.New("report needs a faculty name")
	}
	if in.Synthesis == nil {
		return nil, errors.New("report needs a synthesis")
	}

	syn := in.Synthesis
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}
	section := func(title, body string) {
		body = NormalizeMarkdown(body)
		if body == "" {
			return
		}
		line("## %s", title)
		line("")
		line("%s", body)
		line("")
	}

	line("# %s", strings.TrimSpace(in.Faculty.Name))
	line("")
	if in.Faculty.Institution != "" {
		line("**Institution:** %s  ", in.Faculty.Institution)
	}
	if in.Faculty.Department != "" {
		line("**Department:** %s  ", in.Faculty.Department)
	}
	line("**Score:** %.0f/100  ", syn.Score)
	line("**Generated:** %s", in.GeneratedAt.Format("2006-01-02 15:04:05"))
	line("")
	line("**Verdict:** %s", strings.Join(strings.Fields(syn.Verdict), " "))
	line("")
	if flags := NormalizeMarkdown(syn.RedFlags); flags != "" {
		line("> **⚠️ Red flags:** %s", strings.ReplaceAll(flags, "\n", "\n> "))
		line("")
	}

	section("Research Fit", syn.ResearchFit)
	writeRecruiting(&b, syn.Recruiting)
	writeBreakdown(&b, syn)
	section("Highlighted Papers", syn.HighlightedPapers)
	section("Advising & Lab", syn.AdvisingAndLab)
	section("Activity", syn.Activity)
	writePlan(&b, syn.Plan)

	if in.Papers != nil {
		writeReviews(&b, in.Papers.Reviews)
		writeFailures(&b, in.Papers.Failures)
	}

	return []byte(strings.TrimRight(b.String(), "\n") + "\n"), nil
}

// RecruitingStatus labels the insight for readers.
func RecruitingStatus(r types.RecruitingInsight) string {
	switch {
	case r.IsRecruiting:
		return "✅ Recruiting"
	case r.Confidence <= noInformationConfidence:
		return "❓ No Information Found"
	default:
		return "❌ Not Recruiting"
	}
}

func writeRecruiting(b *strings.Builder, r types.RecruitingInsight) {
	fmt.Fprintf(b, "## Recruiting\n\n")
	fmt.Fprintf(b, "**Status:** %s (confidence: %.2f, signal: %s)\n", RecruitingStatus(r), r.Confidence, signalLabel(r.Signal))
	if r.Found() {
		fmt.Fprintf(b, "**Source:** %s\n\n", r.SourceURL)
		fmt.Fprintf(b, "> %s\n", strings.Join(strings.Fields(r.VerbatimText), " "))
	}
	b.WriteByte('\n')
}

func signalLabel(s types.RecruitingSignal) string {
	if s == "" {
		return string(types.SignalNone)
	}
	return strings.ReplaceAll(string(s), "_", " ")
}

func writeBreakdown(b *strings.Builder, syn *types.ResearchSynthesis) {
	fmt.Fprintf(b, "## Score Breakdown\n\n")
	fmt.Fprintf(b, "| Component | Score | Explanation |\n")
	fmt.Fprintf(b, "|-----------|-------|-------------|\n")
	for _, key := range types.ComponentKeys {
		c := syn.ScoreBreakdown.Component(key)
		fmt.Fprintf(b, "| %s | %s/%s | %s |\n", componentLabels[key], formatScore(c.Score), formatScore(c.MaxScore), EscapeTableCell(c.Explanation))
	}
	fmt.Fprintf(b, "| **Total** | **%s/100** | |\n\n", formatScore(syn.Score))
}

func formatScore(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func writePlan(b *strings.Builder, plan types.ResearchPlan) {
	if strings.TrimSpace(plan.Summary) == "" && len(plan.Objectives) == 0 && len(plan.PrioritizedSources) == 0 && len(plan.InformationTargets) == 0 {
		return
	}
	fmt.Fprintf(b, "## Research Plan\n\n")
	if summary := NormalizeMarkdown(plan.Summary); summary != "" {
		fmt.Fprintf(b, "%s\n\n", summary)
	}
	list := func(title string, items []string, numbered bool) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(b, "**%s:**\n\n", title)
		for i, item := range items {
			if numbered {
				fmt.Fprintf(b, "%d. %s\n", i+1, strings.TrimSpace(item))
			} else {
				fmt.Fprintf(b, "- %s\n", strings.TrimSpace(item))
			}
		}
		b.WriteByte('\n')
	}
	list("Objectives", plan.Objectives, false)
	list("Sources to check", plan.PrioritizedSources, true)
	list("Still unknown", plan.InformationTargets, false)
}

func writeReviews(b *strings.Builder, reviews []types.PaperReview) {
	if len(reviews) == 0 {
		return
	}
	fmt.Fprintf(b, "## Paper Reviews\n\n")
	for i, r := range reviews {
		p := r.Paper
		fmt.Fprintf(b, "### %d. %s\n\n", i+1, strings.TrimSpace(p.Title))
		if len(p.Authors) > 0 {
			fmt.Fprintf(b, "- **Authors:** %s\n", strings.Join(p.Authors, ", "))
		}
		var published []string
		if p.Venue != "" {
			published = append(published, p.Venue)
		}
		if p.Year > 0 {
			published = append(published, strconv.Itoa(p.Year))
		}
		if len(published) > 0 {
			fmt.Fprintf(b, "- **Published:** %s\n", strings.Join(published, " • "))
		}
		if p.PDFURL != "" {
			fmt.Fprintf(b, "- **URL:** %s\n", p.PDFURL)
		}
		if p.CitationCount != nil {
			fmt.Fprintf(b, "- **Citations:** %d\n", *p.CitationCount)
		}

		s := r.Summary
		if gist := NormalizeMarkdown(s.Gist); gist != "" {
			fmt.Fprintf(b, "\n%s\n", gist)
		}
		bullets := func(title string, items []string) {
			if len(items) == 0 {
				return
			}
			fmt.Fprintf(b, "\n**%s:**\n\n", title)
			for _, item := range items {
				fmt.Fprintf(b, "- %s\n", strings.TrimSpace(item))
			}
		}
		bullets("Technical highlights", s.TechnicalBullets)
		bullets("Fit with your interests", s.AlignmentBullets)

		if r.Strategy == types.StrategyPlaceholder {
			fmt.Fprintf(b, "\n**Priority:** %s (not reviewed)\n", s.Priority)
		} else {
			fmt.Fprintf(b, "\n**Priority:** %s (relevance %d/100)", s.Priority, s.RelevanceScore)
			if s.Rationale != "" {
				fmt.Fprintf(b, ": %s", strings.TrimSpace(s.Rationale))
			}
			b.WriteByte('\n')
		}
		if abstract := NormalizeMarkdown(p.Abstract); abstract != "" && r.Strategy != types.StrategyPlaceholder {
			fmt.Fprintf(b, "\n**Abstract:** %s\n", strings.Join(strings.Fields(abstract), " "))
		}
		b.WriteByte('\n')
	}
}

func writeFailures(b *strings.Builder, failures []types.SelectionFailure) {
	if len(failures) == 0 {
		return
	}
	fmt.Fprintf(b, "## Unreviewed Papers\n\n")
	for _, f := range failures {
		fmt.Fprintf(b, "- %s (%s): %s\n", strings.TrimSpace(f.Title), f.URL, strings.Join(strings.Fields(f.Reason), " "))
	}
	b.WriteByte('\n')
}

// Filename returns "{round(score)}_{Name}.md" with the score zero padded to two
// digits and the name reduced to letters, digits and underscores.
func Filename(name string, score float64) string {
	var safe strings.Builder
	for _, r := range strings.Join(strings.Fields(name), "_") {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			safe.WriteRune(r)
		}
	}
	base := safe.String()
	if base == "" {
		base = "Unknown"
	}
	return fmt.Sprintf("%02d_%s.md", int(math.Round(score)), base)
}
