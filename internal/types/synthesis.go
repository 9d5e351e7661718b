package types

import "math"

// RecruitingSignal is the evidence tier behind a recruiting insight.
type RecruitingSignal string

const (
	SignalDatedExplicit   RecruitingSignal = "dated_explicit"
	SignalUndatedExplicit RecruitingSignal = "undated_explicit"
	SignalAmbiguous       RecruitingSignal = "ambiguous"
	SignalNone            RecruitingSignal = "none"
)

// ConfidenceRange returns the inclusive confidence interval allowed for the signal.
func (s RecruitingSignal) ConfidenceRange() (low, high float64) {
	switch s {
	case SignalDatedExplicit:
		return 0.8, 1.0
	case SignalUndatedExplicit:
		return 0.5, 0.7
	case SignalAmbiguous:
		return 0.2, 0.4
	default:
		return 0.0, 0.1
	}
}

// RecruitingInsight is the verified statement about taking new students.
type RecruitingInsight struct {
	SourceURL    string           `json:"source_url"`
	VerbatimText string           `json:"verbatim_text"`
	IsRecruiting bool             `json:"is_recruiting"`
	Confidence   float64          `json:"confidence"`
	Signal       RecruitingSignal `json:"signal"`
}

// NoRecruitingInsight is the sentinel returned when nothing was found.
func NoRecruitingInsight() RecruitingInsight {
	return RecruitingInsight{Signal: SignalNone}
}

// Found reports whether the insight carries a verified statement.
func (r RecruitingInsight) Found() bool {
	return r.SourceURL != "" && r.VerbatimText != ""
}

// ScoreComponent is a single rubric line.
type ScoreComponent struct {
	Score       float64 `json:"score" mapstructure:"score"`
	MaxScore    float64 `json:"max_score" mapstructure:"max_score"`
	Explanation string  `json:"explanation" mapstructure:"explanation"`
}

// Component keys in rubric order.
const (
	ComponentResearchAlignment  = "research_alignment"
	ComponentMethodsOverlap     = "methods_overlap"
	ComponentPublicationQuality = "publication_quality"
	ComponentRecentActivity     = "recent_activity"
	ComponentFunding            = "funding"
	ComponentRecruitingStatus   = "recruiting_status"
	ComponentAdvisingAndLab     = "advising_and_lab"
	ComponentProgramFit         = "program_fit"
	ComponentRedFlags           = "red_flags"
)

// ComponentKeys lists the rubric components in report order.
var ComponentKeys = []string{
	ComponentResearchAlignment,
	ComponentMethodsOverlap,
	ComponentPublicationQuality,
	ComponentRecentActivity,
	ComponentFunding,
	ComponentRecruitingStatus,
	ComponentAdvisingAndLab,
	ComponentProgramFit,
	ComponentRedFlags,
}

// ScoreBreakdown is the fixed set of rubric components.
type ScoreBreakdown struct {
	ResearchAlignment  ScoreComponent `json:"research_alignment" mapstructure:"research_alignment"`
	MethodsOverlap     ScoreComponent `json:"methods_overlap" mapstructure:"methods_overlap"`
	PublicationQuality ScoreComponent `json:"publication_quality" mapstructure:"publication_quality"`
	RecentActivity     ScoreComponent `json:"recent_activity" mapstructure:"recent_activity"`
	Funding            ScoreComponent `json:"funding" mapstructure:"funding"`
	RecruitingStatus   ScoreComponent `json:"recruiting_status" mapstructure:"recruiting_status"`
	AdvisingAndLab     ScoreComponent `json:"advising_and_lab" mapstructure:"advising_and_lab"`
	ProgramFit         ScoreComponent `json:"program_fit" mapstructure:"program_fit"`
	RedFlags           ScoreComponent `json:"red_flags" mapstructure:"red_flags"`
}

// Component returns a pointer to the component with the given key, or nil.
func (b *ScoreBreakdown) Component(key string) *ScoreComponent {
	switch key {
	case ComponentResearchAlignment:
		return &b.ResearchAlignment
	case ComponentMethodsOverlap:
		return &b.MethodsOverlap
	case ComponentPublicationQuality:
		return &b.PublicationQuality
	case ComponentRecentActivity:
		return &b.RecentActivity
	case ComponentFunding:
		return &b.Funding
	case ComponentRecruitingStatus:
		return &b.RecruitingStatus
	case ComponentAdvisingAndLab:
		return &b.AdvisingAndLab
	case ComponentProgramFit:
		return &b.ProgramFit
	case ComponentRedFlags:
		return &b.RedFlags
	}
	return nil
}

// Total sums all component scores.
func (b ScoreBreakdown) Total() float64 {
	var sum float64
	for _, key := range ComponentKeys {
		sum += b.Component(key).Score
	}
	return sum
}

// ReconciliationTolerance is the allowed gap between the breakdown total and the score.
const ReconciliationTolerance = 0.5

// Reconciles reports whether the breakdown total matches score within tolerance.
func (b ScoreBreakdown) Reconciles(score float64) bool {
	return math.Abs(b.Total()-score) <= ReconciliationTolerance
}

// ResearchPlan captures the investigation strategy behind a synthesis.
type ResearchPlan struct {
	Summary            string   `json:"summary" mapstructure:"summary"`
	Objectives         []string `json:"objectives,omitempty" mapstructure:"objectives"`
	PrioritizedSources []string `json:"prioritized_sources,omitempty" mapstructure:"prioritized_sources"`
	InformationTargets []string `json:"information_targets,omitempty" mapstructure:"information_targets"`
}

// ResearchSynthesis is the final evaluation of applicant-faculty fit.
type ResearchSynthesis struct {
	Score             float64           `json:"score" mapstructure:"score"`
	ScoreBreakdown    ScoreBreakdown    `json:"score_breakdown" mapstructure:"score_breakdown"`
	Verdict           string            `json:"verdict" mapstructure:"verdict"`
	RedFlags          string            `json:"red_flags,omitempty" mapstructure:"red_flags"`
	ResearchFit       string            `json:"research_fit" mapstructure:"research_fit"`
	HighlightedPapers string            `json:"highlighted_papers,omitempty" mapstructure:"highlighted_papers"`
	Recruiting        RecruitingInsight `json:"recruiting" mapstructure:"-"`
	AdvisingAndLab    string            `json:"advising_and_lab,omitempty" mapstructure:"advising_and_lab"`
	Activity          string            `json:"activity" mapstructure:"activity"`
	Plan              ResearchPlan      `json:"plan" mapstructure:"plan"`
}
