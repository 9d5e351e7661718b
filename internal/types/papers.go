package types

// Priority is the reading recommendation attached to a paper review.
type Priority string

const (
	PriorityRead  Priority = "READ"
	PriorityMaybe Priority = "MAYBE"
	PrioritySkip  Priority = "SKIP"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityRead, PriorityMaybe, PrioritySkip:
		return true
	}
	return false
}

// PaperRecord is one publication harvested from an academic profile.
type PaperRecord struct {
	Title         string   `json:"title" yaml:"title"`
	Authors       []string `json:"authors,omitempty" yaml:"authors,omitempty"`
	Venue         string   `json:"venue,omitempty" yaml:"venue,omitempty"`
	Year          int      `json:"year,omitempty" yaml:"year,omitempty"`
	PDFURL        string   `json:"pdf_url,omitempty" yaml:"pdf_url,omitempty"`
	Abstract      string   `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	CitationCount *int     `json:"citation_count,omitempty" yaml:"citation_count,omitempty"`
	CitationURL   string   `json:"citation_url,omitempty" yaml:"citation_url,omitempty"`
}

// Citations returns the citation count, treating unknown as zero.
func (p PaperRecord) Citations() int {
	if p.CitationCount == nil {
		return 0
	}
	return *p.CitationCount
}

// HasPDF reports whether a direct PDF link was discovered.
func (p PaperRecord) HasPDF() bool {
	return p.PDFURL != ""
}

// PaperSummary is the structured reading of a single paper.
type PaperSummary struct {
	Gist             string   `json:"gist" mapstructure:"gist"`
	TechnicalBullets []string `json:"technical_bullets" mapstructure:"technical_bullets"`
	AlignmentBullets []string `json:"alignment_bullets" mapstructure:"alignment_bullets"`
	RelevanceScore   int      `json:"relevance_score" mapstructure:"relevance_score"`
	Priority         Priority `json:"priority" mapstructure:"priority"`
	Rationale        string   `json:"rationale" mapstructure:"rationale"`
}

// ReviewStrategy records how the paper content reached the model.
type ReviewStrategy string

const (
	StrategyURLContext  ReviewStrategy = "url_context"
	StrategyInlinePDF   ReviewStrategy = "inline_pdf"
	StrategyPlaceholder ReviewStrategy = "placeholder"
)

// PaperReview is a summarized paper.
type PaperReview struct {
	Paper    PaperRecord    `json:"paper"`
	Summary  PaperSummary   `json:"summary"`
	Strategy ReviewStrategy `json:"strategy,omitempty"`
}

// SelectionFailure records a selected paper whose summary could not be produced.
type SelectionFailure struct {
	Index  int    `json:"index"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// PaperSelection is the outcome of the paper selection stage.
type PaperSelection struct {
	Reviews       []PaperReview      `json:"reviews"`
	SelectedCount int                `json:"selected_count"`
	SkippedNoPDF  int                `json:"skipped_no_pdf"`
	Failures      []SelectionFailure `json:"failures,omitempty"`
	Considered    int                `json:"considered"`
}

// Reconciled reports whether the selection counts are internally consistent.
func (s PaperSelection) Reconciled() bool {
	if s.SelectedCount != len(s.Reviews) {
		return false
	}
	return s.SelectedCount+s.SkippedNoPDF+len(s.Failures) <= s.Considered
}
