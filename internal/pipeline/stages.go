package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/report"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/synthesis"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/types"
)

// Stage names as they appear in errors, logs and the run ledger.
const (
	StageExtract    = "extract_faculty"
	StageHarvest    = "harvest_papers"
	StageSelect     = "select_papers"
	StageRecruiting = "find_recruiting"
	StageSynthesize = "synthesize"
	StageReport     = "write_report"
)

// FacultyExtractor builds the faculty record from the input page.
type FacultyExtractor interface {
	Extract(ctx context.Context, url string) (*types.FacultyRecord, error)
}

// PaperHarvester lists publications for an academic profile.
type PaperHarvester interface {
	Harvest(ctx context.Context, profileURL string) ([]types.PaperRecord, error)
}

// PaperSelector picks and reviews papers.
type PaperSelector interface {
	Select(ctx context.Context, papers []types.PaperRecord, interests string) (*types.PaperSelection, error)
}

// RecruitingFinder looks for a recruiting statement. It never fails.
type RecruitingFinder interface {
	Find(ctx context.Context, record *types.FacultyRecord) types.RecruitingInsight
}

// Synthesizer scores the fit.
type Synthesizer interface {
	Synthesize(ctx context.Context, in synthesis.Input) (*types.ResearchSynthesis, error)
}

// ReportWriter stores a rendered report and returns its path.
type ReportWriter interface {
	Write(filename string, content []byte) (string, error)
}

// Components are the collaborators of the standard stage list.
type Components struct {
	Extractor   FacultyExtractor
	Harvester   PaperHarvester
	Selector    PaperSelector
	Finder      RecruitingFinder
	Synthesizer Synthesizer
	Writer      ReportWriter
	Logger      *zap.Logger
	Now         func() time.Time
}

// Stages returns the evaluation stages in their fixed order.
func Stages(c Components) []Stage {
	now := c.Now
	if now == nil {
		now = time.Now
	}
	log := c.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return []Stage{
		&extractStage{extractor: c.Extractor},
		&harvestStage{harvester: c.Harvester},
		&selectStage{selector: c.Selector},
		&recruitingStage{finder: c.Finder},
		&synthesizeStage{synthesizer: c.Synthesizer},
		&reportStage{writer: c.Writer, now: now, logger: log},
	}
}

type extractStage struct{ extractor FacultyExtractor }

func (s *extractStage) Name() string { return StageExtract }

func (s *extractStage) Run(ctx context.Context, st *State) error {
	record, err := s.extractor.Extract(ctx, st.URL)
	if err != nil {
		return err
	}
	st.Faculty = record
	return nil
}

type harvestStage struct{ harvester PaperHarvester }

func (s *harvestStage) Name() string { return StageHarvest }

func (s *harvestStage) Run(ctx context.Context, st *State) error {
	papers, err := s.harvester.Harvest(ctx, st.Faculty.Profiles.GoogleScholar)
	if err != nil {
		return err
	}
	st.Papers = papers
	return nil
}

type selectStage struct{ selector PaperSelector }

func (s *selectStage) Name() string { return StageSelect }

func (s *selectStage) Run(ctx context.Context, st *State) error {
	selection, err := s.selector.Select(ctx, st.Papers, st.Interests)
	if err != nil {
		return err
	}
	if !selection.Reconciled() {
		return errors.New("paper selection counts do not reconcile")
	}
	st.Selection = selection
	return nil
}

type recruitingStage struct{ finder RecruitingFinder }

func (s *recruitingStage) Name() string { return StageRecruiting }

func (s *recruitingStage) Run(ctx context.Context, st *State) error {
	st.Recruiting = s.finder.Find(ctx, st.Faculty)
	return ctx.Err()
}

type synthesizeStage struct{ synthesizer Synthesizer }

func (s *synthesizeStage) Name() string { return StageSynthesize }

func (s *synthesizeStage) Run(ctx context.Context, st *State) error {
	out, err := s.synthesizer.Synthesize(ctx, synthesis.Input{
		Faculty:    st.Faculty,
		Papers:     st.Selection,
		Recruiting: st.Recruiting,
		Interests:  st.Interests,
	})
	if err != nil {
		return err
	}
	st.Synthesis = out
	return nil
}

type reportStage struct {
	writer ReportWriter
	now    func() time.Time
	logger *zap.Logger
}

func (s *reportStage) Name() string { return StageReport }

func (s *reportStage) Run(ctx context.Context, st *State) error {
	content, err := report.Render(report.Input{
		Faculty:     st.Faculty,
		Synthesis:   st.Synthesis,
		Papers:      st.Selection,
		GeneratedAt: s.now(),
	})
	if err != nil {
		return err
	}

	// Cancellation after rendering still discards the run.
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.writer.Write(report.Filename(st.Faculty.Name, st.Synthesis.Score), content)
	if err != nil {
		return err
	}
	if path == "" {
		st.ReportSkipped = true
		return nil
	}
	st.ReportPath = path
	s.logger.Info("report written", zap.String("path", path), zap.Float64("score", st.Synthesis.Score))
	return nil
}
