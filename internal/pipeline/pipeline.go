// Package pipeline drives one faculty URL through every stage and runs many
// URLs side by side.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/logger"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/types"
)

// Stage is a single step of a faculty evaluation. Stages read their inputs
// from State and store their output there.
type Stage interface {
	Name() string
	Run(ctx context.Context, s *State) error
}

// State carries stage outputs for one faculty URL.
type State struct {
	URL       string
	Interests string

	Faculty    *types.FacultyRecord
	Papers     []types.PaperRecord
	Selection  *types.PaperSelection
	Recruiting types.RecruitingInsight
	Synthesis  *types.ResearchSynthesis

	ReportPath    string
	ReportSkipped bool
}

// StageError is the fatal error of a run. It names the stage and the URL.
type StageError struct {
	Stage string
	URL   string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed for %s: %v", e.Stage, e.URL, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Pipeline runs stages strictly in order.
type Pipeline struct {
	stages []Stage
	logger *zap.Logger
}

// New returns a Pipeline over stages.
func New(stages []Stage, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{stages: stages, logger: log}
}

// Run evaluates url. The first failing stage ends the run with a *StageError;
// the partial state is returned for inspection but nothing after the failing
// stage has run.
func (p *Pipeline) Run(ctx context.Context, url, interests string) (*State, error) {
	state := &State{URL: url, Interests: interests}

	for _, stage := range p.stages {
		log := logger.ForStage(p.logger, stage.Name())

		if err := ctx.Err(); err != nil {
			return state, &StageError{Stage: stage.Name(), URL: url, Err: err}
		}

		started := time.Now()
		log.Debug("stage started")

		if err := stage.Run(ctx, state); err != nil {
			log.Warn("stage failed", zap.Duration("took", time.Since(started)), zap.Error(err))
			return state, &StageError{Stage: stage.Name(), URL: url, Err: err}
		}

		log.Info("stage finished", zap.Duration("took", time.Since(started)))
	}

	return state, nil
}

// StageNames lists the configured stages in execution order.
func (p *Pipeline) StageNames() []string {
	names := make([]string, 0, len(p.stages))
	for _, s := range p.stages {
		names = append(names, s.Name())
	}
	return names
}
