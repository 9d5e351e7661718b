package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/logger"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/store"
)

// Factory builds a fresh pipeline for one run. Everything with per-run state,
// such as the fetch cache and the Scholar pacer, must be created here.
type Factory func(runID string, log *zap.Logger) (*Pipeline, error)

// Ledger records run outcomes. *store.Store implements it.
type Ledger interface {
	StartRun(ctx context.Context, url string) (string, error)
	FinishRun(ctx context.Context, run store.Run) error
}

// Outcome is the result of one faculty URL.
type Outcome struct {
	URL        string
	RunID      string
	Faculty    string
	Score      float64
	ReportPath string
	Skipped    bool
	Err        error
	Took       time.Duration
}

// RunnerConfig tunes a Runner.
type RunnerConfig struct {
	Concurrency int
	RunTimeout  time.Duration
}

// Runner evaluates many URLs. One URL failing never affects the others.
type Runner struct {
	factory Factory
	ledger  Ledger
	cfg     RunnerConfig
	logger  *zap.Logger
	newID   func() string
}

// NewRunner returns a Runner. ledger may be nil.
func NewRunner(factory Factory, ledger Ledger, cfg RunnerConfig, log *zap.Logger) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{factory: factory, ledger: ledger, cfg: cfg, logger: log, newID: uuid.NewString}
}

// Run evaluates urls and returns one outcome per URL in input order.
func (r *Runner) Run(ctx context.Context, urls []string, interests string) []Outcome {
	outcomes := make([]Outcome, len(urls))

	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for i, url := range urls {
		g.Go(func() error {
			outcomes[i] = r.runOne(ctx, url, interests)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (r *Runner) runOne(ctx context.Context, url, interests string) Outcome {
	started := time.Now()
	out := Outcome{URL: url}

	runID := ""
	if r.ledger != nil {
		id, err := r.ledger.StartRun(ctx, url)
		if err != nil {
			r.logger.Warn("recording run start", zap.String(logger.FieldURL, url), zap.Error(err))
		}
		runID = id
	}
	recorded := runID != ""
	if !recorded {
		runID = r.newID()
	}
	out.RunID = runID

	log := logger.ForRun(r.logger, runID, url)

	runCtx := ctx
	if r.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.RunTimeout)
		defer cancel()
	}

	state, err := r.execute(runCtx, runID, url, interests, log)
	out.Took = time.Since(started)
	out.Err = err
	if state != nil {
		if state.Faculty != nil {
			out.Faculty = state.Faculty.Name
		}
		if err == nil && state.Synthesis != nil {
			out.Score = state.Synthesis.Score
		}
		out.ReportPath = state.ReportPath
		out.Skipped = state.ReportSkipped
	}

	if err != nil {
		log.Error("faculty evaluation failed", zap.Duration("took", out.Took), zap.Error(err))
	} else {
		log.Info("faculty evaluation finished",
			zap.String("faculty", out.Faculty),
			zap.Float64("score", out.Score),
			zap.String("report", out.ReportPath),
			zap.Duration("took", out.Took),
		)
	}

	if recorded {
		r.record(ctx, out)
	}
	return out
}

func (r *Runner) execute(ctx context.Context, runID, url, interests string, log *zap.Logger) (*State, error) {
	p, err := r.factory(runID, log)
	if err != nil {
		return nil, &StageError{Stage: "setup", URL: url, Err: err}
	}
	return p.Run(ctx, url, interests)
}

func (r *Runner) record(ctx context.Context, out Outcome) {
	run := store.Run{
		ID:         out.RunID,
		URL:        out.URL,
		Faculty:    out.Faculty,
		Score:      out.Score,
		ReportPath: out.ReportPath,
	}
	if out.Err != nil {
		run.Error = out.Err.Error()
		var stageErr *StageError
		if errors.As(out.Err, &stageErr) {
			run.Stage = stageErr.Stage
		}
	}

	if err := r.ledger.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		r.logger.Warn("recording run outcome", zap.String(logger.FieldRunID, out.RunID), zap.Error(err))
	}
}
