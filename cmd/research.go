package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/ai"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/ai/gemini"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/faculty"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/logger"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/papers"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/pipeline"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/recruiting"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/report"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/scholar"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/secrets"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/store"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/synthesis"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/web"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"

	PromptConflictSuffix    = "Keep both (write with a numeric suffix)"
	PromptConflictOverwrite = "Overwrite the existing report"
	PromptConflictSkip      = "Skip this report"
)

var errDeclined = errors.New("declined at confirmation prompt")

var researchCmd = &cobra.Command{
	Use:   "research URL...",
	Short: "Evaluate one or more faculty pages and write a fit report for each",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && cmd.Flag("urls-file").Value.String() == "" {
			return errors.New("at least one faculty URL or --urls-file is required")
		}
		return nil
	},
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return research(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(researchCmd)

	researchCmd.Flags().StringP("urls-file", "u", "", "file with one faculty URL per line")
	researchCmd.Flags().StringP("interests", "i", "", "file describing the applicant's research interests")
	researchCmd.Flags().StringP("reports-dir", "o", "", "directory for generated reports")
	researchCmd.Flags().String("conflict-policy", "", "what to do when a report exists: suffix, fail or ask")
	researchCmd.Flags().IntP("concurrency", "c", 0, "how many faculty pages to evaluate at once")
	researchCmd.Flags().Bool("skip-reviews", false, "do not send papers to the model; use abstracts as placeholders")
	researchCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before a batch")

	viper.BindPFlag("applicant.interests-file", researchCmd.Flags().Lookup("interests"))
	viper.BindPFlag("reports-dir", researchCmd.Flags().Lookup("reports-dir"))
	viper.BindPFlag("conflict-policy", researchCmd.Flags().Lookup("conflict-policy"))
	viper.BindPFlag("concurrency", researchCmd.Flags().Lookup("concurrency"))
	viper.BindPFlag("selection.skip-reviews", researchCmd.Flags().Lookup("skip-reviews"))
}

func research(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer logger.Sync()

	config, err := getConfig()
	if err != nil {
		return fmt.Errorf("getting a config: %w", err)
	}

	logger.Info("starting the advisor-analyzer", zap.String("version", resolvedVersion()))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(config), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	if config.Scholar.MinInterval < scholar.MinIntervalFloor {
		logger.Warn("scholar.min-interval is below the floor, using the floor",
			zap.Duration("configured", config.Scholar.MinInterval),
			zap.Duration("floor", scholar.MinIntervalFloor),
		)
	}

	urls, err := collectURLs(args, cmd.Flag("urls-file").Value.String())
	if err != nil {
		return err
	}

	interests, err := loadInterests(config.Applicant)
	if err != nil {
		return err
	}

	if len(urls) > 1 && cmd.Flag("auto-approve").Value.String() == "false" {
		if err := confirmBatch(len(urls)); err != nil {
			return err
		}
	}

	var ledger pipeline.Ledger
	var cache web.PageCache
	if path := strings.TrimSpace(config.Store.Path); path != "" {
		db, err := store.Open(path)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer db.Close()
		ledger, cache = db, db
	}

	factory, err := newFactory(ctx, config, interests, cache, logger)
	if err != nil {
		return err
	}

	runner := pipeline.NewRunner(factory, ledger, pipeline.RunnerConfig{
		Concurrency: config.Concurrency,
		RunTimeout:  config.RunTimeout,
	}, logger)

	logger.Info("evaluating faculty pages", zap.Int("count", len(urls)), zap.Int("concurrency", config.Concurrency))

	outcomes := runner.Run(ctx, urls, interests)

	return summarize(outcomes, logger)
}

// newFactory wires the shared clients once and returns a factory that builds
// the per-run collaborators (fetch cache, Scholar pacer) for each URL.
func newFactory(ctx context.Context, config *Config, interests string, cache web.PageCache, log *zap.Logger) (pipeline.Factory, error) {
	provider := strings.TrimSpace(strings.ToLower(config.AI.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", config.AI.Provider)
	}

	gcfg := config.AI.Gemini
	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: gcfg.APIKey,
		File:  gcfg.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
	}

	client, err := gemini.NewClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: config.HTTP.Timeout}

	searcher, err := newSearcher(config.Search, httpClient, log)
	if err != nil {
		log.Warn("web search disabled", zap.Error(err))
	}

	policy, err := report.ParsePolicy(config.ConflictPolicy)
	if err != nil {
		return nil, err
	}
	var ask report.AskFunc
	if policy == report.PolicyAsk {
		ask = askConflict()
	}
	writer, err := report.NewWriter(config.ReportsDir, policy, ask, log)
	if err != nil {
		return nil, err
	}

	rubric := synthesis.DefaultRubric()

	return func(runID string, runLog *zap.Logger) (*pipeline.Pipeline, error) {
		extractGen, err := newGenerator(client, gcfg, gcfg.Model, "faculty_extractor", runLog)
		if err != nil {
			return nil, err
		}
		rankGen, err := newGenerator(client, gcfg, gcfg.Model, "paper_selector", runLog)
		if err != nil {
			return nil, err
		}
		recruitGen, err := newGenerator(client, gcfg, gcfg.Model, "recruiting_finder", runLog)
		if err != nil {
			return nil, err
		}
		synthGen, err := newGenerator(client, gcfg, gcfg.Model, "synthesizer", runLog)
		if err != nil {
			return nil, err
		}

		summarizer, err := newSummarizer(client, httpClient, config, runLog)
		if err != nil {
			return nil, err
		}

		fetcher := web.NewFetcher(httpClient, web.FetcherOptions{
			UserAgent:   config.HTTP.UserAgent,
			MaxAttempts: config.HTTP.MaxAttempts,
			Cache:       cache,
			CacheMaxAge: config.Store.PageTTL,
		}, runLog)

		pacer := scholar.NewPacer(config.Scholar.MinInterval)

		components := pipeline.Components{
			Extractor: faculty.NewExtractor(faculty.Deps{
				Fetcher:   fetcher,
				Searcher:  searcher,
				Generator: extractGen,
				Logger:    runLog.Named("faculty"),
			}, faculty.Config{}),
			Harvester: scholar.NewHarvester(httpClient, pacer, scholar.Config{
				MaxPapers:        config.Scholar.MaxPapers,
				YearsBack:        config.Scholar.YearsBack,
				ReputationPapers: config.Scholar.ReputationPapers,
				MaxAttempts:      config.Scholar.MaxAttempts,
				UserAgent:        config.HTTP.UserAgent,
			}, runLog.Named("scholar")),
			Selector: papers.NewSelector(papers.Deps{
				Generator:  rankGen,
				Summarizer: summarizer,
				Logger:     runLog.Named("papers"),
			}, papers.Config{
				MaxSelected:   config.Selection.MaxSelected,
				MaxConcurrent: config.Selection.MaxConcurrent,
				RecencyYears:  config.Selection.RecencyYears,
				MaxReputation: config.Selection.MaxReputation,
			}),
			Finder: recruiting.NewFinder(recruiting.Deps{
				Fetcher:   fetcher,
				Searcher:  searcher,
				Generator: recruitGen,
				Logger:    runLog.Named("recruiting"),
			}, recruiting.Config{}),
			Synthesizer: synthesis.NewSynthesizer(synthesis.Deps{
				Generator: synthGen,
				Logger:    runLog.Named("synthesis"),
			}, synthesis.Config{
				MaxAttempts:       config.Synthesis.MaxAttempts,
				ProgramConstraint: config.Applicant.ProgramConstraint,
				Rubric:            rubric,
			}),
			Writer: writer,
			Logger: runLog,
		}

		return pipeline.New(pipeline.Stages(components), runLog), nil
	}, nil
}

func newGenerator(client *genai.Client, cfg *GeminiConfig, model, agent string, log *zap.Logger) (ai.Generator, error) {
	return gemini.NewGenerator(client, gemini.GeneratorConfig{
		Model:        model,
		MaxRetries:   cfg.MaxRetries,
		Temperature:  cfg.Temperature,
		JSON:         true,
		MaxLogLength: cfg.MaxLogLength,
	}, logger.ForAgent(log, agent, model))
}

func newSummarizer(client *genai.Client, httpClient *http.Client, config *Config, log *zap.Logger) (papers.Summarizer, error) {
	if config.Selection.SkipReviews {
		log.Warn("paper reviews skipped, abstracts used as placeholders")
		return papers.PlaceholderSummarizer{}, nil
	}

	model := config.AI.Gemini.ReviewModel
	if model == "" {
		model = config.AI.Gemini.Model
	}
	return gemini.NewSummarizer(client, httpClient, gemini.SummarizerConfig{
		Model:       model,
		Temperature: config.AI.Gemini.Temperature,
	}, logger.ForAgent(log, "paper_reviewer", model))
}

// newSearcher returns a nil interface when search is not configured; the
// extractor and finder then rely on links alone.
func newSearcher(cfg *SearchConfig, client *http.Client, log *zap.Logger) (web.Searcher, error) {
	apiKey, err := secrets.Load(secrets.Source{
		Name:  "google search api key",
		Value: cfg.APIKey,
		File:  cfg.APIKeyFile,
		Env:   "GOOGLE_SEARCH_API_KEY",
	})
	if err != nil {
		return nil, err
	}

	engineID := cfg.EngineID
	if engineID == "" {
		engineID = os.Getenv("GOOGLE_SEARCH_ENGINE_ID")
	}

	search, err := web.NewGoogleSearch(client, apiKey, engineID, cfg.Results, log.Named("search"))
	if err != nil {
		return nil, err
	}
	return search, nil
}

func collectURLs(args []string, file string) ([]string, error) {
	urls := make([]string, 0, len(args))
	seen := make(map[string]bool)
	add := func(raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") || seen[raw] {
			return
		}
		seen[raw] = true
		urls = append(urls, raw)
	}

	for _, arg := range args {
		add(arg)
	}

	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("reading urls file: %w", err)
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			add(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading urls file: %w", err)
		}
	}

	if len(urls) == 0 {
		return nil, errors.New("no faculty URLs given")
	}
	return urls, nil
}

func loadInterests(cfg *ApplicantConfig) (string, error) {
	if file := strings.TrimSpace(cfg.InterestsFile); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading interests file: %w", err)
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			return text, nil
		}
		return "", fmt.Errorf("interests file %q is empty", file)
	}

	if text := strings.TrimSpace(cfg.Interests); text != "" {
		return text, nil
	}
	return "", errors.New("applicant interests are required (set applicant.interests-file or pass --interests)")
}

func confirmBatch(n int) error {
	prompt := promptui.Select{
		Label: fmt.Sprintf("Evaluate %d faculty pages?", n),
		Items: []string{PromptYes, PromptNo},
	}
	_, answer, err := prompt.Run()
	if err != nil {
		return err
	}
	if answer != PromptYes {
		return errDeclined
	}
	return nil
}

// askConflict serializes prompts so concurrent runs never share the terminal.
func askConflict() report.AskFunc {
	var mu sync.Mutex
	return func(path string) (report.Decision, error) {
		mu.Lock()
		defer mu.Unlock()

		prompt := promptui.Select{
			Label: fmt.Sprintf("%s already exists", path),
			Items: []string{PromptConflictSuffix, PromptConflictOverwrite, PromptConflictSkip},
		}
		_, answer, err := prompt.Run()
		if err != nil {
			return report.DecisionSkip, err
		}
		switch answer {
		case PromptConflictOverwrite:
			return report.DecisionOverwrite, nil
		case PromptConflictSkip:
			return report.DecisionSkip, nil
		default:
			return report.DecisionSuffix, nil
		}
	}
}

func summarize(outcomes []pipeline.Outcome, log *zap.Logger) error {
	failed := 0
	for _, o := range outcomes {
		fields := []zap.Field{
			zap.String(logger.FieldURL, o.URL),
			zap.String(logger.FieldRunID, o.RunID),
			zap.Duration("took", o.Took),
		}
		switch {
		case o.Err != nil:
			failed++
			log.Error("evaluation failed", append(fields, zap.Error(o.Err))...)
		case o.Skipped:
			log.Warn("evaluation finished, report skipped", append(fields, zap.String("faculty", o.Faculty), zap.Float64("score", o.Score))...)
		default:
			log.Info("evaluation finished", append(fields,
				zap.String("faculty", o.Faculty),
				zap.Float64("score", o.Score),
				zap.String("report", o.ReportPath),
			)...)
		}
	}

	log.Info("all evaluations done", zap.Int("succeeded", len(outcomes)-failed), zap.Int("failed", failed))

	if failed > 0 {
		return fmt.Errorf("%d of %d evaluations failed", failed, len(outcomes))
	}
	return nil
}

// redacted copies config with secrets masked for debug output.
func redacted(c *Config) Config {
	out := *c
	if c.Search != nil && c.Search.APIKey != "" {
		s := *c.Search
		s.APIKey = "***"
		out.Search = &s
	}
	if c.AI != nil && c.AI.Gemini != nil && c.AI.Gemini.APIKey != "" {
		a := *c.AI
		g := *c.AI.Gemini
		g.APIKey = "***"
		a.Gemini = &g
		out.AI = &a
	}
	return out
}
