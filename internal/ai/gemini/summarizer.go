package gemini

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	_ "embed"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/ai"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/httputil"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/types"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/web"
)

//go:embed review_prompt.md
var reviewPrompt string

const (
	defaultReviewAttempts = 3
	defaultMaxPDFBytes    = 20 << 20
	pdfMIMEType           = "application/pdf"
)

var (
	// ErrURLRetrieval is reported when the model could not read the paper URL.
	ErrURLRetrieval = errors.New("url retrieval failed")
	// ErrNotPDF is reported when a downloaded document lacks the PDF signature.
	ErrNotPDF = errors.New("document is not a pdf")
)

type modelCaller interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// SummarizerConfig tunes paper reviews.
type SummarizerConfig struct {
	Model       string
	MaxAttempts int
	MaxPDFBytes int64
	Temperature float64
}

// Summarizer reviews papers by letting Gemini read the PDF URL, falling back to
// uploading the PDF bytes inline when the model cannot retrieve the URL.
type Summarizer struct {
	models      modelCaller
	http        *http.Client
	model       string
	maxAttempts int
	maxPDFBytes int64
	temperature *float32
	logger      *zap.Logger
}

// NewSummarizer builds a Summarizer sharing the given client.
func NewSummarizer(client *genai.Client, httpClient *http.Client, cfg SummarizerConfig, logger *zap.Logger) (*Summarizer, error) {
	if client == nil {
		return nil, errors.New("gemini client is required")
	}
	return newSummarizer(client.Models, httpClient, cfg, logger), nil
}

func newSummarizer(models modelCaller, httpClient *http.Client, cfg SummarizerConfig, logger *zap.Logger) *Summarizer {
	s := &Summarizer{
		models:      models,
		http:        httpClient,
		model:       strings.TrimSpace(cfg.Model),
		maxAttempts: cfg.MaxAttempts,
		maxPDFBytes: cfg.MaxPDFBytes,
		logger:      logger,
	}
	if s.http == nil {
		s.http = http.DefaultClient
	}
	if s.model == "" {
		s.model = defaultModel
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultReviewAttempts
	}
	if s.maxPDFBytes <= 0 {
		s.maxPDFBytes = defaultMaxPDFBytes
	}
	if cfg.Temperature > 0 {
		t := float32(cfg.Temperature)
		s.temperature = &t
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Summarize produces a structured review of paper against the applicant interests.
func (s *Summarizer) Summarize(ctx context.Context, paper types.PaperRecord, interests string) (*types.PaperReview, error) {
	if strings.TrimSpace(paper.PDFURL) == "" {
		return nil, errors.New("paper has no pdf url")
	}

	prompt := buildReviewPrompt(paper, interests)
	log := s.logger.With(zap.String("paper", paper.Title), zap.String("pdf_url", paper.PDFURL))

	summary, urlErr := s.viaURLContext(ctx, prompt, paper.PDFURL, log)
	if urlErr == nil {
		return &types.PaperReview{Paper: paper, Summary: *summary, Strategy: types.StrategyURLContext}, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	log.Info("url context review failed, falling back to inline pdf", zap.Error(urlErr))

	summary, inlineErr := s.viaInlinePDF(ctx, prompt, paper.PDFURL)
	if inlineErr != nil {
		return nil, fmt.Errorf("url context: %v; inline pdf: %w", urlErr, inlineErr)
	}

	return &types.PaperReview{Paper: paper, Summary: *summary, Strategy: types.StrategyInlinePDF}, nil
}

func (s *Summarizer) viaURLContext(ctx context.Context, prompt, pdfURL string, log *zap.Logger) (*types.PaperSummary, error) {
	config := &genai.GenerateContentConfig{
		Temperature: s.temperature,
		Tools:       []*genai.Tool{{URLContext: &genai.URLContext{}}},
	}
	contents := genai.Text(prompt + "\n\nPaper URL: " + pdfURL)

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		resp, err := s.models.GenerateContent(ctx, s.model, contents, config)
		if err == nil {
			if status := urlRetrievalFailure(resp); status != "" {
				err = fmt.Errorf("%w: %s", ErrURLRetrieval, status)
			}
		}
		if err == nil {
			logUsage(log, resp)
			summary, parseErr := parseSummary(responseText(resp))
			if parseErr == nil {
				return summary, nil
			}
			err = parseErr
		}

		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if _, isAPI := asAPIError(err); isAPI {
			if _, retry := retryDelay(err, attempt); !retry {
				return nil, err
			}
		}

		if attempt < s.maxAttempts {
			delay := backoff(attempt)
			log.Debug("retrying url context review", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
			if err := wait(ctx, delay); err != nil {
				return nil, err
			}
		}
	}

	return nil, lastErr
}

func (s *Summarizer) viaInlinePDF(ctx context.Context, prompt, pdfURL string) (*types.PaperSummary, error) {
	data, err := s.download(ctx, pdfURL)
	if err != nil {
		return nil, err
	}

	config := &genai.GenerateContentConfig{
		Temperature:      s.temperature,
		ResponseMIMEType: "application/json",
	}
	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			genai.NewPartFromBytes(data, pdfMIMEType),
			genai.NewPartFromText(prompt),
		},
	}}

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		resp, err := s.models.GenerateContent(ctx, s.model, contents, config)
		if err == nil {
			summary, parseErr := parseSummary(responseText(resp))
			if parseErr == nil {
				return summary, nil
			}
			err = parseErr
		}
		lastErr = err

		delay, retry := retryDelay(err, attempt)
		if _, isAPI := asAPIError(err); !isAPI {
			retry, delay = true, backoff(attempt)
		}
		if !retry || ctx.Err() != nil {
			break
		}
		if attempt < 2 {
			if err := wait(ctx, delay); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

func (s *Summarizer) download(ctx context.Context, pdfURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return nil, &web.FetchError{URL: pdfURL, Err: err}
	}
	req.Header.Set("User-Agent", web.DefaultUserAgent)
	req.Header.Set("Accept", "application/pdf,*/*;q=0.5")

	resp, err := httputil.DoWithRetry(ctx, s.http, req, 3, nil)
	if err != nil {
		return nil, &web.FetchError{URL: pdfURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &web.FetchError{URL: pdfURL, StatusCode: resp.StatusCode}
	}

	data, err := web.ReadBody(resp, s.maxPDFBytes+1)
	if err != nil {
		return nil, &web.FetchError{URL: pdfURL, StatusCode: resp.StatusCode, Err: err}
	}
	if int64(len(data)) > s.maxPDFBytes {
		return nil, fmt.Errorf("pdf %s exceeds %d bytes", pdfURL, s.maxPDFBytes)
	}
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-")) {
		return nil, fmt.Errorf("%w: %s", ErrNotPDF, pdfURL)
	}
	return data, nil
}

// urlRetrievalFailure returns the first non-success retrieval status, if any.
func urlRetrievalFailure(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.URLContextMetadata == nil {
			continue
		}
		for _, meta := range candidate.URLContextMetadata.URLMetadata {
			if meta == nil {
				continue
			}
			status := string(meta.URLRetrievalStatus)
			if status == "" || status == "URL_RETRIEVAL_STATUS_SUCCESS" || status == "URL_RETRIEVAL_STATUS_UNSPECIFIED" {
				continue
			}
			return status
		}
	}
	return ""
}

func buildReviewPrompt(paper types.PaperRecord, interests string) string {
	year := "unknown"
	if paper.Year > 0 {
		year = strconv.Itoa(paper.Year)
	}
	abstract := strings.TrimSpace(paper.Abstract)
	if abstract == "" {
		abstract = "none"
	}
	return ai.RenderTemplate(reviewPrompt, map[string]string{
		"TITLE":     paper.Title,
		"AUTHORS":   strings.Join(paper.Authors, ", "),
		"VENUE":     paper.Venue,
		"YEAR":      year,
		"ABSTRACT":  abstract,
		"INTERESTS": strings.TrimSpace(interests),
	})
}

func parseSummary(raw string) (*types.PaperSummary, error) {
	var summary types.PaperSummary
	if err := ai.DecodeJSON(raw, &summary); err != nil {
		return nil, err
	}

	summary.Gist = strings.TrimSpace(summary.Gist)
	summary.Priority = types.Priority(strings.ToUpper(strings.TrimSpace(string(summary.Priority))))

	switch {
	case summary.Gist == "":
		return nil, errors.New("review is missing gist")
	case !summary.Priority.Valid():
		return nil, fmt.Errorf("review has invalid priority %q", summary.Priority)
	case summary.RelevanceScore < 0 || summary.RelevanceScore > 100:
		return nil, fmt.Errorf("review relevance score %d out of range", summary.RelevanceScore)
	}
	return &summary, nil
}
