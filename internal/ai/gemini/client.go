package gemini

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/utils"
)

const (
	defaultModel        = "gemini-2.5-flash"
	defaultMaxRetries   = 3
	defaultMaxLogLength = 200
	baseRetryDelay      = 2 * time.Second
	maxRetryDelay       = 30 * time.Second
	// maxQuotaDelay is the longest server-requested wait we are willing to sit through.
	maxQuotaDelay = 30 * time.Second
)

var wait = utils.WaitFor

var errEmptyResponse = errors.New("gemini api returned empty response")

var retryAfterPattern = regexp.MustCompile(`(?i)retry (?:after|in) ([0-9]+(?:\.[0-9]+)?)\s*(ms|s|sec|secs|seconds?)?`)

type chatSession interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type chatCreator interface {
	Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error)
}

type genaiChats struct {
	chats *genai.Chats
}

func (c genaiChats) Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	chat, err := c.chats.Create(ctx, model, config, history)
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// NewClient creates a Google GenAI client for the Gemini API backend.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client, nil
}

// GeneratorConfig tunes one agent's model calls.
type GeneratorConfig struct {
	Model           string
	MaxRetries      int
	Temperature     float64
	MaxOutputTokens int
	JSON            bool
	MaxLogLength    int
}

// Generator sends system-instructed prompts to Gemini with bounded retries.
type Generator struct {
	chats       chatCreator
	model       string
	maxRetries  int
	temperature *float32
	maxTokens   int32
	json        bool
	maxLogLen   int
	logger      *zap.Logger
}

// NewGenerator builds a Generator on top of an existing client.
func NewGenerator(client *genai.Client, cfg GeneratorConfig, logger *zap.Logger) (*Generator, error) {
	if client == nil {
		return nil, errors.New("gemini client is required")
	}

	g := &Generator{
		chats:      genaiChats{chats: client.Chats},
		model:      strings.TrimSpace(cfg.Model),
		maxRetries: cfg.MaxRetries,
		maxTokens:  int32(cfg.MaxOutputTokens),
		json:       cfg.JSON,
		maxLogLen:  cfg.MaxLogLength,
		logger:     logger,
	}
	if g.model == "" {
		g.model = defaultModel
	}
	if g.maxRetries <= 0 {
		g.maxRetries = defaultMaxRetries
	}
	if cfg.Temperature > 0 {
		t := float32(cfg.Temperature)
		g.temperature = &t
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}

	return g, nil
}

// Model returns the configured model name.
func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

// GenerateContent opens a fresh chat with the system instruction and returns the reply text.
func (g *Generator) GenerateContent(ctx context.Context, system, message string) (string, error) {
	if g == nil || g.chats == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	message = strings.TrimSpace(message)
	if message == "" {
		return "", errors.New("message must not be empty")
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		Temperature:       g.temperature,
	}
	if g.maxTokens > 0 {
		config.MaxOutputTokens = g.maxTokens
	}
	if g.json {
		config.ResponseMIMEType = "application/json"
	}

	maxRetries := g.maxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	logLen := g.maxLogLen
	if logLen <= 0 {
		logLen = defaultMaxLogLength
	}

	g.logger.Debug("gemini generate content request",
		zap.Int("prompt_length", utf8.RuneCountInString(message)),
		zap.String("prompt_preview", utils.TruncateForLog(message, logLen)),
	)

	for attempt := 1; ; attempt++ {
		output, err := g.send(ctx, config, message)
		if err == nil {
			g.logger.Debug("gemini generate content response",
				zap.Int("attempt", attempt),
				zap.Int("response_length", utf8.RuneCountInString(output)),
				zap.String("response_preview", utils.TruncateForLog(output, logLen)),
			)
			return output, nil
		}

		delay, retry := retryDelay(err, attempt)
		if !retry || attempt >= maxRetries || ctx.Err() != nil {
			return "", fmt.Errorf("gemini generate content: %w", err)
		}

		g.logger.Warn("retrying gemini request",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := wait(ctx, delay); err != nil {
			return "", err
		}
	}
}

func (g *Generator) send(ctx context.Context, config *genai.GenerateContentConfig, message string) (string, error) {
	chat, err := g.chats.Create(ctx, g.model, config, nil)
	if err != nil {
		return "", fmt.Errorf("create chat: %w", err)
	}

	resp, err := chat.SendMessage(ctx, genai.Part{Text: message})
	if err != nil {
		return "", err
	}

	logUsage(g.logger, resp)

	output := responseText(resp)
	if output == "" {
		return "", errEmptyResponse
	}
	return output, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
		if builder.Len() > 0 {
			break
		}
	}

	return strings.TrimSpace(builder.String())
}

func logUsage(logger *zap.Logger, resp *genai.GenerateContentResponse) {
	if resp == nil || resp.UsageMetadata == nil {
		return
	}
	logger.Debug("gemini token usage",
		zap.Int32("prompt_tokens", resp.UsageMetadata.PromptTokenCount),
		zap.Int32("candidate_tokens", resp.UsageMetadata.CandidatesTokenCount),
		zap.Int32("total_tokens", resp.UsageMetadata.TotalTokenCount),
	)
}

// retryDelay decides whether err is transient and how long to wait before the next attempt.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	if errors.Is(err, errEmptyResponse) {
		return backoff(attempt), true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	apiErr, ok := asAPIError(err)
	if !ok {
		return 0, false
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		if requested, found := parseRetryAfter(apiErr.Message); found {
			if requested > maxQuotaDelay {
				return 0, false
			}
			return requested, true
		}
		return backoff(attempt), true
	case apiErr.Code == http.StatusRequestTimeout, apiErr.Code >= 500:
		return backoff(attempt), true
	default:
		return 0, false
	}
}

func asAPIError(err error) (genai.APIError, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	var apiPtr *genai.APIError
	if errors.As(err, &apiPtr) && apiPtr != nil {
		return *apiPtr, true
	}
	return genai.APIError{}, false
}

func parseRetryAfter(message string) (time.Duration, bool) {
	match := retryAfterPattern.FindStringSubmatch(message)
	if match == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	if strings.EqualFold(match[2], "ms") {
		return time.Duration(value * float64(time.Millisecond)), true
	}
	return time.Duration(value * float64(time.Second)), true
}

func backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(math.Pow(2, float64(attempt-1))) * baseRetryDelay
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}
