package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/httputil"
	"go.uber.org/zap"
)

// CustomSearchURL is the Google Programmable Search endpoint. Tests point it at httptest.
var CustomSearchURL = "https://www.googleapis.com/customsearch/v1"

const maxSearchResults = 10

// SearchResult is one ranked web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"link"`
	Snippet string `json:"snippet"`
}

// GoogleSearch queries the Google Custom Search JSON API.
type GoogleSearch struct {
	client   *http.Client
	apiKey   string
	engineID string
	num      int
	logger   *zap.Logger
}

// NewGoogleSearch builds a search client. num is clamped to 1..10.
func NewGoogleSearch(client *http.Client, apiKey, engineID string, num int, logger *zap.Logger) (*GoogleSearch, error) {
	apiKey = strings.TrimSpace(apiKey)
	engineID = strings.TrimSpace(engineID)
	if apiKey == "" || engineID == "" {
		return nil, errors.New("google search api key and engine id are required")
	}
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if num <= 0 || num > maxSearchResults {
		num = maxSearchResults
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoogleSearch{client: client, apiKey: apiKey, engineID: engineID, num: num, logger: logger}, nil
}

type searchResponse struct {
	Items []SearchResult `json:"items"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Search returns ranked results for query. An empty result set is not an error.
func (s *GoogleSearch) Search(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("search query must not be empty")
	}

	q := url.Values{}
	q.Set("key", s.apiKey)
	q.Set("cx", s.engineID)
	q.Set("q", query)
	q.Set("num", strconv.Itoa(s.num))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, CustomSearchURL, nil)
	if err != nil {
		return nil, err
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")

	s.logger.Debug("web search", zap.String("query", query))

	resp, err := httputil.DoWithRetry(ctx, s.client, req, 3, nil)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	defer resp.Body.Close()

	var payload searchResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&payload)

	if resp.StatusCode != http.StatusOK {
		msg := resp.Status
		if decodeErr == nil && payload.Error != nil && payload.Error.Message != "" {
			msg = payload.Error.Message
		}
		return nil, fmt.Errorf("search %q: bad status %d: %s", query, resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("search %q: decode response: %w", query, decodeErr)
	}

	results := make([]SearchResult, 0, len(payload.Items))
	for _, item := range payload.Items {
		item.URL = strings.TrimSpace(item.URL)
		if item.URL == "" {
			continue
		}
		results = append(results, item)
	}

	s.logger.Debug("web search results", zap.String("query", query), zap.Int("count", len(results)))

	return results, nil
}
