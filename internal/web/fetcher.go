package web

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/httputil"
	"go.uber.org/zap"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"
	maxBodyBytes     = 8 << 20
	acceptEncoding   = "gzip"
)

// ErrUnsupportedContent is returned for documents that have no readable text form.
var ErrUnsupportedContent = errors.New("unsupported content type")

// FetchError reports a page that could not be retrieved.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// PageCache persists pages between runs.
type PageCache interface {
	GetPage(ctx context.Context, url string, maxAge time.Duration) (*Page, bool, error)
	PutPage(ctx context.Context, page *Page) error
}

// FetcherOptions tune a Fetcher. Zero values select defaults.
type FetcherOptions struct {
	UserAgent   string
	MaxAttempts int
	Cache       PageCache
	CacheMaxAge time.Duration
}

type cacheEntry struct {
	page *Page
	err  error
}

// Fetcher retrieves pages over HTTP. Results, including failures, are memoized
// for the lifetime of the Fetcher, so one Fetcher should be used per run.
type Fetcher struct {
	client *http.Client
	opts   FetcherOptions
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewFetcher returns a Fetcher with its own per-run cache.
func NewFetcher(client *http.Client, opts FetcherOptions, logger *zap.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client: client,
		opts:   opts,
		logger: logger,
		cache:  make(map[string]cacheEntry),
	}
}

// Fetch returns the readable form of rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	rawURL = strings.TrimSpace(rawURL)

	f.mu.Lock()
	entry, ok := f.cache[rawURL]
	f.mu.Unlock()
	if ok {
		f.logger.Debug("fetch cache hit", zap.String("url", rawURL))
		return entry.page, entry.err
	}

	page, err := f.fetch(ctx, rawURL)
	if err != nil && ctx.Err() != nil {
		return nil, err
	}

	f.mu.Lock()
	f.cache[rawURL] = cacheEntry{page: page, err: err}
	f.mu.Unlock()

	return page, err
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) (*Page, error) {
	if f.opts.Cache != nil {
		page, ok, err := f.opts.Cache.GetPage(ctx, rawURL, f.opts.CacheMaxAge)
		if err != nil {
			f.logger.Warn("reading page cache", zap.String("url", rawURL), zap.Error(err))
		} else if ok {
			f.logger.Debug("persistent cache hit", zap.String("url", rawURL))
			return page, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")
	req.Header.Set("Accept-Encoding", acceptEncoding)

	f.logger.Debug("make request", zap.String("url", rawURL))

	resp, err := httputil.DoWithRetry(ctx, f.client, req, f.opts.MaxAttempts, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := readBody(resp)
	if err != nil {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: err}
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	var page *Page
	switch mediaType(resp.Header.Get("Content-Type"), body) {
	case "text/html", "application/xhtml+xml":
		page, err = ParseHTML(finalURL, body)
		if err != nil {
			return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: err}
		}
	case "text/plain":
		page = ParseText(finalURL, body)
	default:
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: ErrUnsupportedContent}
	}
	page.URL = rawURL
	page.FinalURL = finalURL

	if f.opts.Cache != nil {
		if err := f.opts.Cache.PutPage(ctx, page); err != nil {
			f.logger.Warn("writing page cache", zap.String("url", rawURL), zap.Error(err))
		}
	}

	return page, nil
}

// ReadBody reads a response body, decoding gzip when the server applied it.
func ReadBody(resp *http.Response, limit int64) ([]byte, error) {
	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	}
	return io.ReadAll(io.LimitReader(reader, limit))
}

func readBody(resp *http.Response) ([]byte, error) {
	return ReadBody(resp, maxBodyBytes)
}

func mediaType(header string, body []byte) string {
	if mt, _, err := mime.ParseMediaType(header); err == nil && mt != "" {
		return strings.ToLower(mt)
	}
	sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(body))
	if bytes.HasPrefix(bytes.TrimSpace(body), []byte("<")) && sniffed == "text/plain" {
		return "text/html"
	}
	return sniffed
}
