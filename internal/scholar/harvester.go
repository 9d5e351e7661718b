// Package scholar harvests publication records from Google Scholar profiles.
package scholar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/httputil"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/types"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/web"
)

// BaseURL is the Scholar origin. Tests point it at httptest.
var BaseURL = "https://scholar.google.com"

const (
	defaultMaxPapers        = 100
	defaultYearsBack        = 4
	defaultReputationPapers = 3
	defaultMaxAttempts      = 4
	maxScholarBody          = 4 << 20
)

// pageSizeLimit is the largest listing page Scholar serves.
var pageSizeLimit = 100

var (
	// ErrBlocked is returned when Scholar rate limits or challenges the client.
	ErrBlocked = errors.New("google scholar blocked the request")
	// ErrInvalidProfile is returned for URLs that do not carry a Scholar user id.
	ErrInvalidProfile = errors.New("not a google scholar profile url")
)

// Config tunes a Harvester. Zero values select defaults.
type Config struct {
	MaxPapers        int
	YearsBack        int
	ReputationPapers int
	MaxAttempts      int
	UserAgent        string
}

// Harvester fetches a profile's publication list. Every request passes through
// the run's Pacer.
type Harvester struct {
	client *http.Client
	pacer  *Pacer
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// NewHarvester returns a Harvester bound to one run's pacer.
func NewHarvester(client *http.Client, pacer *Pacer, cfg Config, logger *zap.Logger) *Harvester {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if pacer == nil {
		pacer = NewPacer(DefaultMinInterval)
	}
	if cfg.MaxPapers <= 0 {
		cfg.MaxPapers = defaultMaxPapers
	}
	if cfg.YearsBack <= 0 {
		cfg.YearsBack = defaultYearsBack
	}
	if cfg.ReputationPapers < 0 {
		cfg.ReputationPapers = 0
	} else if cfg.ReputationPapers == 0 {
		cfg.ReputationPapers = defaultReputationPapers
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = web.DefaultUserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harvester{client: client, pacer: pacer, cfg: cfg, logger: logger, now: time.Now}
}

// UserID extracts the Scholar user id from a profile URL.
func UserID(profileURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(profileURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	user := strings.TrimSpace(u.Query().Get("user"))
	if user == "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidProfile, profileURL)
	}
	return user, nil
}

// ListingURL builds the publication listing URL sorted by date.
func ListingURL(user string, cstart, pageSize int) string {
	q := url.Values{}
	q.Set("user", user)
	q.Set("hl", "en")
	q.Set("sortby", "pubdate")
	q.Set("cstart", strconv.Itoa(cstart))
	q.Set("pagesize", strconv.Itoa(pageSize))
	return BaseURL + "/citations?" + q.Encode()
}

// Harvest returns the profile's papers, most recent first.
func (h *Harvester) Harvest(ctx context.Context, profileURL string) ([]types.PaperRecord, error) {
	user, err := UserID(profileURL)
	if err != nil {
		return nil, err
	}

	base, _ := url.Parse(BaseURL)
	pageSize := h.cfg.MaxPapers
	if pageSize > pageSizeLimit {
		pageSize = pageSizeLimit
	}

	var papers []types.PaperRecord
	for cstart := 0; len(papers) < h.cfg.MaxPapers; cstart += pageSize {
		listingURL := ListingURL(user, cstart, pageSize)
		body, err := h.get(ctx, listingURL)
		if err != nil {
			return nil, err
		}

		page, err := parseListing(base, body)
		if err != nil {
			return nil, &web.FetchError{URL: listingURL, Err: err}
		}

		h.logger.Debug("scholar listing page",
			zap.Int("cstart", cstart),
			zap.Int("rows", page.rows),
		)

		papers = append(papers, page.papers...)
		if page.rows < pageSize {
			break
		}
	}

	if len(papers) > h.cfg.MaxPapers {
		papers = papers[:h.cfg.MaxPapers]
	}

	sort.SliceStable(papers, func(i, j int) bool {
		yi, yj := papers[i].Year, papers[j].Year
		if yi == 0 || yj == 0 {
			return yi != 0 && yj == 0
		}
		return yi > yj
	})

	if err := h.enrich(ctx, base, papers); err != nil {
		return nil, err
	}

	withPDF := 0
	for _, p := range papers {
		if p.HasPDF() {
			withPDF++
		}
	}
	h.logger.Info("scholar harvest finished",
		zap.Int("papers", len(papers)),
		zap.Int("with_pdf", withPDF),
		zap.Int("requests", h.pacer.Requests()),
	)

	return papers, nil
}

// enrich fetches detail pages for recent papers and the most cited older ones.
func (h *Harvester) enrich(ctx context.Context, base *url.URL, papers []types.PaperRecord) error {
	for _, idx := range h.detailTargets(papers) {
		paper := &papers[idx]
		if paper.CitationURL == "" {
			continue
		}

		body, err := h.get(ctx, paper.CitationURL)
		if err != nil {
			if errors.Is(err, ErrBlocked) || ctx.Err() != nil {
				return err
			}
			h.logger.Warn("scholar detail page unavailable", zap.String("title", paper.Title), zap.Error(err))
			continue
		}

		detail, err := parseCitation(base, body)
		if err != nil {
			h.logger.Warn("parsing scholar detail page", zap.String("title", paper.Title), zap.Error(err))
			continue
		}
		paper.PDFURL = detail.pdfURL
		if detail.abstract != "" {
			paper.Abstract = detail.abstract
		}
		if detail.citations != nil {
			paper.CitationCount = detail.citations
		}
	}
	return nil
}

func (h *Harvester) detailTargets(papers []types.PaperRecord) []int {
	cutoff := h.now().Year() - (h.cfg.YearsBack - 1)

	var targets, older []int
	for i, p := range papers {
		if p.Year >= cutoff {
			targets = append(targets, i)
		} else if p.Citations() > 0 {
			older = append(older, i)
		}
	}

	sort.SliceStable(older, func(a, b int) bool {
		return papers[older[a]].Citations() > papers[older[b]].Citations()
	})
	if len(older) > h.cfg.ReputationPapers {
		older = older[:h.cfg.ReputationPapers]
	}

	targets = append(targets, older...)
	sort.Ints(targets)
	return targets
}

func (h *Harvester) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &web.FetchError{URL: target, Err: err}
	}
	req.Header.Set("User-Agent", h.cfg.UserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip")

	h.logger.Debug("make request", zap.String("url", target))

	resp, err := httputil.DoWithRetry(ctx, h.client, req, h.cfg.MaxAttempts, h.pacer.Wait)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &web.FetchError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &web.FetchError{URL: target, StatusCode: resp.StatusCode, Err: ErrBlocked}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &web.FetchError{URL: target, StatusCode: resp.StatusCode}
	}

	body, err := web.ReadBody(resp, maxScholarBody)
	if err != nil {
		return nil, &web.FetchError{URL: target, StatusCode: resp.StatusCode, Err: err}
	}
	if isBlockedPage(body) {
		return nil, &web.FetchError{URL: target, StatusCode: resp.StatusCode, Err: ErrBlocked}
	}
	return body, nil
}
