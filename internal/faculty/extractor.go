// Package faculty turns a faculty page URL into a structured FacultyRecord.
package faculty

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/ai"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/types"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/web"
)

//go:embed prompt.md
var extractionPrompt string

const extractionSystem = "You are a careful research assistant that extracts facts from academic web pages. Reply with JSON only."

const (
	defaultMaxPages     = 2
	defaultMaxQueries   = 3
	defaultMaxPageChars = 20000
	maxPromptLinks      = 150
)

var (
	// ErrNotIndividualPage is returned when the URL is a directory or listing page.
	ErrNotIndividualPage = errors.New("not an individual faculty page")
	// ErrProfileNotFound is returned when no verified academic profile could be located.
	ErrProfileNotFound = errors.New("academic profile not found")
)

// Deps groups the collaborators of the Extractor.
type Deps struct {
	Fetcher   web.PageFetcher
	Searcher  web.Searcher
	Generator ai.Generator
	Logger    *zap.Logger
}

// Config bounds the crawl.
type Config struct {
	MaxPages     int
	MaxQueries   int
	MaxPageChars int
}

// Extractor builds FacultyRecords.
type Extractor struct {
	deps Deps
	cfg  Config
}

type extraction struct {
	IsIndividualPage bool     `mapstructure:"is_individual_page"`
	Reason           string   `mapstructure:"reason"`
	Name             string   `mapstructure:"name"`
	Institution      string   `mapstructure:"institution"`
	Department       string   `mapstructure:"department"`
	Email            string   `mapstructure:"email"`
	BioSummary       string   `mapstructure:"bio_summary"`
	ResearchAreas    []string `mapstructure:"research_areas"`
	PersonalHomepage string   `mapstructure:"personal_homepage"`
}

// NewExtractor returns an Extractor; zero config values select defaults.
func NewExtractor(deps Deps, cfg Config) *Extractor {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	if cfg.MaxQueries <= 0 || cfg.MaxQueries > defaultMaxQueries {
		cfg.MaxQueries = defaultMaxQueries
	}
	if cfg.MaxPageChars <= 0 {
		cfg.MaxPageChars = defaultMaxPageChars
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Extractor{deps: deps, cfg: cfg}
}

// Extract fetches pageURL, verifies it belongs to one person and resolves the
// person's academic profile.
func (e *Extractor) Extract(ctx context.Context, pageURL string) (*types.FacultyRecord, error) {
	log := e.deps.Logger

	page, err := e.deps.Fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	found, err := e.identify(ctx, page)
	if err != nil {
		return nil, err
	}
	if !found.IsIndividualPage || strings.TrimSpace(found.Name) == "" {
		reason := strings.TrimSpace(found.Reason)
		if reason == "" {
			reason = "page does not describe a single person"
		}
		return nil, fmt.Errorf("%w: %s", ErrNotIndividualPage, reason)
	}

	record := &types.FacultyRecord{
		PageURL:       pageURL,
		Name:          strings.TrimSpace(found.Name),
		Institution:   strings.TrimSpace(found.Institution),
		Department:    strings.TrimSpace(found.Department),
		Email:         strings.TrimSpace(found.Email),
		BioSummary:    strings.TrimSpace(found.BioSummary),
		ResearchAreas: cleanList(found.ResearchAreas),
		PagesCrawled:  []string{pageURL},
	}

	log.Info("faculty identified",
		zap.String("name", record.Name),
		zap.String("institution", record.Institution),
		zap.Strings("research_areas", record.ResearchAreas),
	)

	links := newLinkCollector()
	links.add(page, types.SourceFacultyProfile)

	homepage := e.pickHomepage(page, found.PersonalHomepage)
	if homepage != "" {
		record.Profiles.PersonalHomepage = homepage
		links.exclude(homepage)

		if len(record.PagesCrawled) < e.cfg.MaxPages {
			home, err := e.deps.Fetcher.Fetch(ctx, homepage)
			switch {
			case err == nil:
				record.PagesCrawled = append(record.PagesCrawled, homepage)
				links.add(home, types.SourcePersonalHomepage)
			case ctx.Err() != nil:
				return nil, ctx.Err()
			default:
				log.Warn("personal homepage unavailable", zap.String("url", homepage), zap.Error(err))
			}
		}
	}

	links.profiles.PersonalHomepage = record.Profiles.PersonalHomepage
	record.Profiles = links.profiles
	record.OtherLinks = links.links

	if record.Profiles.GoogleScholar == "" {
		profile, err := e.searchScholarProfile(ctx, record)
		if err != nil {
			return nil, err
		}
		record.Profiles.GoogleScholar = profile
	}

	log.Info("faculty record extracted",
		zap.String("scholar_profile", record.Profiles.GoogleScholar),
		zap.Int("other_links", len(record.OtherLinks)),
		zap.Int("pages_crawled", len(record.PagesCrawled)),
	)

	return record, nil
}

func (e *Extractor) identify(ctx context.Context, page *web.Page) (*extraction, error) {
	message := ai.RenderTemplate(extractionPrompt, map[string]string{
		"URL":   page.FinalURL,
		"TITLE": page.Title,
		"TEXT":  truncateRunes(page.Text, e.cfg.MaxPageChars),
		"LINKS": formatLinks(page.Links, maxPromptLinks),
	})

	raw, err := e.deps.Generator.GenerateContent(ctx, extractionSystem, message)
	if err != nil {
		return nil, fmt.Errorf("faculty extraction agent: %w", err)
	}

	var out extraction
	if err := ai.DecodeJSON(raw, &out); err != nil {
		return nil, fmt.Errorf("faculty extraction agent: %w", err)
	}
	return &out, nil
}

// pickHomepage prefers the agent's answer and falls back to a link labelled as a homepage.
func (e *Extractor) pickHomepage(page *web.Page, suggested string) string {
	suggested = strings.TrimSpace(suggested)
	if suggested != "" && !web.SameHost(suggested, page.FinalURL) {
		if slot, _ := classifyProfile(suggested); slot == slotNone && strings.HasPrefix(suggested, "http") {
			return suggested
		}
	}

	for _, link := range page.Links {
		label := strings.ToLower(link.Label)
		if !strings.Contains(label, "homepage") && !strings.Contains(label, "personal website") && !strings.Contains(label, "personal page") {
			continue
		}
		if web.SameHost(link.URL, page.FinalURL) {
			continue
		}
		if slot, _ := classifyProfile(link.URL); slot == slotNone {
			return link.URL
		}
	}
	return ""
}

func formatLinks(links []web.Link, limit int) string {
	if len(links) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, link := range links {
		if i >= limit {
			fmt.Fprintf(&b, "... %d more\n", len(links)-limit)
			break
		}
		label := link.Label
		if label == "" {
			label = "(no label)"
		}
		fmt.Fprintf(&b, "- %s -> %s\n", label, link.URL)
	}
	return strings.TrimSpace(b.String())
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

func cleanList(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		key := strings.ToLower(item)
		if item == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}
