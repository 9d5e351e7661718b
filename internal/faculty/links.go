package faculty

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/types"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/web"
)

type profileSlot int

const (
	slotNone profileSlot = iota
	slotGoogleScholar
	slotSemanticScholar
	slotDBLP
	slotORCID
	slotArxiv
)

var (
	courseCode   = regexp.MustCompile(`^[A-Za-z]{2,5}[\s-]?\d{2,4}[A-Za-z]?\b`)
	orcidID      = regexp.MustCompile(`\d{4}-\d{4}-\d{4}-\d{3}[\dX]`)
	wordSplitter = regexp.MustCompile(`[^a-z0-9]+`)
)

var socialHosts = []string{
	"twitter.com", "x.com", "linkedin.com", "github.com", "gitlab.com", "bsky.app",
	"facebook.com", "instagram.com", "threads.net", "mastodon.social", "researchgate.net",
}

var mediaHosts = []string{
	"youtube.com", "youtu.be", "vimeo.com", "podcasts.apple.com", "spotify.com", "ted.com",
}

var paperHosts = []string{
	"arxiv.org", "dl.acm.org", "ieeexplore.ieee.org", "openreview.net", "aclanthology.org",
	"proceedings.neurips.cc", "proceedings.mlr.press", "link.springer.com", "doi.org",
}

// categoryKeywords are matched against whole words of the label and URL path, in order.
var categoryKeywords = []struct {
	category types.LinkCategory
	words    []string
}{
	{types.LinkRecruiting, []string{"prospective", "openings", "opening", "hiring", "recruiting", "vacancies", "positions", "join", "apply"}},
	{types.LinkCV, []string{"cv", "vita", "vitae", "resume", "résumé"}},
	{types.LinkPapers, []string{"publications", "publication", "papers", "bibliography", "preprints"}},
	{types.LinkTeaching, []string{"teaching", "course", "courses", "syllabus", "lecture", "lectures", "class", "classes"}},
	{types.LinkLab, []string{"lab", "laboratory", "group", "center", "centre", "institute"}},
	{types.LinkMedia, []string{"news", "press", "interview", "talk", "talks", "video", "videos", "podcast", "media"}},
}

// classifyProfile returns the profile slot a URL belongs to, with its canonical form.
func classifyProfile(raw string) (profileSlot, string) {
	u, err := url.Parse(raw)
	if err != nil {
		return slotNone, ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	path := strings.ToLower(u.Path)

	switch {
	case strings.HasPrefix(host, "scholar.google.") && strings.HasPrefix(path, "/citations"):
		user := u.Query().Get("user")
		if user == "" {
			return slotNone, ""
		}
		return slotGoogleScholar, ScholarProfileURL(user)
	case host == "semanticscholar.org" && strings.HasPrefix(path, "/author/"):
		return slotSemanticScholar, raw
	case (host == "dblp.org" || host == "dblp.uni-trier.de") && (strings.HasPrefix(path, "/pid/") || strings.HasPrefix(path, "/pers/")):
		return slotDBLP, raw
	case host == "orcid.org" && orcidID.MatchString(u.Path):
		return slotORCID, raw
	case host == "arxiv.org" && strings.HasPrefix(path, "/a/"):
		return slotArxiv, raw
	}
	return slotNone, ""
}

// ScholarProfileURL is the canonical Google Scholar profile URL for a user id.
func ScholarProfileURL(user string) string {
	return "https://scholar.google.com/citations?user=" + url.QueryEscape(user)
}

func assignProfile(p *types.Profiles, slot profileSlot, canonical string) bool {
	var target *string
	switch slot {
	case slotGoogleScholar:
		target = &p.GoogleScholar
	case slotSemanticScholar:
		target = &p.SemanticScholar
	case slotDBLP:
		target = &p.DBLP
	case slotORCID:
		target = &p.ORCID
	case slotArxiv:
		target = &p.ArxivAuthor
	default:
		return false
	}
	if *target == "" {
		*target = canonical
	}
	return true
}

func hostMatches(host string, candidates []string) bool {
	for _, c := range candidates {
		if host == c || strings.HasSuffix(host, "."+c) {
			return true
		}
	}
	return false
}

// categorize assigns a link to the fixed category table.
func categorize(link web.Link) types.LinkCategory {
	u, err := url.Parse(link.URL)
	if err != nil {
		return types.LinkOther
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")

	switch {
	case hostMatches(host, socialHosts):
		return types.LinkSocial
	case hostMatches(host, mediaHosts):
		return types.LinkMedia
	}

	label := strings.TrimSpace(link.Label)
	words := make(map[string]bool)
	for _, w := range wordSplitter.Split(strings.ToLower(label+" "+u.Path), -1) {
		if w != "" {
			words[w] = true
		}
	}
	// Non-ASCII spellings survive only as whole tokens of the label.
	for _, w := range strings.Fields(strings.ToLower(label)) {
		words[w] = true
	}

	for _, rule := range categoryKeywords {
		if rule.category == types.LinkPapers && hostMatches(host, paperHosts) {
			return types.LinkPapers
		}
		if rule.category == types.LinkTeaching && courseCode.MatchString(label) {
			return types.LinkTeaching
		}
		for _, w := range rule.words {
			if words[w] {
				return rule.category
			}
		}
	}

	if strings.HasSuffix(strings.ToLower(u.Path), ".pdf") && strings.Contains(strings.ToLower(label), "cv") {
		return types.LinkCV
	}

	return types.LinkOther
}

// linkCollector gathers profile slots and categorized links without duplicates.
type linkCollector struct {
	profiles types.Profiles
	links    []types.Link
	seen     map[string]bool
}

func newLinkCollector() *linkCollector {
	return &linkCollector{seen: make(map[string]bool)}
}

func (c *linkCollector) add(page *web.Page, source string) {
	if page == nil {
		return
	}
	for _, link := range page.Links {
		raw := strings.TrimSpace(link.URL)
		if raw == "" || c.seen[raw] {
			continue
		}

		if slot, canonical := classifyProfile(raw); slot != slotNone {
			c.seen[raw] = true
			assignProfile(&c.profiles, slot, canonical)
			continue
		}

		category := categorize(link)
		if category == types.LinkOther && web.SameHost(raw, page.FinalURL) {
			// Site navigation.
			continue
		}

		c.seen[raw] = true
		c.links = append(c.links, types.Link{
			URL:      raw,
			Category: category,
			Label:    strings.TrimSpace(link.Label),
			Source:   source,
		})
	}
}

// exclude drops a URL from the collected links, used once it fills a profile slot.
func (c *linkCollector) exclude(raw string) {
	c.seen[raw] = true
	out := c.links[:0]
	for _, l := range c.links {
		if l.URL != raw {
			out = append(out, l)
		}
	}
	c.links = out
}
