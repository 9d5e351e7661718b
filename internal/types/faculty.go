// Package types holds the records passed between pipeline stages.
package types

// LinkCategory classifies a non-profile link found on a faculty page.
type LinkCategory string

const (
	LinkTeaching   LinkCategory = "teaching"
	LinkLab        LinkCategory = "lab"
	LinkSocial     LinkCategory = "social"
	LinkRecruiting LinkCategory = "recruiting"
	LinkCV         LinkCategory = "cv"
	LinkMedia      LinkCategory = "media"
	LinkPapers     LinkCategory = "papers"
	LinkOther      LinkCategory = "other"
)

const (
	SourceFacultyProfile   = "faculty_profile"
	SourcePersonalHomepage = "personal_homepage"
)

// Link is a categorized URL discovered while crawling.
type Link struct {
	URL      string       `json:"url" yaml:"url"`
	Category LinkCategory `json:"category" yaml:"category"`
	Label    string       `json:"label,omitempty" yaml:"label,omitempty"`
	Source   string       `json:"source" yaml:"source"`
}

// Profiles holds at most one URL per known academic profile slot.
type Profiles struct {
	GoogleScholar    string `json:"google_scholar,omitempty" yaml:"google_scholar,omitempty"`
	SemanticScholar  string `json:"semantic_scholar,omitempty" yaml:"semantic_scholar,omitempty"`
	DBLP             string `json:"dblp,omitempty" yaml:"dblp,omitempty"`
	ORCID            string `json:"orcid,omitempty" yaml:"orcid,omitempty"`
	ArxivAuthor      string `json:"arxiv_author,omitempty" yaml:"arxiv_author,omitempty"`
	PersonalHomepage string `json:"personal_homepage,omitempty" yaml:"personal_homepage,omitempty"`
}

// FacultyRecord is the structured identity extracted from a faculty page.
type FacultyRecord struct {
	PageURL       string   `json:"page_url" yaml:"page_url"`
	Name          string   `json:"name" yaml:"name"`
	Institution   string   `json:"institution,omitempty" yaml:"institution,omitempty"`
	Department    string   `json:"department,omitempty" yaml:"department,omitempty"`
	Email         string   `json:"email,omitempty" yaml:"email,omitempty"`
	BioSummary    string   `json:"bio_summary,omitempty" yaml:"bio_summary,omitempty"`
	ResearchAreas []string `json:"research_areas,omitempty" yaml:"research_areas,omitempty"`
	Profiles      Profiles `json:"profiles" yaml:"profiles"`
	OtherLinks    []Link   `json:"other_links,omitempty" yaml:"other_links,omitempty"`
	PagesCrawled  []string `json:"pages_crawled,omitempty" yaml:"pages_crawled,omitempty"`
}

// LinksByCategory returns other links of the given category in discovery order.
func (r *FacultyRecord) LinksByCategory(category LinkCategory) []Link {
	if r == nil {
		return nil
	}
	var out []Link
	for _, link := range r.OtherLinks {
		if link.Category == category {
			out = append(out, link)
		}
	}
	return out
}
