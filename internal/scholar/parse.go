package scholar

import (
	"bytes"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/types"
)

var (
	digits      = regexp.MustCompile(`\d+`)
	blockedHint = []string{"gs_captcha", "unusual traffic", "not a robot"}
)

type listing struct {
	papers []types.PaperRecord
	rows   int
}

func isBlockedPage(body []byte) bool {
	lower := bytes.ToLower(body)
	for _, hint := range blockedHint {
		if bytes.Contains(lower, []byte(hint)) {
			return true
		}
	}
	return false
}

// parseListing reads the publication rows of a profile page.
func parseListing(base *url.URL, body []byte) (*listing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	out := &listing{}
	doc.Find("tr.gsc_a_tr").Each(func(_ int, row *goquery.Selection) {
		out.rows++

		anchor := row.Find("a.gsc_a_at").First()
		title := strings.TrimSpace(anchor.Text())
		if title == "" {
			return
		}

		paper := types.PaperRecord{Title: title}

		href, ok := anchor.Attr("href")
		if !ok || strings.TrimSpace(href) == "" || href == "javascript:void(0)" {
			href, _ = anchor.Attr("data-href")
		}
		paper.CitationURL = absolute(base, href)

		gray := row.Find("div.gs_gray")
		if gray.Length() > 0 {
			paper.Authors = splitAuthors(gray.Eq(0).Text())
		}
		if gray.Length() > 1 {
			paper.Venue = strings.TrimSpace(gray.Eq(1).Text())
		}

		if year, err := strconv.Atoi(strings.TrimSpace(row.Find("td.gsc_a_y span").First().Text())); err == nil {
			paper.Year = year
		}

		if cell := row.Find("td.gsc_a_c"); cell.Length() > 0 {
			count := 0
			if m := digits.FindString(cell.Find("a").First().Text()); m != "" {
				count, _ = strconv.Atoi(m)
			}
			paper.CitationCount = &count
		}

		out.papers = append(out.papers, paper)
	})

	return out, nil
}

type citationDetail struct {
	pdfURL    string
	abstract  string
	citations *int
}

// parseCitation reads a publication detail page.
func parseCitation(base *url.URL, body []byte) (*citationDetail, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	detail := &citationDetail{}

	doc.Find("span.gsc_oci_title_ggt, span.gsc_vcd_title_ggt").EachWithBreak(func(_ int, span *goquery.Selection) bool {
		if !strings.Contains(strings.ToUpper(span.Text()), "[PDF]") {
			return true
		}
		if href, ok := span.Closest("a").Attr("href"); ok {
			detail.pdfURL = absolute(base, href)
			return false
		}
		return true
	})
	if detail.pdfURL == "" {
		doc.Find("#gsc_oci_title_gg a, #gsc_vcd_title_gg a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			href, _ := a.Attr("href")
			if u, err := url.Parse(href); err == nil && strings.HasSuffix(strings.ToLower(u.Path), ".pdf") {
				detail.pdfURL = absolute(base, href)
				return false
			}
			return true
		})
	}

	detail.abstract = strings.TrimSpace(doc.Find("#gsc_oci_descr, #gsc_vcd_descr").First().Text())

	doc.Find(".gsc_oci_field, .gsc_vcd_field").Each(func(_ int, field *goquery.Selection) {
		name := strings.ToLower(strings.TrimSpace(field.Text()))
		value := field.Next()
		switch name {
		case "description":
			if detail.abstract == "" {
				detail.abstract = strings.TrimSpace(value.Text())
			}
		case "total citations":
			if m := digits.FindString(value.Find("a").First().Text()); m != "" {
				n, _ := strconv.Atoi(m)
				detail.citations = &n
			}
		}
	})

	return detail, nil
}

func splitAuthors(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" && p != "..." {
			out = append(out, p)
		}
	}
	return out
}

func absolute(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
