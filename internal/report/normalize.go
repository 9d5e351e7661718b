package report

import (
	"regexp"
	"strings"
)

var (
	reviewHeading = regexp.MustCompile(`(?m)^#\s+Paper Review:.*\n+`)
	bulletChar    = regexp.MustCompile(`(?m)^(\s*)•\s+`)
	topHeading    = regexp.MustCompile(`^#\s+`)
	blankRuns     = regexp.MustCompile(`\n{3,}`)
)

// NormalizeMarkdown tidies agent-written markdown so it nests under report
// sections: stray "# Paper Review:" titles are dropped, • bullets become
// dashes, H1 headings become H2 and runs of blank lines collapse.
func NormalizeMarkdown(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = reviewHeading.ReplaceAllString(text, "")
	text = bulletChar.ReplaceAllString(text, "$1- ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if topHeading.MatchString(line) {
			lines[i] = "#" + line
		}
	}
	text = strings.Join(lines, "\n")

	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// EscapeTableCell makes text safe inside a markdown table cell.
func EscapeTableCell(text string) string {
	text = strings.ReplaceAll(text, "|", `\|`)
	return strings.Join(strings.Fields(text), " ")
}
