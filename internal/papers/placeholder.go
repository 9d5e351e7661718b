package papers

import (
	"context"
	"strings"

	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/types"
	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/utils"
)

// PlaceholderSummarizer returns a review built from metadata alone. It backs
// the skip-reviews mode where no PDF is sent to a model.
type PlaceholderSummarizer struct{}

// Summarize implements Summarizer.
func (PlaceholderSummarizer) Summarize(ctx context.Context, paper types.PaperRecord, _ string) (*types.PaperReview, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gist := "Review skipped; the paper was selected but not read."
	if abstract := strings.TrimSpace(paper.Abstract); abstract != "" {
		gist = utils.TruncateForLog(abstract, 300)
	}

	return &types.PaperReview{
		Paper: paper,
		Summary: types.PaperSummary{
			Gist:      gist,
			Priority:  types.PriorityMaybe,
			Rationale: "Not reviewed in this run.",
		},
		Strategy: types.StrategyPlaceholder,
	}, nil
}
