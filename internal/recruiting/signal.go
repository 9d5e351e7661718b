package recruiting

import (
	"regexp"
	"strings"

	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/types"
)

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

var hedges = []string{
	"may have", "may be", "may take", "may consider", "might ", "possibly", "perhaps", "occasionally", "from time to time",
	"depending on", "depends on", "subject to funding", "if funding", "not sure",
}

// strength orders signals from weakest to strongest.
func strength(s types.RecruitingSignal) int {
	switch s {
	case types.SignalDatedExplicit:
		return 3
	case types.SignalUndatedExplicit:
		return 2
	case types.SignalAmbiguous:
		return 1
	}
	return 0
}

func explicit(s types.RecruitingSignal) bool {
	return s == types.SignalDatedExplicit || s == types.SignalUndatedExplicit
}

// normalizeSignal settles the final tier for a verified statement. A dated
// claim with no recognisable date becomes undated, and an undated statement
// with hedged wording becomes ambiguous.
func normalizeSignal(signal types.RecruitingSignal, verbatim, statementDate string) types.RecruitingSignal {
	switch signal {
	case types.SignalDatedExplicit, types.SignalUndatedExplicit, types.SignalAmbiguous:
	default:
		signal = types.SignalAmbiguous
	}

	if signal == types.SignalDatedExplicit && !hasDate(statementDate) && !hasDate(verbatim) {
		signal = types.SignalUndatedExplicit
	}
	if signal == types.SignalUndatedExplicit && hedged(verbatim) {
		signal = types.SignalAmbiguous
	}
	return signal
}

func hasDate(s string) bool {
	return yearPattern.MatchString(s)
}

func hedged(s string) bool {
	lower := strings.ToLower(s)
	for _, h := range hedges {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

// clampConfidence forces confidence into the range of the signal's tier.
func clampConfidence(signal types.RecruitingSignal, confidence float64) float64 {
	low, high := signal.ConfidenceRange()
	if confidence < low {
		return low
	}
	if confidence > high {
		return high
	}
	return confidence
}
