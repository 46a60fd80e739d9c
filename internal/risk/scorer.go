// Package risk provides a heuristic risk score for incoming donations.
// The score is receipt metadata for human review; it never blocks a
// donation from being recorded.
package risk

import "context"

// Finding is a single rule match returned by the scorer.
type Finding struct {
	Rule        string  `json:"rule"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// Report is the output of a risk analysis run.
type Report struct {
	// Score is the aggregate risk score (0–100).
	Score int `json:"score"`

	// Severity is a label derived from Score:
	//   0–14   → "none"
	//   15–34  → "low"
	//   35–64  → "medium"
	//   65–84  → "high"
	//   85–100 → "critical"
	Severity string `json:"severity"`

	// Findings lists every rule that triggered.
	Findings []Finding `json:"findings"`

	// Flagged is true when Score ≥ 65 and the donation should be reviewed.
	Flagged bool `json:"flagged"`
}

// Input is the part of a donation the scorer looks at.
type Input struct {
	Amount   float64
	Note     string
	Currency string
}

// Scorer analyses a donation for risk indicators.
type Scorer interface {
	Score(ctx context.Context, in Input) (*Report, error)
}

// severityLabel maps a 0–100 score to a severity string.
func severityLabel(score int) string {
	switch {
	case score >= 85:
		return "critical"
	case score >= 65:
		return "high"
	case score >= 35:
		return "medium"
	case score >= 15:
		return "low"
	default:
		return "none"
	}
}
