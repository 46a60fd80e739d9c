package risk

import (
	"context"
	"math"
	"regexp"
	"strings"
)

// ruleFunc inspects a donation and returns zero or more Findings if its rule matches.
type ruleFunc func(in Input) []Finding

// RuleBasedScorer is the default Scorer implementation. It runs a fixed set of
// rules against the donation and accumulates a score.
type RuleBasedScorer struct {
	rules []ruleFunc
}

// NewRuleBasedScorer returns a RuleBasedScorer loaded with the default rule set.
func NewRuleBasedScorer() *RuleBasedScorer {
	return &RuleBasedScorer{
		rules: []ruleFunc{
			ruleLargeAmount,
			ruleRoundAmount,
			ruleNotePhrases,
			ruleNoteContact,
			ruleNoteLength,
		},
	}
}

// Score implements Scorer.
func (s *RuleBasedScorer) Score(_ context.Context, in Input) (*Report, error) {
	var findings []Finding
	for _, r := range s.rules {
		findings = append(findings, r(in)...)
	}

	total := 0
	for _, f := range findings {
		total += int(f.Confidence * 25)
	}
	if total > 100 {
		total = 100
	}

	if findings == nil {
		findings = []Finding{}
	}

	return &Report{
		Score:    total,
		Severity: severityLabel(total),
		Findings: findings,
		Flagged:  total >= 65,
	}, nil
}

// ── Rules ─────────────────────────────────────────────────────────────────────

const (
	largeAmount     = 250_000
	veryLargeAmount = 1_000_000
)

func ruleLargeAmount(in Input) []Finding {
	switch {
	case in.Amount >= veryLargeAmount:
		return []Finding{{
			Rule:        "large_amount",
			Description: "Amount is at or above the very-large threshold",
			Confidence:  1.0,
		}}
	case in.Amount >= largeAmount:
		return []Finding{{
			Rule:        "large_amount",
			Description: "Amount is at or above the large threshold",
			Confidence:  0.6,
		}}
	}
	return nil
}

// ruleRoundAmount flags large exact multiples of 10,000, a common structuring pattern.
func ruleRoundAmount(in Input) []Finding {
	if in.Amount < 10_000 || math.Mod(in.Amount, 10_000) != 0 {
		return nil
	}
	return []Finding{{
		Rule:        "round_amount",
		Description: "Amount is an exact multiple of 10,000",
		Confidence:  0.4,
	}}
}

// suspiciousNotePhrases are substrings in donation notes that suggest the
// payment is not a plain charitable gift.
var suspiciousNotePhrases = []string{
	"refund", "return to", "send back", "cash only", "gift card",
	"crypto", "bitcoin", "loan", "commission", "on behalf of",
}

func ruleNotePhrases(in Input) []Finding {
	var findings []Finding
	lower := strings.ToLower(in.Note)
	for _, phrase := range suspiciousNotePhrases {
		if strings.Contains(lower, phrase) {
			findings = append(findings, Finding{
				Rule:        "note_phrase",
				Description: "Note contains suspicious phrase: " + phrase,
				Confidence:  0.8,
			})
		}
	}
	return findings
}

var (
	urlPattern   = regexp.MustCompile(`(?i)\bhttps?://|www\.`)
	emailPattern = regexp.MustCompile(`[[:alnum:]._%+-]+@[[:alnum:].-]+\.[[:alpha:]]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s-]{8,}\d`)
)

// ruleNoteContact flags notes carrying links or contact details, which do not
// belong on an anonymous receipt.
func ruleNoteContact(in Input) []Finding {
	var findings []Finding
	if urlPattern.MatchString(in.Note) {
		findings = append(findings, Finding{
			Rule:        "note_contact",
			Description: "Note contains a link",
			Confidence:  0.4,
		})
	}
	if emailPattern.MatchString(in.Note) || phonePattern.MatchString(in.Note) {
		findings = append(findings, Finding{
			Rule:        "note_contact",
			Description: "Note contains contact details",
			Confidence:  0.4,
		})
	}
	return findings
}

func ruleNoteLength(in Input) []Finding {
	if len(in.Note) <= 500 {
		return nil
	}
	return []Finding{{
		Rule:        "note_length",
		Description: "Note is unusually long",
		Confidence:  0.2,
	}}
}
