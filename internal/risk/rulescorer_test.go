package risk_test

import (
	"context"
	"strings"
	"testing"

	"github.com/jmerrifield20/ZakatLedger/internal/risk"
)

func TestRuleBasedScorer(t *testing.T) {
	s := risk.NewRuleBasedScorer()

	tests := []struct {
		name         string
		in           risk.Input
		wantSeverity string
		wantFlagged  bool
		wantRule     string
	}{
		{
			name:         "plain donation",
			in:           risk.Input{Amount: 2500, Note: "for school fees"},
			wantSeverity: "none",
		},
		{
			name:         "very large amount",
			in:           risk.Input{Amount: 1_250_500},
			wantSeverity: "low",
			wantRule:     "large_amount",
		},
		{
			name:         "large round amount with refund note",
			in:           risk.Input{Amount: 1_000_000, Note: "refund the loan in crypto or a gift card"},
			wantSeverity: "critical",
			wantFlagged:  true,
			wantRule:     "note_phrase",
		},
		{
			name:         "contact details",
			in:           risk.Input{Amount: 500, Note: "call me on +92 300 1234567 or visit www.example.com"},
			wantSeverity: "low",
			wantRule:     "note_contact",
		},
		{
			name:         "long note",
			in:           risk.Input{Amount: 10, Note: strings.Repeat("x", 501)},
			wantSeverity: "none",
			wantRule:     "note_length",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rep, err := s.Score(context.Background(), tc.in)
			if err != nil {
				t.Fatal(err)
			}
			if rep.Severity != tc.wantSeverity {
				t.Errorf("severity = %q (score %d), want %q", rep.Severity, rep.Score, tc.wantSeverity)
			}
			if rep.Flagged != tc.wantFlagged {
				t.Errorf("flagged = %v, want %v", rep.Flagged, tc.wantFlagged)
			}
			if rep.Score < 0 || rep.Score > 100 {
				t.Errorf("score %d out of range", rep.Score)
			}
			if rep.Findings == nil {
				t.Error("Findings must be non-nil")
			}
			if tc.wantRule != "" && !hasRule(rep, tc.wantRule) {
				t.Errorf("findings %+v missing rule %q", rep.Findings, tc.wantRule)
			}
		})
	}
}

func hasRule(rep *risk.Report, rule string) bool {
	for _, f := range rep.Findings {
		if f.Rule == rule {
			return true
		}
	}
	return false
}
