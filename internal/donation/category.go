package donation

import "strings"

// Donation categories.
const (
	CategoryGeneral   = "General"
	CategoryFood      = "Food"
	CategoryEducation = "Education"
	CategoryMedical   = "Medical"
	CategoryOrphans   = "Orphans / Widows"
	CategoryRamzan    = "Ramzan / Fitra"
)

// categoryRules are checked in order; the first rule with a matching keyword wins.
var categoryRules = []struct {
	category string
	keywords []string
}{
	{CategoryFood, []string{"food", "ration", "grocery"}},
	{CategoryEducation, []string{"school", "fees", "education", "study"}},
	{CategoryMedical, []string{"hospital", "medicine", "medical", "treatment"}},
	{CategoryOrphans, []string{"orphan", "widow", "yateem"}},
	{CategoryRamzan, []string{"ramzan", "fitra", "eid"}},
}

// Classify derives a category from keywords in the donor's note.
func Classify(note string) string {
	if note == "" {
		return CategoryGeneral
	}
	lower := strings.ToLower(note)
	for _, r := range categoryRules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.category
			}
		}
	}
	return CategoryGeneral
}
