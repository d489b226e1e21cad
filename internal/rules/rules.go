package rules

import "strings"

// Rule is a single community rule as published by the platform
type Rule struct {
	ShortName   string `json:"short_name"`
	Description string `json:"description"`
}

// Verdict is the outcome of evaluating a community's rules
type Verdict struct {
	Disallowed     bool
	MegathreadOnly bool
}

var prohibitPatterns = []string{
	"no referrals", "no referral", "no codes", "no promo codes", "no self-promotion", "no self promotion",
	"referrals not allowed", "no affiliate", "no affiliate links",
}

var megathreadPatterns = []string{
	"referrals only in", "referrals allowed only in", "post referrals only in", "megathread", "weekly thread",
}

// Evaluate tests the concatenated, lower-cased rule text and description
// against the prohibition and megathread-required pattern sets.
func Evaluate(rules []Rule, description string) Verdict {
	parts := make([]string, 0, len(rules)+1)
	for _, r := range rules {
		parts = append(parts, r.ShortName+" "+r.Description)
	}
	parts = append(parts, description)
	blob := strings.ToLower(strings.Join(parts, " "))

	return Verdict{
		Disallowed:     containsAny(blob, prohibitPatterns),
		MegathreadOnly: containsAny(blob, megathreadPatterns),
	}
}

// IsMegathreadTitle reports whether a thread title marks an aggregation thread
func IsMegathreadTitle(title string) bool {
	t := strings.ToLower(title)
	return strings.Contains(t, "megathread") || (strings.Contains(t, "weekly") && strings.Contains(t, "thread"))
}

func containsAny(text string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
