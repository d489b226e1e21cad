package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name        string
		rules       []Rule
		description string
		expected    Verdict
	}{
		{
			name:        "Prohibitive rule text",
			rules:       []Rule{{ShortName: "Be civil", Description: "No referrals or affiliate links allowed"}},
			description: "",
			expected:    Verdict{Disallowed: true},
		},
		{
			name:     "Prohibition in short name only",
			rules:    []Rule{{ShortName: "No Self-Promotion"}},
			expected: Verdict{Disallowed: true},
		},
		{
			name:        "Prohibition in description",
			rules:       nil,
			description: "Welcome! Referrals not allowed here.",
			expected:    Verdict{Disallowed: true},
		},
		{
			name:        "Megathread required",
			rules:       []Rule{{ShortName: "Referrals", Description: "Post referrals only in the pinned thread"}},
			description: "",
			expected:    Verdict{MegathreadOnly: true},
		},
		{
			name:        "Weekly thread mentioned in description",
			description: "Codes go in the Weekly Thread",
			expected:    Verdict{MegathreadOnly: true},
		},
		{
			name:     "Both flags",
			rules:    []Rule{{ShortName: "No affiliate links", Description: "Use the megathread"}},
			expected: Verdict{Disallowed: true, MegathreadOnly: true},
		},
		{
			name:        "Nothing matched",
			rules:       []Rule{{ShortName: "Be kind", Description: "Share your codes freely"}},
			description: "A place for referral codes",
			expected:    Verdict{},
		},
		{
			name:     "No rules at all",
			expected: Verdict{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Evaluate(tt.rules, tt.description))
		})
	}
}

func TestEvaluate_EveryProhibitPatternDisallows(t *testing.T) {
	for _, pattern := range prohibitPatterns {
		t.Run(pattern, func(t *testing.T) {
			verdict := Evaluate([]Rule{{Description: "Rule 3: " + pattern + "!"}}, "")
			assert.True(t, verdict.Disallowed)
		})
	}
}

func TestIsMegathreadTitle(t *testing.T) {
	tests := []struct {
		title    string
		expected bool
	}{
		{"Official Referral MEGATHREAD - October", true},
		{"Weekly referral thread", true},
		{"weekly codes", false},
		{"Thread for codes", false},
		{"Uber Eats promo code", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsMegathreadTitle(tt.title))
		})
	}
}
