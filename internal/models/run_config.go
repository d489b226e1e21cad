package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidConfig is returned when a run configuration holds out-of-range values
var ErrInvalidConfig = errors.New("invalid run configuration")

// Tone selects the body shape of a rendered message
type Tone string

const (
	ToneConcise  Tone = "concise"
	ToneFriendly Tone = "friendly"
	ToneHelpful  Tone = "helpful"
)

// EmojiLevel controls whether a trailing emoji may be appended
type EmojiLevel string

const (
	EmojiNone   EmojiLevel = "none"
	EmojiLow    EmojiLevel = "low"
	EmojiNormal EmojiLevel = "normal"
)

// MinCadence is the floor applied to the posting period
const MinCadence = 10 * time.Second

// Upper bounds on user-supplied timing options. They keep every derived
// duration well inside the int64 nanosecond range.
const (
	MinPostsPerHour    = 0.01
	MaxCadence         = time.Duration(3600/MinPostsPerHour) * time.Second
	MaxJitterSeconds   = 24 * 60 * 60
	MaxDurationMinutes = 366 * 24 * 60
	MaxDaysBack        = 3650
)

// DefaultAllowlist is the prioritized set of referral communities
var DefaultAllowlist = []string{
	"ReferralCodes", "ReferAFriend", "ReferralTrains", "SignUpBonuses",
	"ReferralLinks", "Referrals", "Referralcodes", "TheReferralHub",
}

// DefaultGenericTerms are the discovery queries used when none are configured
var DefaultGenericTerms = []string{
	"referral", "referrals", "referral code", "referral codes",
	"promo code", "promocodes", "coupon code", "megathread", "weekly megathread",
}

// StringList decodes either a JSON array or a comma-separated string
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err == nil {
		*l = cleanList(items)
		return nil
	}

	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return fmt.Errorf("expected list or comma-separated string: %w", err)
	}
	*l = cleanList(strings.Split(joined, ","))
	return nil
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// RunConfig is the immutable snapshot of one run invocation
type RunConfig struct {
	Message       string     `json:"message"`
	Brand         string     `json:"brand"`
	RefCode       string     `json:"ref_code"`
	RefLink       string     `json:"ref_link"`
	Discount      int        `json:"discount"`
	Tone          Tone       `json:"tone"`
	EmojiLevel    EmojiLevel `json:"emoji_level"`
	AddDisclaimer *bool      `json:"add_disclaimer"`

	BrandTerms   StringList `json:"brand_terms"`
	GenericTerms StringList `json:"generic_terms"`
	Allowlist    StringList `json:"allowlist"`

	DaysBack      int     `json:"days_back"`
	PerSubLimit   int     `json:"per_sub_limit"`
	MaxTotalPosts int     `json:"max_total_posts"`
	PostsPerHour  float64 `json:"posts_per_hour"`
	JitterSeconds *int    `json:"jitter_seconds"`

	DurationMinutes *int       `json:"duration_minutes"`
	StartAt         *time.Time `json:"start_at"`
	EndAt           *time.Time `json:"end_at"`

	OnlyMegathreads *bool  `json:"only_megathreads"`
	DryRun          bool   `json:"dry_run"`
	RandomSeed      *int64 `json:"random_seed"`
}

// timestampLayouts are tried in order; zone-less values are read as local time
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// parseTimestamp accepts RFC 3339 and the zone-less forms sent by datetime-local inputs
func parseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", value)
}

func (c *RunConfig) UnmarshalJSON(data []byte) error {
	type plain RunConfig
	aux := struct {
		*plain
		StartAt *string `json:"start_at"`
		EndAt   *string `json:"end_at"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if c.StartAt, err = optionalTimestamp(aux.StartAt); err != nil {
		return fmt.Errorf("start_at: %w", err)
	}
	if c.EndAt, err = optionalTimestamp(aux.EndAt); err != nil {
		return fmt.Errorf("end_at: %w", err)
	}
	return nil
}

// optionalTimestamp maps null and "" to no value
func optionalTimestamp(value *string) (*time.Time, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	t, err := parseTimestamp(*value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// WithDefaults returns a copy with every missing option set to its documented default.
// A zero days_back, per_sub_limit, max_total_posts or posts_per_hour counts as
// missing, since zero would make the run a no-op.
func (c RunConfig) WithDefaults() RunConfig {
	c.Message = strings.TrimSpace(c.Message)
	c.Brand = strings.TrimSpace(c.Brand)
	c.RefCode = strings.TrimSpace(c.RefCode)
	c.RefLink = strings.TrimSpace(c.RefLink)

	if c.Tone == "" {
		c.Tone = ToneFriendly
	}
	if c.EmojiLevel == "" {
		c.EmojiLevel = EmojiLow
	}
	if c.AddDisclaimer == nil {
		c.AddDisclaimer = boolPtr(true)
	}
	if c.OnlyMegathreads == nil {
		c.OnlyMegathreads = boolPtr(true)
	}

	terms := append([]string(nil), c.BrandTerms...)
	if c.Brand != "" && !containsFold(terms, c.Brand) {
		terms = append(terms, c.Brand)
	}
	c.BrandTerms = terms

	if len(c.GenericTerms) == 0 {
		c.GenericTerms = append(StringList(nil), DefaultGenericTerms...)
	}
	if len(c.Allowlist) == 0 {
		c.Allowlist = append(StringList(nil), DefaultAllowlist...)
	}

	if c.DaysBack == 0 {
		c.DaysBack = 60
	}
	if c.PerSubLimit == 0 {
		c.PerSubLimit = 1
	}
	if c.MaxTotalPosts == 0 {
		c.MaxTotalPosts = 10
	}
	if c.PostsPerHour == 0 {
		c.PostsPerHour = 1
	}
	if c.JitterSeconds == nil {
		c.JitterSeconds = intPtr(30)
	}
	if c.DurationMinutes == nil {
		c.DurationMinutes = intPtr(60)
	}

	return c
}

// Validate checks the option ranges; call after WithDefaults
func (c RunConfig) Validate() error {
	switch c.Tone {
	case ToneConcise, ToneFriendly, ToneHelpful:
	default:
		return fmt.Errorf("%w: tone must be concise, friendly or helpful", ErrInvalidConfig)
	}

	switch c.EmojiLevel {
	case EmojiNone, EmojiLow, EmojiNormal:
	default:
		return fmt.Errorf("%w: emoji_level must be none, low or normal", ErrInvalidConfig)
	}

	if c.Discount < 0 || c.Discount > 100 {
		return fmt.Errorf("%w: discount must be between 0 and 100", ErrInvalidConfig)
	}
	if c.DaysBack < 0 || c.PerSubLimit < 0 || c.MaxTotalPosts < 0 {
		return fmt.Errorf("%w: days_back, per_sub_limit and max_total_posts must not be negative", ErrInvalidConfig)
	}
	if c.DaysBack > MaxDaysBack {
		return fmt.Errorf("%w: days_back must be at most %d", ErrInvalidConfig, MaxDaysBack)
	}
	if c.PostsPerHour < 0 || (c.PostsPerHour > 0 && c.PostsPerHour < MinPostsPerHour) {
		return fmt.Errorf("%w: posts_per_hour must be at least %g", ErrInvalidConfig, MinPostsPerHour)
	}
	if c.JitterSeconds != nil && (*c.JitterSeconds < 0 || *c.JitterSeconds > MaxJitterSeconds) {
		return fmt.Errorf("%w: jitter_seconds must be between 0 and %d", ErrInvalidConfig, MaxJitterSeconds)
	}
	if c.DurationMinutes != nil && (*c.DurationMinutes < 0 || *c.DurationMinutes > MaxDurationMinutes) {
		return fmt.Errorf("%w: duration_minutes must be between 0 and %d", ErrInvalidConfig, MaxDurationMinutes)
	}
	if c.StartAt != nil && c.EndAt != nil && !c.EndAt.After(*c.StartAt) {
		return fmt.Errorf("%w: end_at must be after start_at", ErrInvalidConfig)
	}

	return nil
}

// Cadence is the posting period implied by PostsPerHour, kept within [MinCadence, MaxCadence]
func (c RunConfig) Cadence() time.Duration {
	if c.PostsPerHour <= 0 {
		return MinCadence
	}
	if c.PostsPerHour < MinPostsPerHour {
		return MaxCadence
	}
	cadence := time.Duration(int64(3600/c.PostsPerHour)) * time.Second
	if cadence < MinCadence {
		return MinCadence
	}
	return cadence
}

// Jitter is the upper bound of the random delay added to each cadence sleep
func (c RunConfig) Jitter() time.Duration {
	if c.JitterSeconds == nil || *c.JitterSeconds <= 0 {
		return 0
	}
	return time.Duration(min(*c.JitterSeconds, MaxJitterSeconds)) * time.Second
}

// Window resolves the start and end of the run relative to now.
// A zero end means the run is bounded only by stop and caps.
func (c RunConfig) Window(now time.Time) (start, end time.Time) {
	start = now
	if c.StartAt != nil {
		start = *c.StartAt
	}
	switch {
	case c.EndAt != nil:
		end = *c.EndAt
	case c.DurationMinutes != nil && *c.DurationMinutes > 0:
		base := now
		if start.After(now) {
			base = start
		}
		end = base.Add(time.Duration(min(*c.DurationMinutes, MaxDurationMinutes)) * time.Minute)
	}
	return start, end
}

// SeedMessage is the configured message or a synthetic one for the auto-generate path
func (c RunConfig) SeedMessage() string {
	if c.Message != "" {
		return c.Message
	}
	if c.Brand == "" {
		return ""
	}
	return c.Brand + " referral"
}

// DisclaimerEnabled reports whether the referral disclosure line is appended; unset means yes
func (c RunConfig) DisclaimerEnabled() bool {
	return c.AddDisclaimer == nil || *c.AddDisclaimer
}

// MegathreadsOnly reports whether replies are restricted to megathreads; unset means yes
func (c RunConfig) MegathreadsOnly() bool {
	return c.OnlyMegathreads == nil || *c.OnlyMegathreads
}

func containsFold(items []string, value string) bool {
	for _, item := range items {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}

func boolPtr(v bool) *bool { return &v }

func intPtr(v int) *int { return &v }
