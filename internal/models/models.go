package models

import "time"

// Candidate is a thread discovered as a possible reply target
type Candidate struct {
	Community      string    `json:"community"`
	ThreadID       string    `json:"thread_id"`
	Title          string    `json:"title"`
	Permalink      string    `json:"permalink"`
	CreatedAt      time.Time `json:"created_at"`
	Disallowed     bool      `json:"disallowed"`
	MegathreadOnly bool      `json:"megathread_only"`
}

// Key returns the dedup key for the candidate within a run
func (c Candidate) Key() string {
	return c.Community + "_" + c.ThreadID
}

// URL returns the absolute link to the thread
func (c Candidate) URL() string {
	return PermalinkURL(c.Permalink)
}

// PermalinkURL turns a platform-relative permalink into an absolute URL
func PermalinkURL(permalink string) string {
	if permalink == "" {
		return ""
	}
	return "https://www.reddit.com" + permalink
}

// Preset is a named bundle of discovery settings
type Preset struct {
	Brand        string   `json:"brand" yaml:"brand"`
	BrandTerms   []string `json:"brand_terms" yaml:"brand_terms"`
	Allowlist    []string `json:"allowlist" yaml:"allowlist"`
	GenericTerms []string `json:"generic_terms" yaml:"generic_terms"`
}

// ExitReason records why a worker stopped
type ExitReason string

const (
	ExitStopped     ExitReason = "stopped"
	ExitTimeExpired ExitReason = "time_expired"
	ExitCapReached  ExitReason = "cap_reached"
	ExitAuthFailed  ExitReason = "auth_failed"
	ExitCancelled   ExitReason = "cancelled"
)

// RunSummary describes a finished run
type RunSummary struct {
	RunID        string         `json:"run_id"`
	Brand        string         `json:"brand"`
	User         string         `json:"user"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
	Reason       ExitReason     `json:"reason"`
	DryRun       bool           `json:"dry_run"`
	TotalPosts   int            `json:"total_posts"`
	PerCommunity map[string]int `json:"per_community"`
	DryMatches   int            `json:"dry_matches"`
	Failures     int            `json:"failures"`
}

// Status is a point-in-time snapshot of the run state
type Status struct {
	RunID         string         `json:"run_id,omitempty"`
	Running       bool           `json:"running"`
	StopRequested bool           `json:"stop_requested"`
	Logs          []LogEntry     `json:"logs"`
	Summary       map[string]int `json:"summary"`
	User          string         `json:"user,omitempty"`
	LoggedIn      bool           `json:"logged_in"`
}
