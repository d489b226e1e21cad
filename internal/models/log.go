package models

import "time"

// Level is the severity of a log entry
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarn    Level = "warn"
	LevelError   Level = "error"
)

// Event is the tagged kind of a log entry
type Event string

const (
	EventAuthOK            Event = "auth_ok"
	EventAuthFailed        Event = "auth_failed"
	EventWaitingForStart   Event = "waiting_for_start"
	EventSkipRulesDisallow Event = "skip_rules_disallow"
	EventSkipNotMegathread Event = "skip_not_megathread"
	EventDryRunMatch       Event = "dry_run_match"
	EventCommentPosted     Event = "comment_posted"
	EventPostFailed        Event = "post_failed"
	EventSleep             Event = "sleep"
	EventStopRequested     Event = "stop_requested"
	EventEndTimeReached    Event = "end_time_reached"
	EventTotalCapReached   Event = "total_cap_reached"
	EventIterationError    Event = "iteration_error"
	EventJobDone           Event = "job_done"

	// discovery warnings
	EventRulesError           Event = "rules_error"
	EventAllowlistSearchError Event = "allowlist_search_error"
	EventSubredditSearchError Event = "subreddit_search_error"
	EventDiscoveryError       Event = "discovery_error"
)

// LogEntry is one append-only record in the run log
type LogEntry struct {
	Timestamp time.Time `json:"ts"`
	Level     Level     `json:"level"`
	Event     Event     `json:"event"`
	Community string    `json:"sub,omitempty"`
	Title     string    `json:"title,omitempty"`
	URL       string    `json:"url,omitempty"`
	ID        string    `json:"comment_id,omitempty"`
	Query     string    `json:"query,omitempty"`
	Error     string    `json:"error,omitempty"`
	Seconds   *int      `json:"seconds,omitempty"`
	User      string    `json:"user,omitempty"`
	Count     *int      `json:"count,omitempty"`
}

// IntPtr is a helper for the optional numeric log fields
func IntPtr(v int) *int {
	return &v
}
