package drip

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/palma21/referral-drip-bot/internal/copywriter"
	"github.com/palma21/referral-drip-bot/internal/discovery"
	"github.com/palma21/referral-drip-bot/internal/models"
	"github.com/palma21/referral-drip-bot/internal/platform"
	"github.com/palma21/referral-drip-bot/internal/rules"
	"github.com/sirupsen/logrus"
)

const (
	// DrySpellBackoff is the pause when no candidate survives filtering
	DrySpellBackoff = 5 * time.Second
	startPollPeriod = time.Second
)

// worker runs one drip job; all fields are owned by its goroutine
type worker struct {
	*Service

	runID  string
	cfg    models.RunConfig
	client platform.Platform

	rng        *rand.Rand
	renderer   *copywriter.Renderer
	discoverer *discovery.Discoverer

	startedAt    time.Time
	user         string
	posted       int
	dryMatches   int
	failures     int
	perCommunity map[string]int
	targeted     map[string]bool
}

func (w *worker) run() {
	w.startedAt = w.state.StartedAt()
	w.perCommunity = make(map[string]int)
	w.targeted = make(map[string]bool)

	seed := w.startedAt.UnixNano()
	if w.cfg.RandomSeed != nil {
		seed = *w.cfg.RandomSeed
	}
	w.rng = rand.New(rand.NewSource(seed))
	w.renderer = copywriter.NewRenderer(w.rng)
	w.discoverer = discovery.New(w.client, w.reportFailure)

	reason := models.ExitCancelled
	defer func() {
		if r := recover(); r != nil {
			w.state.Append(models.LogEntry{Level: models.LevelError, Event: models.EventIterationError,
				Error: fmt.Sprintf("%v", r)})
		}
		w.finish(reason)
	}()

	user, err := w.client.Me(w.ctx)
	if err != nil {
		entry := models.LogEntry{Level: models.LevelError, Event: models.EventAuthFailed, Error: err.Error()}
		if errors.Is(err, platform.ErrUnauthorized) {
			entry.Error = "No valid refresh token: " + err.Error()
		}
		w.state.Append(entry)
		reason = models.ExitAuthFailed
		return
	}
	w.user = user
	w.state.SetUser(user)
	w.state.Append(models.LogEntry{Level: models.LevelInfo, Event: models.EventAuthOK, User: user})

	start, end := w.cfg.Window(w.startedAt)
	announcedWait := false

	for {
		if w.state.StopRequested() {
			w.state.Append(models.LogEntry{Level: models.LevelWarn, Event: models.EventStopRequested})
			reason = models.ExitStopped
			return
		}
		if w.ctx.Err() != nil {
			reason = models.ExitCancelled
			return
		}

		now := w.now()
		if now.Before(start) {
			if !announcedWait {
				w.state.Append(models.LogEntry{Level: models.LevelInfo, Event: models.EventWaitingForStart,
					Seconds: models.IntPtr(int(start.Sub(now).Seconds()))})
				announcedWait = true
			}
			w.pause(startPollPeriod)
			continue
		}
		if !end.IsZero() && now.After(end) {
			w.state.Append(models.LogEntry{Level: models.LevelInfo, Event: models.EventEndTimeReached})
			reason = models.ExitTimeExpired
			return
		}

		if w.iterate() {
			reason = models.ExitCapReached
			return
		}
	}
}

// iterate performs one discover-choose-post-sleep cycle and reports whether
// the total cap was reached. A panic inside the cycle is logged and absorbed.
func (w *worker) iterate() (capReached bool) {
	defer func() {
		if r := recover(); r != nil {
			w.state.Append(models.LogEntry{Level: models.LevelError, Event: models.EventIterationError,
				Error: fmt.Sprintf("%v", r)})
			capReached = false
			w.pause(DrySpellBackoff)
		}
	}()

	candidates := w.collect()
	if len(candidates) == 0 {
		logrus.Debugf("Run %s: no eligible candidates, backing off", w.runID)
		w.pause(DrySpellBackoff)
		return false
	}

	target := candidates[w.rng.Intn(len(candidates))]
	w.targeted[target.Key()] = true

	msg := w.renderer.Render(copywriter.InputFromConfig(w.cfg))

	if w.cfg.DryRun {
		w.dryMatches++
		w.state.Append(models.LogEntry{Level: models.LevelInfo, Event: models.EventDryRunMatch,
			Community: target.Community, Title: target.Title, URL: target.URL()})
	} else {
		w.post(target, msg)
		if w.posted >= w.cfg.MaxTotalPosts {
			w.state.Append(models.LogEntry{Level: models.LevelInfo, Event: models.EventTotalCapReached,
				Count: models.IntPtr(w.posted)})
			return true
		}
	}

	delay := w.cfg.Cadence()
	if jitter := int(w.cfg.Jitter() / time.Second); jitter > 0 {
		delay += time.Duration(w.rng.Intn(jitter+1)) * time.Second
	}
	w.state.Append(models.LogEntry{Level: models.LevelInfo, Event: models.EventSleep,
		Seconds: models.IntPtr(int(delay / time.Second))})
	w.pause(delay)

	return false
}

// collect runs a full discovery pass and keeps the candidates that pass the
// rule, megathread, per-community cap and already-targeted filters.
func (w *worker) collect() []models.Candidate {
	var eligible []models.Candidate

	params := discovery.ParamsFromConfig(w.cfg, w.now())
	for c := range w.discoverer.Candidates(w.ctx, params) {
		if c.Disallowed {
			w.state.Append(models.LogEntry{Level: models.LevelInfo, Event: models.EventSkipRulesDisallow,
				Community: c.Community, Title: c.Title})
			continue
		}
		if (w.cfg.MegathreadsOnly() || c.MegathreadOnly) && !rules.IsMegathreadTitle(c.Title) {
			w.state.Append(models.LogEntry{Level: models.LevelInfo, Event: models.EventSkipNotMegathread,
				Community: c.Community, Title: c.Title})
			continue
		}
		if w.perCommunity[c.Community] >= w.cfg.PerSubLimit {
			continue
		}
		if w.targeted[c.Key()] {
			continue
		}
		eligible = append(eligible, c)
	}

	return eligible
}

func (w *worker) post(target models.Candidate, msg string) {
	reply, err := w.client.Reply(w.ctx, target.ThreadID, msg)
	if err != nil {
		w.failures++
		w.state.Append(models.LogEntry{Level: models.LevelError, Event: models.EventPostFailed,
			Community: target.Community, Title: target.Title, URL: target.URL(), Error: err.Error()})
		return
	}

	w.posted++
	w.perCommunity[target.Community]++
	w.state.IncrementCommunity(target.Community)
	w.state.Append(models.LogEntry{Level: models.LevelSuccess, Event: models.EventCommentPosted,
		Community: target.Community, Title: target.Title, ID: reply.ID, URL: models.PermalinkURL(reply.Permalink)})
}

func (w *worker) reportFailure(f discovery.Failure) {
	entry := models.LogEntry{Level: models.LevelWarn, Event: f.Event, Community: f.Community, Query: f.Query}
	if f.Err != nil {
		entry.Error = f.Err.Error()
	}
	w.state.Append(entry)
}

func (w *worker) pause(d time.Duration) {
	w.sleep(w.ctx, d, w.state.StopSignal())
}

// finish is the terminal cleanup; it runs for every exit reason
func (w *worker) finish(reason models.ExitReason) {
	w.state.Append(models.LogEntry{Level: models.LevelInfo, Event: models.EventJobDone, Count: models.IntPtr(w.posted)})
	entries := w.state.Logs()
	w.state.Finish()

	summary := &models.RunSummary{
		RunID:        w.runID,
		Brand:        w.cfg.Brand,
		User:         w.user,
		StartedAt:    w.startedAt,
		FinishedAt:   w.now(),
		Reason:       reason,
		DryRun:       w.cfg.DryRun,
		TotalPosts:   w.posted,
		PerCommunity: w.perCommunity,
		DryMatches:   w.dryMatches,
		Failures:     w.failures,
	}
	logrus.Infof("Drip run %s finished (%s): %d posts, %d dry-run matches, %d failures",
		w.runID, reason, w.posted, w.dryMatches, w.failures)

	if w.archiver != nil {
		if err := w.archiver.ArchiveRun(summary, entries); err != nil {
			logrus.Errorf("Failed to archive run %s: %v", w.runID, err)
		}
	}
	if w.notifier != nil {
		if err := w.notifier.SendRunSummary(summary); err != nil {
			logrus.Errorf("Failed to send summary for run %s: %v", w.runID, err)
		}
	}
}
