package state

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/palma21/referral-drip-bot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunState_TryBeginIsExclusive(t *testing.T) {
	s := New()

	runID, ok := s.TryBegin()
	require.True(t, ok)
	assert.NotEmpty(t, runID)
	assert.True(t, s.Running())

	_, ok = s.TryBegin()
	assert.False(t, ok, "second worker must be rejected")

	s.Finish()
	nextID, ok := s.TryBegin()
	require.True(t, ok)
	assert.NotEqual(t, runID, nextID)
}

func TestRunState_StartedAtFollowsClock(t *testing.T) {
	s := New()
	first := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return first })

	s.TryBegin()
	assert.Equal(t, first, s.StartedAt())

	s.Finish()
	second := first.Add(time.Hour)
	s.SetClock(func() time.Time { return second })
	s.TryBegin()
	assert.Equal(t, second, s.StartedAt())
}

func TestRunState_ConcurrentBeginClaimsOnce(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := s.TryBegin(); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestRunState_BeginResetsRun(t *testing.T) {
	s := New()
	s.TryBegin()
	s.Append(models.LogEntry{Level: models.LevelInfo, Event: models.EventSleep})
	s.IncrementCommunity("ReferralCodes")
	s.RequestStop()
	s.Finish()

	s.TryBegin()
	snap := s.Snapshot()
	assert.Empty(t, snap.Logs)
	assert.Empty(t, snap.Summary)
	assert.False(t, snap.StopRequested)

	select {
	case <-s.StopSignal():
		t.Fatal("stop signal must be re-armed for a new run")
	default:
	}
}

func TestRunState_RequestStop(t *testing.T) {
	s := New()
	s.TryBegin()

	s.RequestStop()
	s.RequestStop()

	assert.True(t, s.StopRequested())
	select {
	case <-s.StopSignal():
	case <-time.After(time.Second):
		t.Fatal("stop signal not closed")
	}
}

func TestRunState_RequestStopWithoutRun(t *testing.T) {
	s := New()
	assert.NotPanics(t, s.RequestStop)
	assert.True(t, s.StopRequested())
}

func TestRunState_LogCap(t *testing.T) {
	s := New()
	for i := 1; i <= MaxLogEntries+1; i++ {
		s.Append(models.LogEntry{Level: models.LevelInfo, Event: models.EventSleep, Seconds: models.IntPtr(i)})
	}

	logs := s.Logs()
	require.Len(t, logs, MaxLogEntries)
	assert.Equal(t, 2, *logs[0].Seconds, "oldest entry evicted")
	assert.Equal(t, MaxLogEntries+1, *logs[len(logs)-1].Seconds, "newest entry kept")
}

func TestRunState_AppendStampsTime(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := New()
	s.SetClock(func() time.Time { return fixed })

	s.Append(models.LogEntry{Event: models.EventJobDone})
	assert.Equal(t, fixed, s.Logs()[0].Timestamp)
}

func TestRunState_SnapshotIsCopy(t *testing.T) {
	s := New()
	s.TryBegin()
	s.IncrementCommunity("a")
	s.Append(models.LogEntry{Event: models.EventAuthOK})

	snap := s.Snapshot()
	snap.Summary["a"] = 99
	snap.Logs[0].Event = models.EventAuthFailed

	again := s.Snapshot()
	assert.Equal(t, 1, again.Summary["a"])
	assert.Equal(t, models.EventAuthOK, again.Logs[0].Event)
}

func TestRunState_ConcurrentAppendAndRead(t *testing.T) {
	s := New()
	s.TryBegin()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s.Append(models.LogEntry{Event: models.EventSleep, Title: fmt.Sprintf("%d-%d", w, i)})
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = s.Snapshot()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, s.Logs(), 800)
}

func TestWriteCSV(t *testing.T) {
	ts := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	entries := []models.LogEntry{
		{Timestamp: ts, Level: models.LevelSuccess, Event: models.EventCommentPosted, Community: "ReferralCodes",
			Title: "Megathread, October", URL: "https://www.reddit.com/r/x/1", ID: "c1"},
		{Timestamp: ts, Level: models.LevelInfo, Event: models.EventSleep, Seconds: models.IntPtr(3612)},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, entries))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, []string{"2026-05-06 07:08:09", "success", "comment_posted", "ReferralCodes",
		"Megathread, October", "https://www.reddit.com/r/x/1", "c1", "", "", "", ""}, rows[1])
	assert.Equal(t, "3612", rows[2][8])
	assert.Equal(t, "", rows[2][10])
}
