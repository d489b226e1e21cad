package storage

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/palma21/referral-drip-bot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockStorage is a mock implementation of the storage interface
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Store(obj Object) error {
	args := m.Called(obj)
	return args.Error(0)
}

func (m *MockStorage) Retrieve(filename string) ([]byte, error) {
	args := m.Called(filename)
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockStorage) List(prefix string) ([]string, error) {
	args := m.Called(prefix)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStorage) Delete(filename string) error {
	args := m.Called(filename)
	return args.Error(0)
}

func testSummary() *models.RunSummary {
	return &models.RunSummary{
		RunID:        "abc",
		StartedAt:    time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		Reason:       models.ExitTimeExpired,
		TotalPosts:   2,
		PerCommunity: map[string]int{"ReferralCodes": 2},
	}
}

func TestRunMetadata(t *testing.T) {
	summary := testSummary()
	summary.DryRun = true

	assert.Equal(t, map[string]string{
		"runid":  "abc",
		"kind":   "log",
		"reason": string(models.ExitTimeExpired),
		"dryrun": "true",
	}, runMetadata(summary, "log"))
}

func TestRunName(t *testing.T) {
	assert.Equal(t, "runs/20260304T050607-abc", RunName(testSummary()))
}

func TestRunArchive_ArchiveRun(t *testing.T) {
	store := &MockStorage{}
	entries := []models.LogEntry{{Level: models.LevelSuccess, Event: models.EventCommentPosted, Community: "ReferralCodes"}}

	store.On("Store", mock.MatchedBy(func(obj Object) bool {
		data := string(obj.Data)
		return obj.Name == "runs/20260304T050607-abc.csv" &&
			obj.ContentType == "text/csv" &&
			obj.Metadata["kind"] == "log" &&
			strings.HasPrefix(data, "ts,level,event") && strings.Contains(data, "comment_posted,ReferralCodes")
	})).Return(nil)
	store.On("Store", mock.MatchedBy(func(obj Object) bool {
		var summary models.RunSummary
		return obj.Name == "runs/20260304T050607-abc.json" &&
			obj.ContentType == "application/json" &&
			obj.Metadata["kind"] == "summary" &&
			json.Unmarshal(obj.Data, &summary) == nil && summary.TotalPosts == 2
	})).Return(nil)

	archive := NewRunArchive(store, 0)
	require.NoError(t, archive.ArchiveRun(testSummary(), entries))

	store.AssertExpectations(t)
	store.AssertNotCalled(t, "List", mock.Anything)
}

func TestRunArchive_ArchiveRunStoreFailure(t *testing.T) {
	store := &MockStorage{}
	store.On("Store", mock.Anything).Return(errors.New("unavailable"))

	err := NewRunArchive(store, 0).ArchiveRun(testSummary(), nil)
	assert.Error(t, err)
	store.AssertNumberOfCalls(t, "Store", 1)
}

func TestRunArchive_Prune(t *testing.T) {
	store := &MockStorage{}
	store.On("Store", mock.Anything).Return(nil)
	store.On("List", "runs/").Return([]string{
		"runs/20260101T000000-old.csv",
		"runs/20260101T000000-old.json",
		"runs/20260304T050607-abc.csv",
		"runs/20260304T050607-abc.json",
		"runs/20260201T000000-mid.csv",
	}, nil)
	store.On("Delete", "runs/20260101T000000-old.csv").Return(nil)
	store.On("Delete", "runs/20260101T000000-old.json").Return(nil)

	require.NoError(t, NewRunArchive(store, 2).ArchiveRun(testSummary(), nil))

	store.AssertExpectations(t)
	store.AssertNumberOfCalls(t, "Delete", 2)
}

func TestRunArchive_ListAndFetch(t *testing.T) {
	store := &MockStorage{}
	store.On("List", "runs/").Return([]string{
		"runs/20260101T000000-old.csv",
		"runs/20260101T000000-old.json",
		"runs/20260304T050607-abc.csv",
	}, nil)
	store.On("Retrieve", "runs/20260304T050607-abc.csv").Return([]byte("ts,level\n"), nil)

	archive := NewRunArchive(store, 0)

	runs, err := archive.ListRuns()
	require.NoError(t, err)
	assert.Equal(t, []string{"20260304T050607-abc", "20260101T000000-old"}, runs)

	data, err := archive.FetchRun("20260304T050607-abc")
	require.NoError(t, err)
	assert.Equal(t, "ts,level\n", string(data))

	_, err = archive.FetchRun("../secrets")
	assert.Error(t, err)
}
