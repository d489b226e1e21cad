package notifications

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/palma21/referral-drip-bot/internal/config"
	"github.com/palma21/referral-drip-bot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

func testSummary() *models.RunSummary {
	started := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return &models.RunSummary{
		RunID:        "run-1",
		Brand:        "uber eats",
		User:         "drip_user",
		StartedAt:    started,
		FinishedAt:   started.Add(90 * time.Minute),
		Reason:       models.ExitCapReached,
		TotalPosts:   3,
		PerCommunity: map[string]int{"beermoney": 1, "ReferralCodes": 2},
		Failures:     1,
	}
}

func TestBuildTeamsMessage(t *testing.T) {
	message := buildTeamsMessage(testSummary())

	assert.Equal(t, "MessageCard", message.Type)
	assert.Equal(t, "107c10", message.ThemeColor)
	assert.Equal(t, "Uber Eats Drip Run - Post Cap Reached", message.Title)
	require.Len(t, message.Sections, 2)
	assert.Contains(t, message.Sections[0].Facts, TeamsFact{Name: "Duration", Value: "1h30m0s"})
	assert.Contains(t, message.Sections[0].Facts, TeamsFact{Name: "Posts", Value: "3"})
	assert.Equal(t, "**r/ReferralCodes**: 2\n\n**r/beermoney**: 1", message.Sections[1].ActivityText)
}

func TestBuildTeamsMessage_NoPosts(t *testing.T) {
	summary := &models.RunSummary{RunID: "run-2", Reason: models.ExitAuthFailed, DryRun: true}

	message := buildTeamsMessage(summary)

	assert.Equal(t, "d13438", message.ThemeColor)
	assert.Equal(t, "Referral Drip Run (dry run) - Authentication Failed", message.Title)
	assert.Len(t, message.Sections, 1)
}

func TestBuildEmail(t *testing.T) {
	html, err := buildEmailHTML(testSummary())
	require.NoError(t, err)
	assert.Contains(t, html, "r/ReferralCodes")
	assert.Contains(t, html, "Post Cap Reached")

	text := buildEmailText(testSummary())
	assert.Contains(t, text, "Account: drip_user")
	assert.Contains(t, text, "r/ReferralCodes: 2\nr/beermoney: 1\n")
}

func TestSendRunSummary_Teams(t *testing.T) {
	var received TeamsMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := NewService(&config.Config{TeamsWebhookURL: server.URL})
	require.NoError(t, s.SendRunSummary(testSummary()))
	assert.Equal(t, "Uber Eats Drip Run - Post Cap Reached", received.Title)
}

func TestSendRunSummary_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	s := NewService(&config.Config{
		TeamsWebhookURL:   server.URL,
		NotificationEmail: "ops@example.com",
		SMTPUsername:      "bot@example.com",
	})
	var sent *gomail.Message
	s.send = func(m *gomail.Message) error {
		sent = m
		return errors.New("connection refused")
	}

	err := s.SendRunSummary(testSummary())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Teams: Teams webhook returned status 400")
	assert.Contains(t, err.Error(), "Email: failed to send email")
	require.NotNil(t, sent)
	assert.Equal(t, []string{"ops@example.com"}, sent.GetHeader("To"))
}

func TestSendRunSummary_NoChannels(t *testing.T) {
	s := NewService(&config.Config{})
	assert.NoError(t, s.SendRunSummary(testSummary()))
}
