package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/palma21/referral-drip-bot/internal/config"
	"github.com/palma21/referral-drip-bot/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/gomail.v2"
)

// Service handles sending notifications via various channels
type Service struct {
	config *config.Config
	client *resty.Client
	send   func(m *gomail.Message) error
}

// Ensure Service implements NotificationInterface
var _ NotificationInterface = (*Service)(nil)

// TeamsMessage represents a Microsoft Teams message
type TeamsMessage struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor,omitempty"`
	Title      string         `json:"title"`
	Text       string         `json:"text"`
	Sections   []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle    string      `json:"activityTitle,omitempty"`
	ActivitySubtitle string      `json:"activitySubtitle,omitempty"`
	ActivityText     string      `json:"activityText,omitempty"`
	Facts            []TeamsFact `json:"facts,omitempty"`
	Markdown         bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// communityCount is one row of the per-community breakdown
type communityCount struct {
	Name  string
	Count int
}

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	s := &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
	}
	s.send = func(m *gomail.Message) error {
		d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
		return d.DialAndSend(m)
	}
	return s
}

// SendRunSummary sends a finished-run summary via configured notification channels
func (s *Service) SendRunSummary(summary *models.RunSummary) error {
	var errors []string

	if s.config.TeamsWebhookURL != "" {
		if err := s.sendToTeams(summary); err != nil {
			logrus.Errorf("Failed to send Teams notification: %v", err)
			errors = append(errors, fmt.Sprintf("Teams: %v", err))
		} else {
			logrus.Info("Sent run summary to Teams")
		}
	}

	if s.config.NotificationEmail != "" {
		if err := s.sendEmail(summary); err != nil {
			logrus.Errorf("Failed to send email notification: %v", err)
			errors = append(errors, fmt.Sprintf("Email: %v", err))
		} else {
			logrus.Info("Sent run summary via email")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (s *Service) sendToTeams(summary *models.RunSummary) error {
	message := buildTeamsMessage(summary)

	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(s.config.TeamsWebhookURL)

	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func buildTeamsMessage(summary *models.RunSummary) *TeamsMessage {
	message := &TeamsMessage{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		ThemeColor: themeColor(summary.Reason),
		Title:      subject(summary),
		Text:       headline(summary),
	}

	message.Sections = append(message.Sections, TeamsSection{
		ActivityTitle: "Summary",
		Facts: []TeamsFact{
			{Name: "Run", Value: summary.RunID},
			{Name: "Account", Value: orNone(summary.User)},
			{Name: "Exit Reason", Value: reasonLabel(summary.Reason)},
			{Name: "Duration", Value: runDuration(summary).String()},
			{Name: "Posts", Value: fmt.Sprintf("%d", summary.TotalPosts)},
			{Name: "Dry-Run Matches", Value: fmt.Sprintf("%d", summary.DryMatches)},
			{Name: "Failures", Value: fmt.Sprintf("%d", summary.Failures)},
		},
		Markdown: true,
	})

	if counts := sortedCounts(summary.PerCommunity); len(counts) > 0 {
		var lines []string
		for _, c := range counts {
			lines = append(lines, fmt.Sprintf("**r/%s**: %d", c.Name, c.Count))
		}
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "Per Community",
			ActivityText:  strings.Join(lines, "\n\n"),
			Markdown:      true,
		})
	}

	return message
}

func (s *Service) sendEmail(summary *models.RunSummary) error {
	htmlBody, err := buildEmailHTML(summary)
	if err != nil {
		return fmt.Errorf("failed to build email HTML: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", subject(summary))
	m.SetBody("text/plain", buildEmailText(summary))
	m.AddAlternative("text/html", htmlBody)

	if err := s.send(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

var emailTemplate = template.Must(template.New("email").Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #{{.Color}}; color: white; padding: 20px; border-radius: 5px; }
        .summary { background-color: #f5f5f5; padding: 15px; margin: 20px 0; border-radius: 5px; }
        td { padding: 4px 12px 4px 0; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.Subject}}</h1>
        <p>{{.Headline}}</p>
    </div>

    <div class="summary">
        <h2>Summary</h2>
        <p><strong>Run:</strong> {{.Summary.RunID}}</p>
        <p><strong>Account:</strong> {{.Account}}</p>
        <p><strong>Exit Reason:</strong> {{.Reason}}</p>
        <p><strong>Duration:</strong> {{.Duration}}</p>
        <p><strong>Posts:</strong> {{.Summary.TotalPosts}}</p>
        <p><strong>Dry-Run Matches:</strong> {{.Summary.DryMatches}}</p>
        <p><strong>Failures:</strong> {{.Summary.Failures}}</p>
    </div>

    {{if .Counts}}
    <h2>Per Community</h2>
    <table>
    {{range .Counts}}
        <tr><td><a href="https://www.reddit.com/r/{{.Name}}" target="_blank">r/{{.Name}}</a></td><td>{{.Count}}</td></tr>
    {{end}}
    </table>
    {{end}}

    <hr>
    <p><small>This summary was generated automatically by the referral drip bot.</small></p>
</body>
</html>
`))

func buildEmailHTML(summary *models.RunSummary) (string, error) {
	data := struct {
		Summary  *models.RunSummary
		Subject  string
		Headline string
		Color    string
		Account  string
		Reason   string
		Duration string
		Counts   []communityCount
	}{
		Summary:  summary,
		Subject:  subject(summary),
		Headline: headline(summary),
		Color:    themeColor(summary.Reason),
		Account:  orNone(summary.User),
		Reason:   reasonLabel(summary.Reason),
		Duration: runDuration(summary).String(),
		Counts:   sortedCounts(summary.PerCommunity),
	}

	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func buildEmailText(summary *models.RunSummary) string {
	var text strings.Builder

	text.WriteString(subject(summary) + "\n")
	text.WriteString(headline(summary) + "\n\n")

	text.WriteString("SUMMARY\n")
	text.WriteString("=======\n")
	text.WriteString(fmt.Sprintf("Run: %s\n", summary.RunID))
	text.WriteString(fmt.Sprintf("Account: %s\n", orNone(summary.User)))
	text.WriteString(fmt.Sprintf("Exit Reason: %s\n", reasonLabel(summary.Reason)))
	text.WriteString(fmt.Sprintf("Duration: %s\n", runDuration(summary)))
	text.WriteString(fmt.Sprintf("Posts: %d\n", summary.TotalPosts))
	text.WriteString(fmt.Sprintf("Dry-Run Matches: %d\n", summary.DryMatches))
	text.WriteString(fmt.Sprintf("Failures: %d\n", summary.Failures))

	if counts := sortedCounts(summary.PerCommunity); len(counts) > 0 {
		text.WriteString("\nPER COMMUNITY\n")
		text.WriteString("=============\n")
		for _, c := range counts {
			text.WriteString(fmt.Sprintf("r/%s: %d\n", c.Name, c.Count))
		}
	}

	text.WriteString("\n---\nThis summary was generated automatically by the referral drip bot.\n")

	return text.String()
}

func subject(summary *models.RunSummary) string {
	brand := summary.Brand
	if brand == "" {
		brand = "Referral"
	}
	mode := ""
	if summary.DryRun {
		mode = " (dry run)"
	}
	return fmt.Sprintf("%s Drip Run%s - %s", cases.Title(language.English).String(brand), mode, reasonLabel(summary.Reason))
}

func headline(summary *models.RunSummary) string {
	return fmt.Sprintf("Run finished at %s after %s with %d posts",
		summary.FinishedAt.UTC().Format("2006-01-02 15:04:05 UTC"), runDuration(summary), summary.TotalPosts)
}

func reasonLabel(reason models.ExitReason) string {
	switch reason {
	case models.ExitStopped:
		return "Stopped"
	case models.ExitTimeExpired:
		return "Time Window Ended"
	case models.ExitCapReached:
		return "Post Cap Reached"
	case models.ExitAuthFailed:
		return "Authentication Failed"
	case models.ExitCancelled:
		return "Cancelled"
	default:
		return string(reason)
	}
}

func themeColor(reason models.ExitReason) string {
	switch reason {
	case models.ExitAuthFailed, models.ExitCancelled:
		return "d13438"
	case models.ExitCapReached:
		return "107c10"
	default:
		return "0078d4"
	}
}

func runDuration(summary *models.RunSummary) time.Duration {
	if summary.FinishedAt.Before(summary.StartedAt) {
		return 0
	}
	return summary.FinishedAt.Sub(summary.StartedAt).Round(time.Second)
}

func sortedCounts(perCommunity map[string]int) []communityCount {
	counts := make([]communityCount, 0, len(perCommunity))
	for name, count := range perCommunity {
		counts = append(counts, communityCount{Name: name, Count: count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Name < counts[j].Name
	})
	return counts
}

func orNone(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
