package notifications

import "github.com/palma21/referral-drip-bot/internal/models"

// NotificationInterface defines the contract for notification services
type NotificationInterface interface {
	SendRunSummary(summary *models.RunSummary) error
}
