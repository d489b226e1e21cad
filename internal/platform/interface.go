package platform

import (
	"context"
	"errors"
	"time"

	"github.com/palma21/referral-drip-bot/internal/rules"
)

// ErrUnauthorized marks an expired, revoked or otherwise invalid credential
var ErrUnauthorized = errors.New("platform credential rejected")

// Thread is a postable discussion item within a community
type Thread struct {
	ID        string
	Title     string
	Permalink string
	CreatedAt time.Time
}

// ThreadQuery narrows a community search
type ThreadQuery struct {
	Query      string
	Sort       string
	TimeFilter string
	Limit      int
}

// Reply identifies content created by a reply
type Reply struct {
	ID        string
	Permalink string
}

// Platform is the authenticated client contract the worker consumes
type Platform interface {
	Me(ctx context.Context) (string, error)
	CommunityRules(ctx context.Context, community string) ([]rules.Rule, string, error)
	SearchThreads(ctx context.Context, community string, query ThreadQuery) ([]Thread, error)
	SearchCommunities(ctx context.Context, term string, limit int) ([]string, error)
	Reply(ctx context.Context, threadID, text string) (Reply, error)
}

// Factory builds an authenticated client from a durable refresh credential
type Factory func(refreshToken string) Platform
