// Package platformtest provides an in-memory platform for tests.
package platformtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/palma21/referral-drip-bot/internal/platform"
	"github.com/palma21/referral-drip-bot/internal/rules"
)

// Community is the fake state of one community
type Community struct {
	Rules       []rules.Rule
	Description string
	RulesErr    error
	Threads     []platform.Thread
	SearchErr   error
}

// PostedReply records a reply submitted through the fake
type PostedReply struct {
	ThreadID string
	Text     string
}

// Fake implements platform.Platform from fixed data
type Fake struct {
	Identity    string
	IdentityErr error
	Communities map[string]*Community
	// Search maps a discovery term to community names
	Search    map[string][]string
	SearchErr map[string]error
	// ReplyErr, when set, decides per thread whether a reply fails
	ReplyErr func(threadID string) error
	// OnSearchThreads, when set, runs before every thread search and may panic
	OnSearchThreads func(community string)

	mu           sync.Mutex
	replies      []PostedReply
	threadCalls  map[string]int
	queries      []platform.ThreadQuery
	nextReplyNum int
}

var _ platform.Platform = (*Fake)(nil)

func (f *Fake) Me(ctx context.Context) (string, error) {
	if f.IdentityErr != nil {
		return "", f.IdentityErr
	}
	return f.Identity, nil
}

func (f *Fake) CommunityRules(ctx context.Context, community string) ([]rules.Rule, string, error) {
	c, ok := f.Communities[community]
	if !ok {
		return nil, "", fmt.Errorf("community %s not found", community)
	}
	if c.RulesErr != nil {
		return nil, "", c.RulesErr
	}
	return c.Rules, c.Description, nil
}

func (f *Fake) SearchThreads(ctx context.Context, community string, query platform.ThreadQuery) ([]platform.Thread, error) {
	f.mu.Lock()
	if f.threadCalls == nil {
		f.threadCalls = make(map[string]int)
	}
	f.threadCalls[community]++
	f.queries = append(f.queries, query)
	f.mu.Unlock()

	if f.OnSearchThreads != nil {
		f.OnSearchThreads(community)
	}

	c, ok := f.Communities[community]
	if !ok {
		return nil, fmt.Errorf("community %s not found", community)
	}
	if c.SearchErr != nil {
		return nil, c.SearchErr
	}
	threads := c.Threads
	if query.Limit > 0 && len(threads) > query.Limit {
		threads = threads[:query.Limit]
	}
	return threads, nil
}

func (f *Fake) SearchCommunities(ctx context.Context, term string, limit int) ([]string, error) {
	if err := f.SearchErr[term]; err != nil {
		return nil, err
	}
	names := f.Search[term]
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

func (f *Fake) Reply(ctx context.Context, threadID, text string) (platform.Reply, error) {
	if f.ReplyErr != nil {
		if err := f.ReplyErr(threadID); err != nil {
			return platform.Reply{}, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, PostedReply{ThreadID: threadID, Text: text})
	f.nextReplyNum++
	id := fmt.Sprintf("c%d", f.nextReplyNum)
	return platform.Reply{ID: id, Permalink: fmt.Sprintf("/comments/%s/_/%s/", threadID, id)}, nil
}

// Replies returns every reply posted so far
func (f *Fake) Replies() []PostedReply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PostedReply(nil), f.replies...)
}

// ThreadSearches returns how often a community's threads were searched
func (f *Fake) ThreadSearches(community string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.threadCalls[community]
}

// Queries returns every thread query issued
func (f *Fake) Queries() []platform.ThreadQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.ThreadQuery(nil), f.queries...)
}
