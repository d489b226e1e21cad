package discovery

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/palma21/referral-drip-bot/internal/models"
	"github.com/palma21/referral-drip-bot/internal/platform"
	"github.com/palma21/referral-drip-bot/internal/rules"
)

const (
	allowlistThreadLimit = 50
	discoveryThreadLimit = 25
	communitySearchLimit = 25
	fallbackQuery        = "referral"
)

var titleKeywords = []string{"referral", "referrals", "promo", "code", "coupon", "discount", "megathread"}

// Failure describes one community or query that could not be searched
type Failure struct {
	Event     models.Event
	Community string
	Query     string
	Err       error
}

// Params holds the inputs of one discovery pass
type Params struct {
	BrandTerms   []string
	GenericTerms []string
	Allowlist    []string
	DaysBack     int
	Now          time.Time
}

// ParamsFromConfig maps a run configuration onto discovery inputs
func ParamsFromConfig(cfg models.RunConfig, now time.Time) Params {
	return Params{
		BrandTerms:   cfg.BrandTerms,
		GenericTerms: cfg.GenericTerms,
		Allowlist:    cfg.Allowlist,
		DaysBack:     cfg.DaysBack,
		Now:          now,
	}
}

// Discoverer searches the allow-list first, then communities found by term
type Discoverer struct {
	client  platform.Platform
	onError func(Failure)
}

// New creates a Discoverer; onError receives per-community failures and may be nil
func New(client platform.Platform, onError func(Failure)) *Discoverer {
	if onError == nil {
		onError = func(Failure) {}
	}
	return &Discoverer{client: client, onError: onError}
}

// Candidates returns a lazy, single-use sequence of candidates for one pass.
// A failing community is reported and skipped.
func (d *Discoverer) Candidates(ctx context.Context, p Params) iter.Seq[models.Candidate] {
	return func(yield func(models.Candidate) bool) {
		pass := &pass{
			Discoverer: d,
			ctx:        ctx,
			query:      BuildQuery(append(append([]string(nil), p.BrandTerms...), p.GenericTerms...)),
			cutoff:     p.Now.Add(-time.Duration(min(p.DaysBack, models.MaxDaysBack)) * 24 * time.Hour),
			seen:       make(map[string]bool),
			searched:   make(map[string]bool),
			yield:      yield,
		}

		for _, community := range p.Allowlist {
			if ctx.Err() != nil {
				return
			}
			if !pass.searchCommunity(community, allowlistThreadLimit, models.EventAllowlistSearchError) {
				return
			}
		}

		for _, term := range uniqueTerms(p.BrandTerms, p.GenericTerms) {
			if ctx.Err() != nil {
				return
			}
			communities, err := d.client.SearchCommunities(ctx, term, communitySearchLimit)
			if err != nil {
				d.onError(Failure{Event: models.EventDiscoveryError, Query: term, Err: err})
				continue
			}
			for _, community := range communities {
				if containsFold(p.Allowlist, community) {
					continue
				}
				if !pass.searchCommunity(community, discoveryThreadLimit, models.EventSubredditSearchError) {
					return
				}
			}
		}
	}
}

type pass struct {
	*Discoverer
	ctx      context.Context
	query    string
	cutoff   time.Time
	seen     map[string]bool
	searched map[string]bool
	yield    func(models.Candidate) bool
}

// searchCommunity yields the community's matching threads and reports
// whether the consumer wants more.
func (p *pass) searchCommunity(community string, limit int, failure models.Event) bool {
	lower := strings.ToLower(community)
	if p.searched[lower] {
		return true
	}
	p.searched[lower] = true

	verdict := p.verdict(community)

	threads, err := p.client.SearchThreads(p.ctx, community, platform.ThreadQuery{
		Query:      p.query,
		Sort:       "new",
		TimeFilter: "year",
		Limit:      limit,
	})
	if err != nil {
		p.onError(Failure{Event: failure, Community: community, Err: err})
		return true
	}

	for _, thread := range threads {
		if thread.CreatedAt.Before(p.cutoff) {
			continue
		}
		key := community + "_" + thread.ID
		if p.seen[key] {
			continue
		}
		p.seen[key] = true

		if !HasTitleKeyword(thread.Title) {
			continue
		}

		candidate := models.Candidate{
			Community:      community,
			ThreadID:       thread.ID,
			Title:          thread.Title,
			Permalink:      thread.Permalink,
			CreatedAt:      thread.CreatedAt,
			Disallowed:     verdict.Disallowed,
			MegathreadOnly: verdict.MegathreadOnly,
		}
		if !p.yield(candidate) {
			return false
		}
	}
	return true
}

// verdict evaluates the community's rules; a fetch failure is reported and
// treated as allowed.
func (p *pass) verdict(community string) rules.Verdict {
	communityRules, description, err := p.client.CommunityRules(p.ctx, community)
	if err != nil {
		p.onError(Failure{Event: models.EventRulesError, Community: community, Err: err})
		return rules.Verdict{}
	}
	return rules.Evaluate(communityRules, description)
}

// BuildQuery ORs every non-empty term as a title filter
func BuildQuery(terms []string) string {
	var filters []string
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			filters = append(filters, fmt.Sprintf("title:%q", t))
		}
	}
	if len(filters) == 0 {
		return fallbackQuery
	}
	return strings.Join(filters, " OR ")
}

// HasTitleKeyword reports whether a title looks referral-related
func HasTitleKeyword(title string) bool {
	t := strings.ToLower(title)
	for _, k := range titleKeywords {
		if strings.Contains(t, k) {
			return true
		}
	}
	return false
}

func uniqueTerms(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, term := range list {
			if term == "" || seen[term] {
				continue
			}
			seen[term] = true
			out = append(out, term)
		}
	}
	return out
}

func containsFold(items []string, value string) bool {
	for _, item := range items {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}
