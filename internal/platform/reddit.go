package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/palma21/referral-drip-bot/internal/rules"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// Scopes requested during authorization
var Scopes = []string{"identity", "submit", "read", "modconfig"}

// RedditOptions configures a RedditClient
type RedditOptions struct {
	OAuth        *oauth2.Config
	RefreshToken string
	APIBase      string
	UserAgent    string
	Timeout      time.Duration
}

// RedditClient implements Platform against the Reddit OAuth API
type RedditClient struct {
	client *resty.Client
}

// Ensure RedditClient implements Platform
var _ Platform = (*RedditClient)(nil)

type redditListing struct {
	Data struct {
		Children []struct {
			Kind string          `json:"kind"`
			Data json.RawMessage `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Subreddit string  `json:"subreddit"`
	Permalink string  `json:"permalink"`
	Created   float64 `json:"created_utc"`
}

type redditSubreddit struct {
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

type redditRules struct {
	Rules []rules.Rule `json:"rules"`
}

type redditAbout struct {
	Data redditSubreddit `json:"data"`
}

type redditCommentResponse struct {
	JSON struct {
		Errors [][]interface{} `json:"errors"`
		Data   struct {
			Things []struct {
				Data struct {
					ID        string `json:"id"`
					Permalink string `json:"permalink"`
				} `json:"data"`
			} `json:"things"`
		} `json:"data"`
	} `json:"json"`
}

// OAuthConfig builds the authorization-code configuration for Reddit
func OAuthConfig(clientID, clientSecret, redirectURI, authBase string) *oauth2.Config {
	authBase = strings.TrimRight(authBase, "/")
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   authBase + "/api/v1/authorize",
			TokenURL:  authBase + "/api/v1/access_token",
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// WithUserAgent returns a context whose oauth2 token requests carry userAgent
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, &http.Client{
		Timeout:   30 * time.Second,
		Transport: &userAgentTransport{userAgent: userAgent, base: http.DefaultTransport},
	})
}

type userAgentTransport struct {
	userAgent string
	base      http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(req)
}

// NewRedditClient creates a client that refreshes its access token on demand
func NewRedditClient(opts RedditOptions) *RedditClient {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	ctx := WithUserAgent(context.Background(), opts.UserAgent)
	tokenSource := opts.OAuth.TokenSource(ctx, &oauth2.Token{RefreshToken: opts.RefreshToken})
	httpClient := oauth2.NewClient(ctx, tokenSource)

	return &RedditClient{
		client: resty.NewWithClient(httpClient).
			SetBaseURL(strings.TrimRight(opts.APIBase, "/")).
			SetTimeout(opts.Timeout).
			SetHeader("User-Agent", opts.UserAgent).
			SetQueryParam("raw_json", "1"),
	}
}

// NewRedditFactory returns a Factory bound to fixed OAuth settings
func NewRedditFactory(oauthCfg *oauth2.Config, apiBase, userAgent string) Factory {
	return func(refreshToken string) Platform {
		return NewRedditClient(RedditOptions{
			OAuth:        oauthCfg,
			RefreshToken: refreshToken,
			APIBase:      apiBase,
			UserAgent:    userAgent,
		})
	}
}

// Me returns the account name behind the refresh token
func (r *RedditClient) Me(ctx context.Context) (string, error) {
	body, err := r.get(ctx, "/api/v1/me", nil)
	if err != nil {
		return "", err
	}

	var me struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &me); err != nil {
		return "", fmt.Errorf("failed to decode identity: %w", err)
	}
	if me.Name == "" {
		return "", fmt.Errorf("%w: identity response without a name", ErrUnauthorized)
	}
	return me.Name, nil
}

// CommunityRules fetches the rule list and public description of a subreddit
func (r *RedditClient) CommunityRules(ctx context.Context, community string) ([]rules.Rule, string, error) {
	body, err := r.get(ctx, fmt.Sprintf("/r/%s/about/rules", url.PathEscape(community)), nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch rules for %s: %w", community, err)
	}
	var rulesResp redditRules
	if err := json.Unmarshal(body, &rulesResp); err != nil {
		return nil, "", fmt.Errorf("failed to decode rules for %s: %w", community, err)
	}

	body, err = r.get(ctx, fmt.Sprintf("/r/%s/about", url.PathEscape(community)), nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch description for %s: %w", community, err)
	}
	var about redditAbout
	if err := json.Unmarshal(body, &about); err != nil {
		return nil, "", fmt.Errorf("failed to decode description for %s: %w", community, err)
	}

	return rulesResp.Rules, about.Data.Description, nil
}

// SearchThreads runs a restricted search inside one subreddit
func (r *RedditClient) SearchThreads(ctx context.Context, community string, query ThreadQuery) ([]Thread, error) {
	params := map[string]string{
		"q":           query.Query,
		"restrict_sr": "1",
		"sort":        query.Sort,
		"t":           query.TimeFilter,
		"limit":       strconv.Itoa(query.Limit),
	}
	body, err := r.get(ctx, fmt.Sprintf("/r/%s/search", url.PathEscape(community)), params)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", community, err)
	}

	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("failed to decode search results for %s: %w", community, err)
	}

	threads := make([]Thread, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		var post redditPost
		if err := json.Unmarshal(child.Data, &post); err != nil {
			logrus.Debugf("Skipping undecodable post in %s: %v", community, err)
			continue
		}
		threads = append(threads, Thread{
			ID:        post.ID,
			Title:     post.Title,
			Permalink: post.Permalink,
			CreatedAt: time.Unix(int64(post.Created), 0),
		})
	}

	return threads, nil
}

// SearchCommunities returns subreddit names matching term
func (r *RedditClient) SearchCommunities(ctx context.Context, term string, limit int) ([]string, error) {
	body, err := r.get(ctx, "/subreddits/search", map[string]string{
		"q":     term,
		"limit": strconv.Itoa(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search communities for %q: %w", term, err)
	}

	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("failed to decode community search for %q: %w", term, err)
	}

	var names []string
	for _, child := range listing.Data.Children {
		var sub redditSubreddit
		if err := json.Unmarshal(child.Data, &sub); err != nil || sub.DisplayName == "" {
			continue
		}
		names = append(names, sub.DisplayName)
	}

	return names, nil
}

// Reply posts text as a top-level comment on the thread
func (r *RedditClient) Reply(ctx context.Context, threadID, text string) (Reply, error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"api_type": "json",
			"thing_id": "t3_" + threadID,
			"text":     text,
		}).
		Post("/api/comment")
	if err := checkResponse(resp, err); err != nil {
		return Reply{}, fmt.Errorf("failed to reply to %s: %w", threadID, err)
	}

	var commentResp redditCommentResponse
	if err := json.Unmarshal(resp.Body(), &commentResp); err != nil {
		return Reply{}, fmt.Errorf("failed to decode reply response: %w", err)
	}
	if len(commentResp.JSON.Errors) > 0 {
		return Reply{}, fmt.Errorf("reply to %s rejected: %v", threadID, commentResp.JSON.Errors)
	}
	if len(commentResp.JSON.Data.Things) == 0 {
		return Reply{}, fmt.Errorf("reply to %s returned no content", threadID)
	}

	thing := commentResp.JSON.Data.Things[0].Data
	return Reply{ID: thing.ID, Permalink: thing.Permalink}, nil
}

func (r *RedditClient) get(ctx context.Context, path string, params map[string]string) ([]byte, error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

// checkResponse folds transport errors and non-2xx statuses into one error,
// classifying credential problems as ErrUnauthorized.
func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return err
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: reddit API returned status %d", ErrUnauthorized, code)
	case code < 200 || code > 299:
		return fmt.Errorf("reddit API returned status %d", code)
	}
	return nil
}
