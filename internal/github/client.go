// Package github fetches and aggregates a user's profile statistics from the
// GitHub GraphQL API.
//
// One FetchSnapshot call issues up to maxPages paginated queries, sums stars
// and language sizes across pages, and resolves the avatar into a data URI.
// Caching and request de-duplication live in internal/service; this package
// always goes to the network.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/statscard/internal/apperror"
	"github.com/sakif/statscard/internal/model"
)

const (
	defaultEndpoint  = "https://api.github.com/graphql"
	defaultUserAgent = "statscard/0.1"

	// pageSize × maxPages bounds the number of repos scanned per fetch;
	// accounts beyond that get a partial but valid aggregate.
	pageSize = 100
	maxPages = 10

	queryTimeout  = 10 * time.Second
	avatarTimeout = 5 * time.Second

	topLanguages = 5

	// Color used when the upstream reports a language without one.
	defaultLanguageColor = "#858585"
)

// Client talks to the GitHub GraphQL API.
type Client struct {
	httpClient   *http.Client // authenticated, 10s timeout
	avatarClient *http.Client // unauthenticated, 5s timeout
	endpoint     string
	logger       *slog.Logger
}

// NewClient builds a Client authenticated with the given token. The oauth2
// transport attaches the bearer token to every request.
func NewClient(token string, logger *slog.Logger) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(context.Background(), ts)
	httpClient.Timeout = queryTimeout

	return &Client{
		httpClient:   httpClient,
		avatarClient: &http.Client{Timeout: avatarTimeout},
		endpoint:     defaultEndpoint,
		logger:       logger,
	}
}

// FetchSnapshot fetches and aggregates all pages of a user's statistics.
//
// Identity fields come from the first page only; stars and language sizes
// accumulate across pages. The contribution window is fixed once here, so
// every page sees the same year boundary even if the fetch straddles midnight
// on New Year's Eve.
func (c *Client) FetchSnapshot(ctx context.Context, username string, includeLangs bool) (*model.Snapshot, error) {
	now := time.Now().UTC()
	from := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)

	query := statsQuery
	if includeLangs {
		query = statsWithLanguagesQuery
	}

	var (
		snapshot  model.Snapshot
		langSizes = make(map[string]*model.LanguageStat)
		cursor    *string
	)

	for page := 0; page < maxPages; page++ {
		user, err := c.queryPage(ctx, query, username, from, now, cursor)
		if err != nil {
			return nil, err
		}

		if page == 0 {
			snapshot.Profile = model.Profile{
				Username:      user.Login,
				Name:          user.Name,
				AvatarURL:     user.AvatarURL,
				Bio:           user.Bio,
				Pronouns:      user.Pronouns,
				TwitterHandle: user.TwitterUsername,
			}
			snapshot.Stats = model.Stats{
				Repos:        user.Repositories.TotalCount,
				PullRequests: user.OpenPRs.TotalCount + user.ClosedPRs.TotalCount + user.MergedPRs.TotalCount,
				Issues:       user.OpenIssues.TotalCount + user.ClosedIssues.TotalCount,
				Commits:      user.ContributionsCollection.TotalCommitContributions,
			}
		}

		for _, repo := range user.Repositories.Nodes {
			snapshot.Stats.Stars += repo.StargazerCount
			if repo.Languages == nil {
				continue
			}
			for _, edge := range repo.Languages.Edges {
				if edge.Node.Name == "" {
					continue
				}
				if stat, ok := langSizes[edge.Node.Name]; ok {
					stat.Size += edge.Size
					continue
				}
				color := edge.Node.Color
				if color == "" {
					color = defaultLanguageColor
				}
				langSizes[edge.Node.Name] = &model.LanguageStat{
					Name:  edge.Node.Name,
					Size:  edge.Size,
					Color: color,
				}
			}
		}

		info := user.Repositories.PageInfo
		if !info.HasNextPage || len(user.Repositories.Nodes) == 0 {
			break
		}
		next := info.EndCursor
		cursor = &next
	}

	snapshot.Languages = topLanguageStats(langSizes)
	snapshot.Profile.AvatarURL = c.resolveAvatar(ctx, snapshot.Profile.AvatarURL)

	return &snapshot, nil
}

// queryPage issues one GraphQL request and maps failures onto the error
// taxonomy. A nil user in an otherwise valid response means the login does
// not exist.
func (c *Client) queryPage(ctx context.Context, query, username string, from, to time.Time, cursor *string) (*userPayload, error) {
	vars := map[string]any{
		"login": username,
		"from":  from.Format(time.RFC3339),
		"to":    to.Format(time.RFC3339),
		"first": pageSize,
	}
	if cursor != nil {
		vars["after"] = *cursor
	}

	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return nil, apperror.Upstream(fmt.Errorf("encode query: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, apperror.Upstream(fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperror.Upstream(fmt.Errorf("do request: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, apperror.AuthFailed("GitHub rejected the configured token")
	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperror.RateLimited("GitHub API rate limit exceeded")
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, apperror.Upstream(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var payload graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperror.Upstream(fmt.Errorf("decode response: %w", err))
	}

	for _, gqlErr := range payload.Errors {
		if gqlErr.Type == "NOT_FOUND" {
			return nil, apperror.NotFound(username)
		}
	}
	if len(payload.Errors) > 0 {
		return nil, apperror.Upstream(fmt.Errorf("graphql: %s", payload.Errors[0].Message))
	}
	if payload.Data.User == nil {
		return nil, apperror.NotFound(username)
	}

	return payload.Data.User, nil
}

// resolveAvatar downloads the avatar and re-encodes it as a data URI so the
// SVG is self-contained. Any failure falls back to the original URL.
func (c *Client) resolveAvatar(ctx context.Context, avatarURL string) string {
	if avatarURL == "" || strings.HasPrefix(avatarURL, "data:") {
		return avatarURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, avatarURL, nil)
	if err != nil {
		return avatarURL
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := c.avatarClient.Do(req)
	if err != nil {
		c.logger.Warn("avatar fetch failed, keeping remote URL",
			slog.String("error", err.Error()),
		)
		return avatarURL
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("avatar fetch failed, keeping remote URL",
			slog.Int("status", resp.StatusCode),
		)
		return avatarURL
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return avatarURL
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data))
}

// topLanguageStats sorts the accumulated sizes descending and keeps the
// largest five. Ties break by name so output is deterministic.
func topLanguageStats(sizes map[string]*model.LanguageStat) []model.LanguageStat {
	if len(sizes) == 0 {
		return nil
	}

	langs := make([]model.LanguageStat, 0, len(sizes))
	for _, stat := range sizes {
		langs = append(langs, *stat)
	}

	sort.Slice(langs, func(i, j int) bool {
		if langs[i].Size != langs[j].Size {
			return langs[i].Size > langs[j].Size
		}
		return langs[i].Name < langs[j].Name
	})

	if len(langs) > topLanguages {
		langs = langs[:topLanguages]
	}
	return langs
}
