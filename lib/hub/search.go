package hub

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

const (
	DefaultSearchLimit = 25
	MaxSearchLimit     = 100
)

// SearchResult is one repository returned by a hub search.
type SearchResult struct {
	RepoName         string `json:"repoName"`
	ShortDescription string `json:"shortDescription,omitempty"`
	StarCount        int    `json:"starCount"`
	PullCount        int64  `json:"pullCount"`
	IsOfficial       bool   `json:"isOfficial"`
	IsAutomated      bool   `json:"isAutomated"`
}

type searchResponse struct {
	Count   int             `json:"count"`
	Results []hubRepository `json:"results"`
}

type hubRepository struct {
	RepoName         string `json:"repo_name"`
	ShortDescription string `json:"short_description"`
	StarCount        int    `json:"star_count"`
	PullCount        int64  `json:"pull_count"`
	IsOfficial       bool   `json:"is_official"`
	IsAutomated      bool   `json:"is_automated"`
}

// Search queries the hub for repositories matching query. limit is clamped
// to [1, MaxSearchLimit]; zero means DefaultSearchLimit.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query is required")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	limit = min(limit, MaxSearchLimit)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp searchResponse
	params := url.Values{
		"query":     {query},
		"page_size": {strconv.Itoa(limit)},
	}
	if err := c.getHubJSON(ctx, "/v2/search/repositories/", params, &resp); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	results := lo.Map(resp.Results, func(r hubRepository, _ int) SearchResult {
		return SearchResult(r)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
