package tools

import (
	"context"
	"fmt"
	"net/url"
)

const wikipediaAPIURL = "https://en.wikipedia.org/w/api.php"

// maxExtractChars caps each article extract, counted in runes so a multibyte
// character is never split.
const maxExtractChars = 1000

// WikipediaTool searches Wikipedia and returns introductory extracts
type WikipediaTool struct {
	fetch   *fetcher
	baseURL string
}

// NewWikipediaTool creates the Wikipedia search tool
func NewWikipediaTool() *WikipediaTool {
	return &WikipediaTool{fetch: newFetcher(), baseURL: wikipediaAPIURL}
}

func (t *WikipediaTool) Name() string { return "search_wikipedia" }

func (t *WikipediaTool) Description() string {
	return "Search Wikipedia and return short article summaries for a query."
}

func (t *WikipediaTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search query",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum number of articles to return (default 3)",
			},
		},
		"required": []string{"query"},
	}
}

type wikipediaResponse struct {
	Query struct {
		Pages map[string]struct {
			Title   string `json:"title"`
			Extract string `json:"extract"`
		} `json:"pages"`
	} `json:"query"`
}

func (t *WikipediaTool) Execute(ctx context.Context, params map[string]any, _ Context) (any, error) {
	query, ok := StringParam(params, "query")
	if !ok || query == "" {
		return BusinessError("query is required"), nil
	}
	limit, ok := IntParam(params, "limit")
	if !ok || limit <= 0 || limit > 10 {
		limit = 3
	}

	u := fmt.Sprintf(
		"%s?action=query&format=json&prop=extracts&exintro=1&explaintext=1&generator=search&gsrsearch=%s&gsrlimit=%d",
		t.baseURL, url.QueryEscape(query), limit,
	)
	var resp wikipediaResponse
	if err := t.fetch.getJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("wikipedia search failed: %w", err)
	}
	if len(resp.Query.Pages) == 0 {
		return BusinessError(fmt.Sprintf("no articles found for %q", query)), nil
	}

	articles := make([]map[string]any, 0, len(resp.Query.Pages))
	for _, page := range resp.Query.Pages {
		extract := page.Extract
		if len(extract) > maxExtractChars {
			if runes := []rune(extract); len(runes) > maxExtractChars {
				extract = string(runes[:maxExtractChars])
			}
		}
		articles = append(articles, map[string]any{
			"title":   page.Title,
			"extract": extract,
		})
	}

	return map[string]any{
		"query":    query,
		"articles": articles,
	}, nil
}
