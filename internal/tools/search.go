// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// =============================================================================
// PERFORMANCE: Pre-compiled regex (compiled once at startup)
// =============================================================================

var (
	// DuckDuckGo HTML parsing patterns
	ddgTitleRegex   = regexp.MustCompile(`(?s)<a[^>]+class="result__a"[^>]+href="([^"]+)"[^>]*>(.+?)</a>`)
	ddgSnippetRegex = regexp.MustCompile(`(?s)<a[^>]+class="result__snippet"[^>]*>(.+?)</a>`)

	// HTML cleaning patterns for result text
	ddgTagRegex        = regexp.MustCompile(`<[^>]*>`)
	ddgWhitespaceRegex = regexp.MustCompile(`\s+`)
)

// =============================================================================
// SEARCH CLIENT
// =============================================================================

// SearchResult represents a single search result.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchClient performs web searches against the DuckDuckGo HTML endpoint;
// no API key required.
type SearchClient struct {
	// BaseURL is the DuckDuckGo HTML search endpoint.
	BaseURL string

	// MaxResults caps returned results (default: 5, max: 10).
	MaxResults int

	// Timeout bounds one search request.
	Timeout time.Duration

	// UserAgent sent on search requests.
	UserAgent string
}

// NewSearchClient creates a search client with defaults filled in.
func NewSearchClient(maxResults int, timeout time.Duration, userAgent string) *SearchClient {
	c := &SearchClient{
		BaseURL:    "https://html.duckduckgo.com/html/",
		MaxResults: maxResults,
		Timeout:    timeout,
		UserAgent:  userAgent,
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 5
	}
	if c.MaxResults > 10 {
		c.MaxResults = 10
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "rigchat/1.0"
	}
	return c
}

// Search performs a search and returns up to maxResults results.
// maxResults <= 0 uses the client default.
func (c *SearchClient) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is required")
	}
	if maxResults <= 0 || maxResults > c.MaxResults {
		maxResults = c.MaxResults
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	searchURL := c.BaseURL + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}
	// Note: don't set Accept-Encoding manually - Go's default client
	// negotiates gzip and decompresses transparently.
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	client := &http.Client{
		Timeout: c.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			return nil
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return nil, err
	}

	results := parseSearchHTML(string(body))
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// parseSearchHTML extracts results from the DuckDuckGo HTML page.
//
// Structure (2024+):
//
//	<h2 class="result__title">
//	  <a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=URL">Title</a>
//	</h2>
//	<a class="result__snippet" href="...">Snippet text</a>
func parseSearchHTML(page string) []SearchResult {
	titleMatches := ddgTitleRegex.FindAllStringSubmatch(page, 30)
	snippetMatches := ddgSnippetRegex.FindAllStringSubmatch(page, 30)

	var results []SearchResult
	for i, match := range titleMatches {
		if len(match) < 3 {
			continue
		}

		rawURL := strings.ReplaceAll(match[1], "&amp;", "&")
		actualURL := extractActualURL(rawURL)
		title := strings.TrimSpace(cleanResultHTML(match[2]))
		if actualURL == "" || title == "" {
			continue
		}

		snippet := ""
		if i < len(snippetMatches) && len(snippetMatches[i]) >= 2 {
			snippet = strings.TrimSpace(cleanResultHTML(snippetMatches[i][1]))
		}

		results = append(results, SearchResult{
			Title:   title,
			URL:     actualURL,
			Snippet: snippet,
		})
	}
	return results
}

// extractActualURL unwraps DuckDuckGo's redirect URL.
// Format: //duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com
func extractActualURL(ddgURL string) string {
	if strings.Contains(ddgURL, "uddg=") {
		if strings.HasPrefix(ddgURL, "//") {
			ddgURL = "https:" + ddgURL
		}
		parsed, err := url.Parse(ddgURL)
		if err != nil {
			return ""
		}
		if target := parsed.Query().Get("uddg"); target != "" {
			return target
		}
	}
	if strings.HasPrefix(ddgURL, "http://") || strings.HasPrefix(ddgURL, "https://") {
		return ddgURL
	}
	return ""
}

// cleanResultHTML strips tags and entities from result text.
func cleanResultHTML(s string) string {
	s = ddgTagRegex.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#39;", "'")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	return ddgWhitespaceRegex.ReplaceAllString(s, " ")
}

// FormatSearchResults renders results as markdown for the model.
func FormatSearchResults(query string, results []SearchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q.", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Search results for %q:\n\n", query)
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", r.Snippet)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// =============================================================================
// TOOL BINDING
// =============================================================================

// WebSearchTool binds the search client into the registry shape.
func WebSearchTool(client *SearchClient) Tool {
	return Tool{
		Name:        "web_search",
		Description: "Search the web and return titles, URLs, and snippets.",
		Schema: functionSchema("web_search",
			"Search the web for current information. Returns titles, URLs, and snippets.",
			map[string]ToolProperty{
				"query":       {Type: "string", Description: "The search query"},
				"max_results": {Type: "integer", Description: "Maximum number of results (1-10)"},
			},
			[]string{"query"},
		),
		Handler: HandlerFunc(func(ctx context.Context, args map[string]any) (string, error) {
			query := getStringParam(args, "query", "")
			maxResults := getIntParam(args, "max_results", 0)

			results, err := client.Search(ctx, query, maxResults)
			if err != nil {
				return "", fmt.Errorf("web_search: %w", err)
			}
			return FormatSearchResults(query, results), nil
		}),
	}
}
