// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// =============================================================================
// SECURITY: SSRF protection
// =============================================================================

// blockedCIDRs are address ranges fetches must never reach: loopback,
// RFC 1918 private space, link-local, and CGNAT.
var blockedCIDRs = []string{
	"127.0.0.0/8",    // loopback
	"10.0.0.0/8",     // RFC 1918
	"172.16.0.0/12",  // RFC 1918
	"192.168.0.0/16", // RFC 1918
	"169.254.0.0/16", // link-local
	"100.64.0.0/10",  // CGNAT
	"::1/128",        // IPv6 loopback
	"fc00::/7",       // IPv6 unique local
	"fe80::/10",      // IPv6 link-local
}

// blockedHosts are cloud metadata endpoints and local aliases.
var blockedHosts = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
	"169.254.169.254":          true, // AWS/GCP/Azure metadata IP
	"metadata":                 true,
}

var parsedBlockedCIDRs []*net.IPNet

func init() {
	for _, cidr := range blockedCIDRs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err == nil {
			parsedBlockedCIDRs = append(parsedBlockedCIDRs, ipNet)
		}
	}
}

// checkURLSafety resolves the host and rejects URLs pointing at private or
// metadata address space.
func checkURLSafety(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q (only http and https)", parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return errors.New("URL has no host")
	}
	if blockedHosts[host] {
		return fmt.Errorf("host %q is blocked", host)
	}

	// Resolve and check every address: a public hostname can still point
	// at private space (DNS rebinding).
	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("cannot resolve %q: %w", host, err)
	}
	for _, ip := range ips {
		for _, ipNet := range parsedBlockedCIDRs {
			if ipNet.Contains(ip) {
				return fmt.Errorf("host %q resolves to blocked address %s", host, ip)
			}
		}
	}
	return nil
}

// =============================================================================
// FETCHER
// =============================================================================

// DefaultMaxFetchBytes caps how much of a page body is read.
const DefaultMaxFetchBytes = 2 << 20

// FetchResult is a fetched page converted to markdown.
type FetchResult struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Markdown string `json:"markdown"`
}

// Fetcher retrieves a URL and converts the page to markdown for the model.
type Fetcher struct {
	// Timeout bounds one fetch.
	Timeout time.Duration

	// MaxBytes caps the response body read.
	MaxBytes int64

	// UserAgent sent on fetch requests.
	UserAgent string

	// AllowPrivateHosts disables the SSRF guard. Test-only.
	AllowPrivateHosts bool
}

// NewFetcher creates a fetcher with defaults filled in.
func NewFetcher(timeout time.Duration, maxBytes int64, userAgent string) *Fetcher {
	f := &Fetcher{
		Timeout:   timeout,
		MaxBytes:  maxBytes,
		UserAgent: userAgent,
	}
	if f.Timeout <= 0 {
		f.Timeout = 20 * time.Second
	}
	if f.MaxBytes <= 0 {
		f.MaxBytes = DefaultMaxFetchBytes
	}
	if f.UserAgent == "" {
		f.UserAgent = "rigchat/1.0"
	}
	return f
}

// Fetch retrieves the URL and returns the page as markdown. Non-HTML
// responses are returned as-is (truncated to MaxBytes).
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, errors.New("url is required")
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}

	if !f.AllowPrivateHosts {
		if err := checkURLSafety(rawURL); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	client := &http.Client{
		Timeout: f.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			// SECURITY: redirects can escape to private space too.
			if !f.AllowPrivateHosts {
				return checkURLSafety(req.URL.String())
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
		return nil, fmt.Errorf("fetch returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.MaxBytes))
	if err != nil {
		return nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	result := &FetchResult{URL: rawURL}

	if strings.Contains(contentType, "text/html") || looksLikeHTML(body) {
		result.Title = extractTitle(body)
		md, err := htmltomarkdown.ConvertString(string(body))
		if err != nil {
			// Fall back to the raw text rather than failing the fetch.
			md = string(body)
		}
		result.Markdown = norm.NFC.String(strings.TrimSpace(md))
	} else {
		result.Markdown = norm.NFC.String(strings.TrimSpace(string(body)))
	}

	return result, nil
}

func looksLikeHTML(body []byte) bool {
	head := strings.ToLower(string(body[:min(len(body), 1024)]))
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html")
}

// extractTitle pulls the <title> text from the document, if any.
func extractTitle(body []byte) string {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return ""
	}

	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}

// =============================================================================
// TOOL BINDING
// =============================================================================

// FetchURLTool binds the fetcher into the registry shape.
func FetchURLTool(fetcher *Fetcher) Tool {
	return Tool{
		Name:        "fetch_url",
		Description: "Fetch a web page and return its content as markdown.",
		Schema: functionSchema("fetch_url",
			"Fetch the content of a web page and return it as markdown.",
			map[string]ToolProperty{
				"url": {Type: "string", Description: "The URL to fetch"},
			},
			[]string{"url"},
		),
		Handler: HandlerFunc(func(ctx context.Context, args map[string]any) (string, error) {
			rawURL := getStringParam(args, "url", "")

			result, err := fetcher.Fetch(ctx, rawURL)
			if err != nil {
				return "", fmt.Errorf("fetch_url: %w", err)
			}

			var b strings.Builder
			if result.Title != "" {
				fmt.Fprintf(&b, "# %s\n\n", result.Title)
			}
			fmt.Fprintf(&b, "Source: %s\n\n", result.URL)
			b.WriteString(result.Markdown)
			return b.String(), nil
		}),
	}
}
