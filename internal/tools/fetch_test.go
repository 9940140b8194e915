// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestFetcher() *Fetcher {
	f := NewFetcher(0, 0, "")
	f.AllowPrivateHosts = true // httptest servers bind loopback
	return f
}

func TestFetcher_HTMLToMarkdown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<!DOCTYPE html>
<html><head><title>Test Page</title></head>
<body><h1>Welcome</h1><p>Some <strong>bold</strong> text.</p></body></html>`))
	}))
	defer srv.Close()

	result, err := newTestFetcher().Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if result.Title != "Test Page" {
		t.Errorf("Title = %q, want %q", result.Title, "Test Page")
	}
	if !strings.Contains(result.Markdown, "Welcome") {
		t.Errorf("Markdown missing heading text: %q", result.Markdown)
	}
	if strings.Contains(result.Markdown, "<h1>") {
		t.Errorf("Markdown still contains HTML: %q", result.Markdown)
	}
}

func TestFetcher_PlainTextPassthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("just plain text\n"))
	}))
	defer srv.Close()

	result, err := newTestFetcher().Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if result.Markdown != "just plain text" {
		t.Errorf("Markdown = %q, want trimmed plain text", result.Markdown)
	}
	if result.Title != "" {
		t.Errorf("Title = %q, want empty for plain text", result.Title)
	}
}

func TestFetcher_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestFetcher().Fetch(context.Background(), srv.URL)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("Fetch = %v, want HTTP 404 error", err)
	}
}

func TestFetcher_MaxBytesLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("a", 1000)))
	}))
	defer srv.Close()

	f := newTestFetcher()
	f.MaxBytes = 100

	result, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(result.Markdown) != 100 {
		t.Errorf("body length = %d, want capped at 100", len(result.Markdown))
	}
}

func TestFetcher_SchemeDefault(t *testing.T) {
	// A bare host gets https:// prefixed, which then fails the safety
	// check for a blocked name rather than a parse error.
	f := NewFetcher(0, 0, "")
	_, err := f.Fetch(context.Background(), "localhost/path")
	if err == nil || !strings.Contains(err.Error(), "blocked") {
		t.Errorf("Fetch bare localhost = %v, want blocked host error", err)
	}
}

func TestFetcher_EmptyURL(t *testing.T) {
	if _, err := newTestFetcher().Fetch(context.Background(), "  "); err == nil {
		t.Error("Fetch with blank URL succeeded, want error")
	}
}

// =============================================================================
// SECURITY: SSRF guard
// =============================================================================

func TestCheckURLSafety(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"ftp://example.com/file", true},
		{"http://localhost/admin", true},
		{"http://169.254.169.254/latest/meta-data/", true},
		{"http://127.0.0.1:8080/", true},
		{"http://10.1.2.3/", true},
		{"http://192.168.1.1/", true},
		{"http://metadata.google.internal/", true},
		{"http://[::1]/", true},
	}
	for _, tt := range tests {
		err := checkURLSafety(tt.url)
		if tt.wantErr && err == nil {
			t.Errorf("checkURLSafety(%q) = nil, want error", tt.url)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("checkURLSafety(%q) = %v, want nil", tt.url, err)
		}
	}
}

func TestFetcher_BlocksPrivateHosts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("secret"))
	}))
	defer srv.Close()

	f := NewFetcher(0, 0, "") // guard enabled
	_, err := f.Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Error("Fetch of loopback server succeeded, want SSRF rejection")
	}
}
