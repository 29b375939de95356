// Copyright (C) 2025 Yggdrasil Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package websearch is the thin client for the unverified-search
// collaborator: an external HTTP service that returns raw web snippets.
// Without a configured endpoint every search returns empty results, which
// degrades HUGIN and the watcher to no-ops instead of failing them.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Result is one snippet from the search collaborator.
type Result struct {
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// Client talks to the search service configured via SEARCH_SERVICE_URL.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient reads SEARCH_SERVICE_URL from the environment. An unset URL is
// not an error; searches just come back empty.
func NewClient() *Client {
	baseURL := os.Getenv("SEARCH_SERVICE_URL")
	if baseURL == "" {
		slog.Info("SEARCH_SERVICE_URL not set, web search returns no results")
	}
	return &Client{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		baseURL:    baseURL,
	}
}

// Search fetches up to limit snippets for the query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if c.baseURL == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	endpoint := fmt.Sprintf("%s/search?q=%s&limit=%s",
		c.baseURL, url.QueryEscape(query), strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search service returned status %d", resp.StatusCode)
	}

	var out struct {
		Results []Result `json:"results"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}
	return out.Results, nil
}
