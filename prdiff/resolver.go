/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package prdiff resolves the set of files a pull request touches from
// its unified diff document.
package prdiff

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/waigani/diffparser"
)

// Resolver fetches and parses pull request diffs.
type Resolver struct {
	client *http.Client
}

// New constructs a Resolver. A nil client falls back to
// http.DefaultClient.
func New(client *http.Client) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &Resolver{client: client}
}

// Resolve fetches the diff document at diffURL and returns the changed
// file paths in diff order. A diff touching no files yields an empty
// slice, not an error.
func (r *Resolver) Resolve(ctx context.Context, diffURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, diffURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building diff request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching diff: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("fetching diff: status %d: %s", resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading diff: %w", err)
	}

	return Paths(string(body))
}

// Paths extracts the changed file paths from a unified diff, one per
// file header, preserving header order.
func Paths(diff string) ([]string, error) {
	parsed, err := diffparser.Parse(diff)
	if err != nil {
		return nil, fmt.Errorf("parsing diff: %w", err)
	}

	paths := make([]string, 0, len(parsed.Files))
	for _, f := range parsed.Files {
		name := f.NewName
		if name == "" {
			name = f.OrigName
		}
		if name == "" {
			continue
		}
		paths = append(paths, name)
	}
	return paths, nil
}
