/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v84/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testOwner = "acme"
	testRepo  = "blackened"
)

// newTestPublisher wires a Publisher to an httptest server standing in
// for the GitHub API.
func newTestPublisher(t *testing.T, mux *http.ServeMux) *Publisher {
	t.Helper()

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base
	client.UploadURL = base

	return New(client, testOwner, testRepo, Identity{
		Username: "formatbot",
		Email:    "formatbot@example.com",
	})
}

func TestOpenPullRequest(t *testing.T) {
	mux := http.NewServeMux()

	var got map[string]any
	mux.HandleFunc("POST /repos/acme/blackened/pulls", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"number": 9, "html_url": "https://github.com/acme/blackened/pull/9"}`)
	})

	p := newTestPublisher(t, mux)
	prURL, err := p.OpenPullRequest(context.Background(), "master", "issue-42-initialize-format", "🤖 Format code using `black`", "Closes #42")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/blackened/pull/9", prURL)

	assert.Equal(t, "master", got["base"])
	assert.Equal(t, "issue-42-initialize-format", got["head"])
	assert.Equal(t, true, got["maintainer_can_modify"])
}

func TestOpenPullRequestFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/acme/blackened/pulls", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"message": "A pull request already exists"}`)
	})

	p := newTestPublisher(t, mux)
	_, err := p.OpenPullRequest(context.Background(), "master", "issue-42-initialize-format", "title", "body")

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusUnprocessableEntity, te.StatusCode)
	assert.Contains(t, te.Body, "already exists")
}

func TestUpdateFileContents(t *testing.T) {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /repos/contributor/blackened/contents/a.py", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "fix-thing", r.URL.Query().Get("ref"))
		fmt.Fprint(w, `{"type": "file", "name": "a.py", "path": "a.py", "sha": "abc123"}`)
	})

	var got map[string]any
	mux.HandleFunc("PUT /repos/contributor/blackened/contents/a.py", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"content": {"path": "a.py"}}`)
	})

	p := newTestPublisher(t, mux)
	err := p.UpdateFileContents(context.Background(), "contributor", "blackened", "a.py", "fix-thing", []byte("x = 1\n"))
	require.NoError(t, err)

	assert.Equal(t, "abc123", got["sha"])
	assert.Equal(t, "fix-thing", got["branch"])
	// go-github base64-encodes content on the wire.
	assert.Equal(t, "eCA9IDEK", got["content"])
}

func TestUpdateFileContentsMissingFile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/contributor/blackened/contents/gone.py", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	})

	p := newTestPublisher(t, mux)
	err := p.UpdateFileContents(context.Background(), "contributor", "blackened", "gone.py", "fix-thing", []byte("x = 1\n"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateFileContentsStaleSHA(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/contributor/blackened/contents/a.py", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"type": "file", "name": "a.py", "path": "a.py", "sha": "stale"}`)
	})
	mux.HandleFunc("PUT /repos/contributor/blackened/contents/a.py", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"message": "a.py does not match stale"}`)
	})

	p := newTestPublisher(t, mux)
	err := p.UpdateFileContents(context.Background(), "contributor", "blackened", "a.py", "fix-thing", []byte("x = 1\n"))

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusConflict, te.StatusCode)
}

func TestComment(t *testing.T) {
	mux := http.NewServeMux()

	var got map[string]any
	mux.HandleFunc("POST /repos/acme/blackened/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"html_url": "https://github.com/acme/blackened/issues/7#issuecomment-1"}`)
	})

	p := newTestPublisher(t, mux)
	require.NoError(t, p.Comment(context.Background(), 7, "🐍🌚🤖 PR is already black! Good job!"))
	assert.Equal(t, "🐍🌚🤖 PR is already black! Good job!", got["body"])
}

func TestRemoveLabelIdempotent(t *testing.T) {
	mux := http.NewServeMux()

	labels := []string{"black out", "bug"}
	var replaceCalls int

	mux.HandleFunc("GET /repos/acme/blackened/issues/7/labels", func(w http.ResponseWriter, _ *http.Request) {
		out := make([]map[string]string, 0, len(labels))
		for _, l := range labels {
			out = append(out, map[string]string{"name": l})
		}
		require.NoError(t, json.NewEncoder(w).Encode(out))
	})
	mux.HandleFunc("PUT /repos/acme/blackened/issues/7/labels", func(w http.ResponseWriter, r *http.Request) {
		replaceCalls++
		var body []string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		labels = body
		fmt.Fprint(w, `[{"name": "bug"}]`)
	})

	p := newTestPublisher(t, mux)

	require.NoError(t, p.RemoveLabel(context.Background(), 7, "black out"))
	assert.Equal(t, []string{"bug"}, labels)
	assert.Equal(t, 1, replaceCalls)

	// Second removal finds the label absent and must not write.
	require.NoError(t, p.RemoveLabel(context.Background(), 7, "black out"))
	assert.Equal(t, []string{"bug"}, labels)
	assert.Equal(t, 1, replaceCalls)
}

func TestCloseIssue(t *testing.T) {
	mux := http.NewServeMux()

	var got map[string]any
	mux.HandleFunc("PATCH /repos/acme/blackened/issues/42", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"number": 42, "state": "closed"}`)
	})

	p := newTestPublisher(t, mux)
	require.NoError(t, p.CloseIssue(context.Background(), 42))
	assert.Equal(t, "closed", got["state"])
}

func TestTransportErrorUnwraps(t *testing.T) {
	inner := errors.New("boom")
	te := &TransportError{Op: "op", StatusCode: 500, Body: "boom", Err: inner}
	require.ErrorIs(t, te, inner)
}
