/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package publisher issues the bot's outward GitHub side effects: pull
// requests, file content updates, comments, label changes, and issue
// state changes. Each operation is a single side effect; callers decide
// whether a failure is fatal for their workflow.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
)

// ErrNotFound indicates a file (or its blob SHA) is missing on the
// target branch during a content update.
var ErrNotFound = errors.New("not found")

// TransportError wraps a failed GitHub API call with the HTTP status
// and response message for diagnostics.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Identity is the bot identity used for content-update commits.
type Identity struct {
	Username    string
	Email       string
	DisplayName string
}

// Publisher performs side effects against a single repository.
type Publisher struct {
	gh        *github.Client
	owner     string
	repo      string
	committer Identity
}

// New constructs a Publisher bound to owner/repo.
func New(gh *github.Client, owner, repo string, committer Identity) *Publisher {
	if committer.DisplayName == "" {
		committer.DisplayName = committer.Username
	}
	return &Publisher{gh: gh, owner: owner, repo: repo, committer: committer}
}

// OpenPullRequest opens a PR from head into base and returns its HTML
// URL.
func (p *Publisher) OpenPullRequest(ctx context.Context, base, head, title, body string) (string, error) {
	pr, resp, err := p.gh.PullRequests.Create(ctx, p.owner, p.repo, &github.NewPullRequest{
		Title:               github.Ptr(title),
		Body:                github.Ptr(body),
		Head:                github.Ptr(head),
		Base:                github.Ptr(base),
		MaintainerCanModify: github.Ptr(true),
	})
	if err != nil {
		return "", transportError("creating pull request", resp, err)
	}

	clog.FromContext(ctx).Infof("PR created at %s", pr.GetHTMLURL())
	return pr.GetHTMLURL(), nil
}

// UpdateFileContents rewrites a single file on a branch of the target
// repository through the contents API. The current blob SHA is fetched
// first; a missing file yields ErrNotFound, and a stale SHA surfaces as
// a conflict TransportError, never retried here.
func (p *Publisher) UpdateFileContents(ctx context.Context, targetOwner, targetRepo, path, branch string, content []byte) error {
	fc, _, resp, err := p.gh.Repositories.GetContents(ctx, targetOwner, targetRepo, path, &github.RepositoryContentGetOptions{
		Ref: branch,
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%s on %s: %w", path, branch, ErrNotFound)
		}
		return transportError("fetching file sha", resp, err)
	}
	if fc == nil {
		return fmt.Errorf("%s on %s is not a file: %w", path, branch, ErrNotFound)
	}

	_, resp, err = p.gh.Repositories.UpdateFile(ctx, targetOwner, targetRepo, path, &github.RepositoryContentFileOptions{
		Message: github.Ptr("🐍🌚🤖 Formatted using `black`."),
		Content: content,
		SHA:     github.Ptr(fc.GetSHA()),
		Branch:  github.Ptr(branch),
		Committer: &github.CommitAuthor{
			Name:  github.Ptr(p.committer.DisplayName),
			Email: github.Ptr(p.committer.Email),
		},
	})
	if err != nil {
		return transportError("updating file contents", resp, err)
	}

	clog.FromContext(ctx).Infof("Updated %s on %s/%s@%s", path, targetOwner, targetRepo, branch)
	return nil
}

// Comment posts a comment on an issue or pull request.
func (p *Publisher) Comment(ctx context.Context, number int, message string) error {
	comment, resp, err := p.gh.Issues.CreateComment(ctx, p.owner, p.repo, number, &github.IssueComment{
		Body: github.Ptr(message),
	})
	if err != nil {
		return transportError("creating comment", resp, err)
	}

	clog.FromContext(ctx).Infof("Commented at %s", comment.GetHTMLURL())
	return nil
}

// RemoveLabel removes a label from an issue or pull request by reading
// the current label set and writing it back without the named label.
// Removing an absent label is a no-op success, so the operation is
// idempotent.
func (p *Publisher) RemoveLabel(ctx context.Context, number int, label string) error {
	current, resp, err := p.gh.Issues.ListLabelsByIssue(ctx, p.owner, p.repo, number, &github.ListOptions{PerPage: 100})
	if err != nil {
		return transportError("listing labels", resp, err)
	}

	remaining := make([]string, 0, len(current))
	found := false
	for _, l := range current {
		if l.GetName() == label {
			found = true
			continue
		}
		remaining = append(remaining, l.GetName())
	}
	if !found {
		return nil
	}

	if _, resp, err := p.gh.Issues.ReplaceLabelsForIssue(ctx, p.owner, p.repo, number, remaining); err != nil {
		return transportError("replacing labels", resp, err)
	}

	return nil
}

// CloseIssue sets an issue's state to closed.
func (p *Publisher) CloseIssue(ctx context.Context, number int) error {
	_, resp, err := p.gh.Issues.Edit(ctx, p.owner, p.repo, number, &github.IssueRequest{
		State: github.Ptr("closed"),
	})
	if err != nil {
		return transportError("closing issue", resp, err)
	}

	clog.FromContext(ctx).Infof("Closed issue #%d", number)
	return nil
}

func transportError(op string, resp *github.Response, err error) error {
	te := &TransportError{Op: op, Err: err}
	if resp != nil {
		te.StatusCode = resp.StatusCode
	}
	var ger *github.ErrorResponse
	if errors.As(err, &ger) {
		te.Body = ger.Message
	} else {
		te.Body = err.Error()
	}
	return te
}
