/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package workflow drives a triggered formatting run through its steps:
// fetch, branch, check, format, publish, cleanup. Two workflows share
// the skeleton: an issue-triggered whole-repository initialization and
// a PR-triggered per-file pass.
package workflow

import (
	"context"
	"fmt"

	"chainguard.dev/formatbot/event"
	"chainguard.dev/formatbot/formatter"
	"chainguard.dev/formatbot/workspace"
	"github.com/chainguard-dev/clog"
)

// Lease is the slice of a workspace lease the orchestrator drives.
// *workspace.Lease implements it.
type Lease interface {
	Root() string
	Fetch(ctx context.Context) error
	FetchPullHead(ctx context.Context, number int) (string, error)
	CheckoutNewBranch(name string) error
	CheckoutBranch(name string) error
	Commit(message string) error
	Push(ctx context.Context, branch string) error
	DeleteBranch(name string) error
	Return(ctx context.Context) error
}

// Workspaces leases an exclusive repository checkout for the duration
// of one run.
type Workspaces interface {
	Lease(ctx context.Context, repo workspace.Repo, baseRef string) (Lease, error)
}

// Pool adapts a workspace.Manager to the Workspaces interface.
type Pool struct {
	Manager *workspace.Manager
}

// Lease implements Workspaces.
func (p Pool) Lease(ctx context.Context, repo workspace.Repo, baseRef string) (Lease, error) {
	return p.Manager.Lease(ctx, repo, baseRef)
}

// Formatter reports and applies needed rewrites.
type Formatter interface {
	Check(ctx context.Context, dir string, paths []string) (formatter.Outcome, error)
	Apply(ctx context.Context, dir string, paths []string) error
}

// Resolver extracts changed file paths from a PR diff document.
type Resolver interface {
	Resolve(ctx context.Context, diffURL string) ([]string, error)
}

// Publisher performs the run's outward side effects.
type Publisher interface {
	OpenPullRequest(ctx context.Context, base, head, title, body string) (string, error)
	UpdateFileContents(ctx context.Context, targetOwner, targetRepo, path, branch string, content []byte) error
	Comment(ctx context.Context, number int, message string) error
	RemoveLabel(ctx context.Context, number int, label string) error
	CloseIssue(ctx context.Context, number int) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBaseRef overrides the base branch formatting runs start from.
func WithBaseRef(ref string) Option {
	return func(o *Orchestrator) { o.baseRef = ref }
}

// WithTriggerLabel overrides the label consumed by PR formatting runs.
func WithTriggerLabel(label string) Option {
	return func(o *Orchestrator) { o.triggerLabel = label }
}

// Orchestrator executes formatting workflows against leased
// workspaces.
type Orchestrator struct {
	workspaces Workspaces
	formatter  Formatter
	resolver   Resolver
	publisher  Publisher

	baseRef      string
	triggerLabel string
}

// New constructs an Orchestrator.
func New(workspaces Workspaces, f Formatter, resolver Resolver, publisher Publisher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		workspaces:   workspaces,
		formatter:    f,
		resolver:     resolver,
		publisher:    publisher,
		baseRef:      "master",
		triggerLabel: "black out",
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run dispatches a routed trigger event to its workflow.
func (o *Orchestrator) Run(ctx context.Context, wf event.Workflow, ev *event.TriggerEvent) error {
	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With(
		"workflow", string(wf),
		"repo", ev.Repo.FullName(),
		"number", ev.Number,
	))

	switch wf {
	case event.WorkflowInitialize:
		return o.InitializeFormatting(ctx, ev)
	case event.WorkflowFormatPR:
		return o.FormatPullRequest(ctx, ev)
	default:
		return fmt.Errorf("unknown workflow %q", wf)
	}
}

// abort posts a best-effort comment explaining a failure that happened
// after the run became user-visible, then returns the wrapped failure.
func (o *Orchestrator) abort(ctx context.Context, number int, step string, err error) error {
	msg := fmt.Sprintf("🤖 Sorry, I hit a problem while trying to %s and had to stop. (I'm a bot 🤖)", step)
	if cerr := o.publisher.Comment(ctx, number, msg); cerr != nil {
		clog.FromContext(ctx).With("error", cerr).Warn("Failed to post abort comment")
	}
	return fmt.Errorf("%s: %w", step, err)
}
