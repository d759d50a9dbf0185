/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package event models inbound GitHub webhook events and decides which
// formatting workflow, if any, each event should trigger.
package event

import "fmt"

// Kind is the webhook event kind, matching the X-GitHub-Event header.
type Kind string

const (
	KindIssue       Kind = "issues"
	KindPullRequest Kind = "pull_request"
)

// Action is the webhook action within an event kind.
type Action string

const (
	ActionOpened      Action = "opened"
	ActionReopened    Action = "reopened"
	ActionLabeled     Action = "labeled"
	ActionSynchronize Action = "synchronize"
)

// Repo identifies a GitHub repository.
type Repo struct {
	Owner string
	Name  string
}

// FullName returns the owner/name form of the repository.
func (r Repo) FullName() string {
	return fmt.Sprintf("%s/%s", r.Owner, r.Name)
}

// TriggerEvent is the normalized form of an inbound webhook event. Only
// the fields the formatting workflows consume are carried.
type TriggerEvent struct {
	Kind   Kind
	Action Action
	Repo   Repo

	// Number is the issue or pull request number.
	Number int

	// Actor is the login of the user who created the issue or PR.
	Actor string

	// Title is the issue title. Empty for pull request events.
	Title string

	// Label is the name of the label added by a "labeled" action.
	Label string

	// Labels are the names of all labels currently on the PR.
	Labels []string

	// State is the issue or PR state ("open" or "closed").
	State string

	// DiffURL locates the PR's unified diff document.
	DiffURL string

	// HeadRef is the PR's source branch name.
	HeadRef string

	// HeadRepo is the repository the PR's source branch lives in. For
	// fork PRs this differs from Repo.
	HeadRepo Repo
}
