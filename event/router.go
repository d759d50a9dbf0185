/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package event

import (
	"slices"
	"strings"
)

// Workflow names the formatting workflow a trigger event maps to.
type Workflow string

const (
	// WorkflowInitialize formats the whole repository and opens a PR.
	WorkflowInitialize Workflow = "initialize"

	// WorkflowFormatPR formats the files a pull request touches.
	WorkflowFormatPR Workflow = "format-pr"
)

// DefaultTriggerPhrases are the issue titles that request a whole
// repository formatting run. Matching is case-insensitive and ignores
// surrounding whitespace.
var DefaultTriggerPhrases = []string{
	"turn off the sun",
	"take down the moon",
	"switch off the stars",
	"paint the sky black",
	"black out the sun",
}

type routeKey struct {
	kind   Kind
	action Action
}

// Router maps (kind, action) pairs to workflows through a lookup table
// resolved once at construction. Matching is pure: routing an event has
// no side effects.
type Router struct {
	phrases map[string]struct{}
	label   string
	routes  map[routeKey]func(*TriggerEvent) (Workflow, bool)
}

// NewRouter builds a Router recognizing the given trigger phrases for
// issue events and the given label for pull request events.
func NewRouter(phrases []string, label string) *Router {
	r := &Router{
		phrases: make(map[string]struct{}, len(phrases)),
		label:   label,
	}
	for _, p := range phrases {
		r.phrases[normalizeTitle(p)] = struct{}{}
	}

	r.routes = map[routeKey]func(*TriggerEvent) (Workflow, bool){
		{KindIssue, ActionOpened}:            r.routeIssue,
		{KindIssue, ActionReopened}:          r.routeIssue,
		{KindPullRequest, ActionLabeled}:     r.routeLabeled,
		{KindPullRequest, ActionSynchronize}: r.routeSynchronize,
	}
	return r
}

// Route returns the workflow the event triggers, or false when the
// event matches no workflow.
func (r *Router) Route(ev *TriggerEvent) (Workflow, bool) {
	route, ok := r.routes[routeKey{ev.Kind, ev.Action}]
	if !ok {
		return "", false
	}
	return route(ev)
}

func (r *Router) routeIssue(ev *TriggerEvent) (Workflow, bool) {
	if _, ok := r.phrases[normalizeTitle(ev.Title)]; !ok {
		return "", false
	}
	return WorkflowInitialize, true
}

func (r *Router) routeLabeled(ev *TriggerEvent) (Workflow, bool) {
	if ev.Label != r.label || ev.State != "open" {
		return "", false
	}
	return WorkflowFormatPR, true
}

// routeSynchronize re-triggers formatting when new commits land on a PR
// that still carries the trigger label.
func (r *Router) routeSynchronize(ev *TriggerEvent) (Workflow, bool) {
	if ev.State != "open" || !slices.Contains(ev.Labels, r.label) {
		return "", false
	}
	return WorkflowFormatPR, true
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}
