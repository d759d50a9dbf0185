/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chainguard.dev/formatbot/event"
	"chainguard.dev/formatbot/workspace"
	"github.com/chainguard-dev/clog"
)

// commitMessage builds the title and body used for both the formatting
// commit and the resulting pull request.
func commitMessage(issueNumber int) (title, body string) {
	title = "🤖 Format code using `black`"
	body = fmt.Sprintf("Closes #%d\n(I'm a bot 🤖)", issueNumber)
	return title, body
}

// InitializeFormatting runs the whole-repository workflow triggered by
// an issue whose title matches a trigger phrase: fetch, branch, check
// the entire tree, and either open a formatting PR or close the issue
// as already compliant.
func (o *Orchestrator) InitializeFormatting(ctx context.Context, ev *event.TriggerEvent) (retErr error) {
	log := clog.FromContext(ctx)

	lease, err := o.workspaces.Lease(ctx, workspace.Repo{Owner: ev.Repo.Owner, Name: ev.Repo.Name}, o.baseRef)
	if err != nil {
		return fmt.Errorf("leasing workspace: %w", err)
	}
	defer func() {
		if err := lease.Return(ctx); err != nil {
			log.With("error", err).Warn("Failed to return workspace lease")
		}
	}()

	// Failures before any branch mutation abort silently: the task is
	// marked failed but no user comment is posted.
	if err := lease.Fetch(ctx); err != nil {
		return fmt.Errorf("fetching origin: %w", err)
	}

	branch := fmt.Sprintf("issue-%d-initialize-format", ev.Number)
	if err := lease.CheckoutNewBranch(branch); err != nil {
		var checkoutErr *workspace.CheckoutError
		if errors.As(err, &checkoutErr) {
			msg := fmt.Sprintf(
				"🤖 Sorry @%s. I was not able to check out the branch in order to create the pull request. Perhaps a pull request has been made, or formatting has been initiated? (I'm a bot 🤖)",
				ev.Actor)
			if cerr := o.publisher.Comment(ctx, ev.Number, msg); cerr != nil {
				log.With("error", cerr).Warn("Failed to post checkout-failure comment")
			}
		}
		return fmt.Errorf("creating work branch: %w", err)
	}

	// The work branch exists from here on: always restore the base
	// branch and delete the branch, best-effort, whatever the outcome.
	defer func() {
		if err := lease.CheckoutBranch(o.baseRef); err != nil {
			log.With("error", err).Warn("Failed to restore base branch")
			return
		}
		if err := lease.DeleteBranch(branch); err != nil {
			log.With("error", err).Warn("Failed to delete work branch")
		}
	}()

	outcome, err := o.formatter.Check(ctx, lease.Root(), nil)
	if err != nil {
		return o.abort(ctx, ev.Number, "check the repository formatting", err)
	}

	if outcome.Clean() {
		log.Info("Repository is already well formatted")
		msg := fmt.Sprintf("🤖 @%s, the repo appears to be already well formatted with `black`. Closing the issue. 🌮 (I'm a bot 🤖)", ev.Actor)
		if cerr := o.publisher.Comment(ctx, ev.Number, msg); cerr != nil {
			log.With("error", cerr).Warn("Failed to post already-formatted comment")
		}
		if err := o.publisher.CloseIssue(ctx, ev.Number); err != nil {
			return fmt.Errorf("closing issue: %w", err)
		}
		return nil
	}

	log.With("files", len(outcome.Files)).Info("Applying formatter to repository")
	if err := o.formatter.Apply(ctx, lease.Root(), outcome.Files); err != nil {
		return o.abort(ctx, ev.Number, "apply the formatter", err)
	}

	title, body := commitMessage(ev.Number)
	if err := lease.Commit(title + "\n\n" + body); err != nil {
		return o.abort(ctx, ev.Number, "commit the formatting changes", err)
	}

	if err := lease.Push(ctx, branch); err != nil {
		return o.abort(ctx, ev.Number, "push the formatting branch", err)
	}

	prURL, err := o.publisher.OpenPullRequest(ctx, o.baseRef, branch, title, body)
	if err != nil {
		// The PR is the terminal goal of this workflow; its failure is
		// fatal for the run.
		return o.abort(ctx, ev.Number, "open the formatting pull request", err)
	}

	msg := fmt.Sprintf("🤖 @%s, I have opened %s to format the repository using `black`. (I'm a bot 🤖)", ev.Actor, prURL)
	if cerr := o.publisher.Comment(ctx, ev.Number, msg); cerr != nil {
		log.With("error", cerr).Warn("Failed to post success comment")
	}

	log.With("pr_url", prURL).Info("Formatting PR opened")
	return nil
}

// fileListMessage renders the Workflow B success comment naming the
// reformatted files.
func fileListMessage(author string, files []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🐍🌚🤖 @%s, I've formatted these files using `black`:", author)
	for _, f := range files {
		fmt.Fprintf(&b, "\n - %s", f)
	}
	b.WriteString("\n (I'm a bot 🤖)")
	return b.String()
}
