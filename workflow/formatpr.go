/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"chainguard.dev/formatbot/event"
	"chainguard.dev/formatbot/publisher"
	"chainguard.dev/formatbot/workspace"
	"github.com/chainguard-dev/clog"
)

// FormatPullRequest runs the per-file workflow triggered by the
// trigger label on a pull request: check each file the PR touches and
// push corrected contents directly onto the PR's source branch through
// the contents API.
func (o *Orchestrator) FormatPullRequest(ctx context.Context, ev *event.TriggerEvent) (retErr error) {
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

	// Silent abort: the local pr_<n> branch does not exist yet.
	branch, err := lease.FetchPullHead(ctx, ev.Number)
	if err != nil {
		return fmt.Errorf("fetching pull request head: %w", err)
	}

	defer func() {
		if err := lease.CheckoutBranch(o.baseRef); err != nil {
			log.With("error", err).Warn("Failed to restore base branch")
			return
		}
		if err := lease.DeleteBranch(branch); err != nil {
			log.With("error", err).Warn("Failed to delete pull request branch")
		}
	}()

	if err := lease.CheckoutBranch(branch); err != nil {
		return o.abort(ctx, ev.Number, "check out the pull request branch", err)
	}

	files, err := o.resolver.Resolve(ctx, ev.DiffURL)
	if err != nil {
		return o.abort(ctx, ev.Number, "read the pull request diff", err)
	}
	log.With("files", len(files)).Info("Resolved changed files from diff")

	var formatted []string
	for _, path := range files {
		outcome, err := o.formatter.Check(ctx, lease.Root(), []string{path})
		if err != nil {
			return o.abort(ctx, ev.Number, fmt.Sprintf("check the formatting of %s", path), err)
		}
		if outcome.Clean() {
			continue
		}

		if err := o.formatter.Apply(ctx, lease.Root(), []string{path}); err != nil {
			return o.abort(ctx, ev.Number, fmt.Sprintf("reformat %s", path), err)
		}

		content, err := os.ReadFile(filepath.Join(lease.Root(), path))
		if err != nil {
			return o.abort(ctx, ev.Number, fmt.Sprintf("read the reformatted %s", path), err)
		}

		err = o.publisher.UpdateFileContents(ctx, ev.HeadRepo.Owner, ev.HeadRepo.Name, path, ev.HeadRef, content)
		if errors.Is(err, publisher.ErrNotFound) {
			// The file vanished from the source branch since the diff
			// was taken. Fatal for this file only.
			log.With("path", path).Warn("File missing on source branch, skipping")
			continue
		}
		if err != nil {
			return o.abort(ctx, ev.Number, fmt.Sprintf("update %s on the pull request branch", path), err)
		}
		formatted = append(formatted, path)
	}

	msg := "🐍🌚🤖 PR is already black! Good job!"
	if len(formatted) > 0 {
		msg = fileListMessage(ev.Actor, formatted)
	}
	if cerr := o.publisher.Comment(ctx, ev.Number, msg); cerr != nil {
		log.With("error", cerr).Warn("Failed to post terminal comment")
	}

	// The label is a request marker: consume it on both outcomes.
	if err := o.publisher.RemoveLabel(ctx, ev.Number, o.triggerLabel); err != nil {
		log.With("error", err).Warn("Failed to remove trigger label")
	}

	log.With("formatted", len(formatted)).Info("Pull request formatting run complete")
	return nil
}
