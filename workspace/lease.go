/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package workspace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Lease is a clone acquired exclusively for one workflow run. All
// working-tree mutations a run performs go through its lease; once
// Return succeeds the lease is invalid.
type Lease struct {
	manager *Manager
	clone   *clone
	repo    Repo
	baseRef string
}

// Root returns the absolute path of the lease's working tree.
func (l *Lease) Root() string {
	return l.clone.path
}

// BaseRef returns the base branch this lease was prepared against.
func (l *Lease) BaseRef() string {
	return l.baseRef
}

// Fetch updates the base branch from origin and checks it out, leaving
// the working tree at the tip of the remote base.
func (l *Lease) Fetch(ctx context.Context) error {
	auth, err := l.manager.auth()
	if err != nil {
		return fmt.Errorf("getting token: %w", err)
	}

	refspec := gitconfig.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/origin/%s", l.baseRef, l.baseRef))
	clog.FromContext(ctx).Infof("Fetching %s from origin", l.baseRef)

	if err := l.clone.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{refspec},
		Auth:       auth,
	}); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return &GitError{Op: "fetch", Err: err}
	}

	remoteRef, err := l.clone.repo.Reference(plumbing.NewRemoteReferenceName("origin", l.baseRef), true)
	if err != nil {
		return &GitError{Op: "fetch", Err: fmt.Errorf("resolving origin/%s: %w", l.baseRef, err)}
	}

	baseRefName := plumbing.NewBranchReferenceName(l.baseRef)
	if err := l.clone.repo.Storer.SetReference(plumbing.NewHashReference(baseRefName, remoteRef.Hash())); err != nil {
		return &GitError{Op: "fetch", Err: fmt.Errorf("updating %s: %w", l.baseRef, err)}
	}

	worktree, err := l.clone.repo.Worktree()
	if err != nil {
		return &GitError{Op: "fetch", Err: err}
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Branch: baseRefName, Force: true}); err != nil {
		return &GitError{Op: "fetch", Err: fmt.Errorf("checking out %s: %w", l.baseRef, err)}
	}

	return nil
}

// FetchPullHead fetches a pull request's head ref into a local branch
// named pr_<n> and returns the branch name. The fetch is forced so a
// rerun picks up new commits on the PR.
func (l *Lease) FetchPullHead(ctx context.Context, number int) (string, error) {
	auth, err := l.manager.auth()
	if err != nil {
		return "", fmt.Errorf("getting token: %w", err)
	}

	branch := fmt.Sprintf("pr_%d", number)
	refspec := gitconfig.RefSpec(fmt.Sprintf("+refs/pull/%d/head:refs/heads/%s", number, branch))
	clog.FromContext(ctx).Infof("Fetching pull request head into %s", branch)

	if err := l.clone.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{refspec},
		Auth:       auth,
	}); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return "", &GitError{Op: "fetch pull head", Err: err}
	}

	return branch, nil
}

// CheckoutNewBranch creates a branch at the tip of the base branch and
// checks it out. It fails with a CheckoutError if the branch already
// exists or the checkout cannot complete.
func (l *Lease) CheckoutNewBranch(name string) error {
	refName := plumbing.NewBranchReferenceName(name)

	if _, err := l.clone.repo.Reference(refName, false); err == nil {
		return &CheckoutError{Branch: name, Err: ErrBranchExists}
	}

	baseRef, err := l.clone.repo.Reference(plumbing.NewBranchReferenceName(l.baseRef), true)
	if err != nil {
		return &CheckoutError{Branch: name, Err: fmt.Errorf("resolving base %s: %w", l.baseRef, err)}
	}

	if err := l.clone.repo.Storer.SetReference(plumbing.NewHashReference(refName, baseRef.Hash())); err != nil {
		return &CheckoutError{Branch: name, Err: err}
	}

	worktree, err := l.clone.repo.Worktree()
	if err != nil {
		return &CheckoutError{Branch: name, Err: err}
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Branch: refName}); err != nil {
		return &CheckoutError{Branch: name, Err: err}
	}

	return nil
}

// CheckoutBranch force-switches the working tree to an existing local
// branch, discarding any uncommitted changes. Workflows use it to
// restore the base branch before cleanup.
func (l *Lease) CheckoutBranch(name string) error {
	worktree, err := l.clone.repo.Worktree()
	if err != nil {
		return &GitError{Op: "checkout", Err: err}
	}

	if err := worktree.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
		Force:  true,
	}); err != nil {
		return &GitError{Op: "checkout", Err: err}
	}

	return nil
}

// Commit records all modified tracked files with the manager's
// committer identity. Returns ErrNothingToCommit on a clean tree.
func (l *Lease) Commit(message string) error {
	worktree, err := l.clone.repo.Worktree()
	if err != nil {
		return &GitError{Op: "commit", Err: err}
	}

	_, err = worktree.Commit(message, &git.CommitOptions{
		All: true,
		Author: &object.Signature{
			Name:  l.manager.committer.Name,
			Email: l.manager.committer.Email,
			When:  time.Now(),
		},
	})
	if err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			return ErrNothingToCommit
		}
		return &GitError{Op: "commit", Err: err}
	}

	return nil
}

// Push pushes a local branch to origin.
func (l *Lease) Push(ctx context.Context, branch string) error {
	auth, err := l.manager.auth()
	if err != nil {
		return fmt.Errorf("getting token: %w", err)
	}

	refspec := gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch))
	clog.FromContext(ctx).Infof("Pushing %s to origin", branch)

	if err := l.clone.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{refspec},
		Auth:       auth,
	}); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return &GitError{Op: "push", Err: err}
	}

	return nil
}

// PushTo pushes a local branch to an arbitrary remote URL, used to land
// formatting fixes on a contributor's fork branch.
func (l *Lease) PushTo(ctx context.Context, remoteURL, localBranch, remoteBranch string) error {
	auth, err := l.manager.auth()
	if err != nil {
		return fmt.Errorf("getting token: %w", err)
	}

	remote, err := l.clone.repo.CreateRemoteAnonymous(&gitconfig.RemoteConfig{
		Name: "anonymous",
		URLs: []string{remoteURL},
	})
	if err != nil {
		return &GitError{Op: "push", Err: err}
	}

	refspec := gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", localBranch, remoteBranch))
	clog.FromContext(ctx).Infof("Pushing %s to %s as %s", localBranch, remoteURL, remoteBranch)

	if err := remote.PushContext(ctx, &git.PushOptions{
		RemoteName: "anonymous",
		RefSpecs:   []gitconfig.RefSpec{refspec},
		Auth:       auth,
	}); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return &GitError{Op: "push", Err: err}
	}

	return nil
}

// DeleteBranch force-deletes a local branch. Callers treat failures as
// best-effort cleanup and only log them.
func (l *Lease) DeleteBranch(name string) error {
	refName := plumbing.NewBranchReferenceName(name)
	if err := l.clone.repo.Storer.RemoveReference(refName); err != nil {
		return &GitError{Op: "branch delete", Err: err}
	}
	return nil
}

// Return resets the working tree and places the clone back into the
// manager's pool. A clone that cannot be reset is discarded.
func (l *Lease) Return(ctx context.Context) error {
	if err := resetClone(l.clone); err != nil {
		clog.FromContext(ctx).Warnf("Discarding clone after reset failure: %v", err)
		discardClone(l.clone)
		l.clone = nil
		return err
	}

	l.manager.releaseClone(l.clone)
	l.clone = nil
	l.manager = nil

	return nil
}
