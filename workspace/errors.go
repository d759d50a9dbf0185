/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package workspace

import (
	"errors"
	"fmt"
)

// ErrBranchExists indicates a work branch name collides with a branch
// left by a prior, still-open run.
var ErrBranchExists = errors.New("branch already exists")

// ErrNothingToCommit indicates a commit was requested with a clean
// working tree.
var ErrNothingToCommit = errors.New("nothing to commit")

// GitError wraps a failed git operation. Any GitError is fatal for the
// remainder of a workflow run.
type GitError struct {
	Op  string
	Err error
}

func (e *GitError) Error() string {
	return fmt.Sprintf("git %s: %v", e.Op, e.Err)
}

func (e *GitError) Unwrap() error { return e.Err }

// CheckoutError is the branch-checkout specialization of a git failure.
// Orchestrators match on it to post a user-facing explanation before
// propagating.
type CheckoutError struct {
	Branch string
	Err    error
}

func (e *CheckoutError) Error() string {
	return fmt.Sprintf("checking out branch %q: %v", e.Branch, e.Err)
}

func (e *CheckoutError) Unwrap() error { return e.Err }
