/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package workspace owns the on-disk git checkouts the bot formats.
// A Manager keeps a pool of clones of the target repository; each
// workflow run leases one exclusively and returns it reset, so no two
// runs ever share working-tree state.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"golang.org/x/oauth2"
)

const cloneDirPrefix = "formatbot-clone-"

// repoURL resolves the remote git URL for a repository. Tests override
// this to point at local filesystem remotes.
var repoURL = defaultRemoteURL

// Identity is the committer identity used for commits made in leased
// workspaces.
type Identity struct {
	Name  string
	Email string
}

// Repo identifies the repository a workspace tracks.
type Repo struct {
	Owner string
	Name  string
}

// Manager owns a pool of clones leased to workflow runs one at a time.
type Manager struct {
	tokenSource oauth2.TokenSource
	committer   Identity

	mu        sync.Mutex
	available []*clone
}

type clone struct {
	path string
	repo *git.Repository
}

// New constructs a Manager. The token source must allow cloning and
// pushing to the target repository.
func New(tokenSource oauth2.TokenSource, committer Identity) (*Manager, error) {
	if tokenSource == nil {
		return nil, errors.New("token source cannot be nil")
	}

	committer.Name = strings.TrimSpace(committer.Name)
	committer.Email = strings.TrimSpace(committer.Email)
	if committer.Name == "" || committer.Email == "" {
		return nil, errors.New("committer name and email cannot be empty")
	}

	return &Manager{
		tokenSource: tokenSource,
		committer:   committer,
	}, nil
}

// Lease hands out a clone of the repository prepared on a clean working
// tree, checked out at baseRef if the clone already has it. Callers
// must invoke Return to release the clone back to the pool.
func (m *Manager) Lease(ctx context.Context, repo Repo, baseRef string) (*Lease, error) {
	switch {
	case repo.Owner == "":
		return nil, errors.New("repository owner cannot be empty")
	case repo.Name == "":
		return nil, errors.New("repository name cannot be empty")
	case baseRef == "":
		return nil, errors.New("base ref cannot be empty")
	}

	cl, err := m.acquireClone(ctx, repo)
	if err != nil {
		return nil, err
	}

	if err := resetClone(cl); err != nil {
		clog.FromContext(ctx).Warnf("Discarding clone after reset failure: %v", err)
		discardClone(cl)
		return nil, err
	}

	return &Lease{
		manager: m,
		clone:   cl,
		repo:    repo,
		baseRef: baseRef,
	}, nil
}

// acquireClone returns a clone from the pool or creates a new one if
// the pool is empty. Clones are taken from the front while releaseClone
// appends to the back, so a problematic clone ages out rather than
// churning.
func (m *Manager) acquireClone(ctx context.Context, repo Repo) (*clone, error) {
	m.mu.Lock()
	if n := len(m.available); n > 0 {
		cl := m.available[0]
		m.available = m.available[1:]
		m.mu.Unlock()
		return cl, nil
	}
	m.mu.Unlock()

	return m.createClone(ctx, repo)
}

func (m *Manager) createClone(ctx context.Context, repo Repo) (*clone, error) {
	dir, err := os.MkdirTemp("", cloneDirPrefix)
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}

	remote := repoURL(repo)
	clog.FromContext(ctx).Infof("Cloning repository %s into %s", remote, dir)

	auth, err := m.auth()
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("getting token: %w", err)
	}

	gitRepo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:  remote,
		Auth: auth,
	})
	if err != nil {
		os.RemoveAll(dir)
		return nil, &GitError{Op: "clone", Err: err}
	}

	return &clone{path: dir, repo: gitRepo}, nil
}

func resetClone(cl *clone) error {
	worktree, err := cl.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}

	if err := worktree.Reset(&git.ResetOptions{Mode: git.HardReset}); err != nil {
		return fmt.Errorf("resetting worktree: %w", err)
	}

	if err := worktree.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return fmt.Errorf("cleaning worktree: %w", err)
	}

	return nil
}

// releaseClone returns a clone to the back of the pool.
func (m *Manager) releaseClone(cl *clone) {
	m.mu.Lock()
	m.available = append(m.available, cl)
	m.mu.Unlock()
}

func discardClone(cl *clone) {
	os.RemoveAll(cl.path)
}

func (m *Manager) auth() (*githttp.BasicAuth, error) {
	token, err := m.tokenSource.Token()
	if err != nil {
		return nil, err
	}

	return &githttp.BasicAuth{
		Username: "unused-when-using-access-tokens",
		Password: token.AccessToken,
	}, nil
}

func defaultRemoteURL(repo Repo) string {
	return fmt.Sprintf("https://github.com/%s/%s", repo.Owner, repo.Name)
}
