/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package formatter decides whether files need reformatting and applies
// the formatter tool to the ones that do. The tool is an external
// binary invoked in check-only or write mode; check mode never mutates
// files.
package formatter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/chainguard-dev/clog"
)

const wouldReformatPrefix = "would reformat "

// runTool executes the formatter binary. Tests can override this to
// avoid requiring the tool on the host.
var runTool = defaultRunTool

// Outcome reports the result of a check pass. A clean outcome carries
// no files; a dirty outcome carries the paths that need rewriting in
// the order the tool reported them.
type Outcome struct {
	Files []string
}

// Clean reports whether no files need reformatting.
func (o Outcome) Clean() bool {
	return len(o.Files) == 0
}

// ToolError is returned when the formatter invocation itself fails, as
// opposed to reporting files that need rewriting.
type ToolError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("formatter: %v", e.Err)
	}
	return fmt.Sprintf("formatter exited %d: %s", e.ExitCode, strings.TrimSpace(e.Stderr))
}

func (e *ToolError) Unwrap() error { return e.Err }

// Engine invokes a single formatter binary over file sets rooted at a
// working tree.
type Engine struct {
	binary     string
	extensions []string
}

// New constructs an Engine for the given binary. With no explicit
// extensions the engine recognizes Python sources, matching black.
func New(binary string, extensions ...string) *Engine {
	if len(extensions) == 0 {
		extensions = []string{".py", ".pyi"}
	}
	return &Engine{binary: binary, extensions: extensions}
}

// Check runs the formatter in check-only mode inside dir. An empty path
// list checks the whole tree. Paths the tool does not recognize are
// treated as clean and never reach the tool.
func (e *Engine) Check(ctx context.Context, dir string, paths []string) (Outcome, error) {
	args := []string{"--check"}
	if len(paths) == 0 {
		args = append(args, ".")
	} else {
		paths = e.formattable(paths)
		if len(paths) == 0 {
			return Outcome{}, nil
		}
		args = append(args, paths...)
	}

	stderr, exitCode, err := runTool(ctx, dir, e.binary, args...)
	if err != nil {
		return Outcome{}, &ToolError{Err: err}
	}

	switch exitCode {
	case 0:
		return Outcome{}, nil
	case 1:
		files := parseWouldReformat(dir, stderr)
		if len(files) == 0 {
			// The tool flagged changes but reported no paths; fall back
			// to the checked set so Apply still targets something.
			files = paths
			if len(files) == 0 {
				files = []string{"."}
			}
		}
		clog.FromContext(ctx).With("files", len(files)).Info("Check found files needing reformat")
		return Outcome{Files: files}, nil
	default:
		return Outcome{}, &ToolError{ExitCode: exitCode, Stderr: string(stderr)}
	}
}

// Apply rewrites exactly the given paths in place. Callers must only
// pass paths a prior Check reported dirty.
func (e *Engine) Apply(ctx context.Context, dir string, paths []string) error {
	if len(paths) == 0 {
		return errors.New("apply requires at least one path")
	}

	stderr, exitCode, err := runTool(ctx, dir, e.binary, paths...)
	if err != nil {
		return &ToolError{Err: err}
	}
	if exitCode != 0 {
		return &ToolError{ExitCode: exitCode, Stderr: string(stderr)}
	}

	clog.FromContext(ctx).With("files", len(paths)).Info("Reformatted files")
	return nil
}

// formattable filters paths down to the extensions the tool handles.
func (e *Engine) formattable(paths []string) []string {
	var out []string
	for _, p := range paths {
		ext := strings.ToLower(filepath.Ext(p))
		for _, want := range e.extensions {
			if ext == want {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// parseWouldReformat extracts file paths from the tool's check-mode
// report, normalizing them relative to the working tree.
func parseWouldReformat(dir string, stderr []byte) []string {
	var files []string
	for _, line := range strings.Split(string(stderr), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, wouldReformatPrefix) {
			continue
		}
		path := strings.TrimPrefix(line, wouldReformatPrefix)
		if filepath.IsAbs(path) {
			if rel, err := filepath.Rel(dir, path); err == nil {
				path = rel
			}
		}
		files = append(files, filepath.ToSlash(strings.TrimPrefix(path, "./")))
	}
	return files
}

func defaultRunTool(ctx context.Context, dir, binary string, args ...string) ([]byte, int, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stderr.Bytes(), 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stderr.Bytes(), exitErr.ExitCode(), nil
	}
	return stderr.Bytes(), -1, err
}
