package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

var (
	// ErrMergeConflict is returned when a merge stops with unresolved conflicts
	ErrMergeConflict = errors.New("merge conflict")
	// ErrStashConflict is returned when popping a stash produces conflicts
	ErrStashConflict = errors.New("stash conflict")
)

// StashEntry is one line of the stash list
type StashEntry struct {
	Ref     string // e.g. stash@{0}
	Subject string // e.g. "On main: forkpatch-autostash-..."
}

// Client provides the git operations needed to sync a fork
type Client interface {
	// HasRemote reports whether a remote with the given name is configured
	HasRemote(ctx context.Context, name string) (bool, error)
	// Fetch fetches all refs from remote
	Fetch(ctx context.Context, remote string) error
	// CurrentBranch returns the checked out branch, or "" for a detached HEAD
	CurrentBranch(ctx context.Context) (string, error)
	// BranchExists reports whether a local branch exists
	BranchExists(ctx context.Context, name string) (bool, error)
	// Checkout switches to an existing branch
	Checkout(ctx context.Context, name string) error
	// CreateBranch creates name from startRef and switches to it
	CreateBranch(ctx context.Context, name, startRef string) error
	// Merge merges ref into the current branch. upToDate is true when there
	// was nothing to merge. Conflicts are reported as ErrMergeConflict.
	Merge(ctx context.Context, ref string) (upToDate bool, err error)
	// AbortMerge abandons an in-progress merge
	AbortMerge(ctx context.Context) error
	// IsMerging reports whether a merge is in progress
	IsMerging(ctx context.Context) (bool, error)
	// Status returns porcelain status lines, optionally limited to paths
	Status(ctx context.Context, paths ...string) ([]string, error)
	// StashPush stashes tracked and untracked changes under label
	StashPush(ctx context.Context, label string) error
	// StashList returns the stash entries, newest first
	StashList(ctx context.Context) ([]StashEntry, error)
	// StashPop applies and drops a stash entry. Conflicts are reported as
	// ErrStashConflict and leave the entry in place.
	StashPop(ctx context.Context, ref string) error
	// Add stages paths
	Add(ctx context.Context, paths ...string) error
	// Commit records staged changes
	Commit(ctx context.Context, message string) error
}

// ShellClient implements Client by shelling out to the git command
type ShellClient struct {
	dir       string
	inspector *Inspector
}

// NewShellClient creates a git client operating on the repository at dir.
// Read-only queries go through go-git when the repository can be opened
// with it.
func NewShellClient(dir string) *ShellClient {
	c := &ShellClient{dir: dir}
	if in, err := OpenInspector(dir); err == nil {
		c.inspector = in
	}
	return c
}

// HasRemote reports whether the named remote is configured
func (c *ShellClient) HasRemote(ctx context.Context, name string) (bool, error) {
	if c.inspector != nil {
		return c.inspector.HasRemote(name)
	}

	out, err := c.output(ctx, "remote")
	if err != nil {
		return false, fmt.Errorf("git remote failed: %w", err)
	}
	for _, line := range splitLines(out) {
		if line == name {
			return true, nil
		}
	}
	return false, nil
}

// Fetch fetches all refs from remote
func (c *ShellClient) Fetch(ctx context.Context, remote string) error {
	if err := c.run(ctx, "fetch", remote); err != nil {
		return fmt.Errorf("git fetch failed: %w", err)
	}
	return nil
}

// CurrentBranch returns the checked out branch name
func (c *ShellClient) CurrentBranch(ctx context.Context) (string, error) {
	if c.inspector != nil {
		return c.inspector.HeadBranch()
	}

	out, err := c.output(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}
	if out == "HEAD" {
		return "", nil
	}
	return out, nil
}

// BranchExists reports whether refs/heads/name exists
func (c *ShellClient) BranchExists(ctx context.Context, name string) (bool, error) {
	if c.inspector != nil {
		return c.inspector.HasLocalBranch(name)
	}

	cmd := c.command(ctx, "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return false, nil
		}
		return false, fmt.Errorf("git show-ref failed: %w", err)
	}
	return true, nil
}

// Checkout switches to an existing branch
func (c *ShellClient) Checkout(ctx context.Context, name string) error {
	if err := c.run(ctx, "checkout", name); err != nil {
		return fmt.Errorf("git checkout %s failed: %w", name, err)
	}
	return nil
}

// CreateBranch creates name at startRef and checks it out
func (c *ShellClient) CreateBranch(ctx context.Context, name, startRef string) error {
	if err := c.run(ctx, "checkout", "-b", name, startRef); err != nil {
		return fmt.Errorf("git checkout -b %s %s failed: %w", name, startRef, err)
	}
	return nil
}

// Merge merges ref into the current branch
func (c *ShellClient) Merge(ctx context.Context, ref string) (bool, error) {
	output, err := c.command(ctx, "merge", "--no-edit", ref).CombinedOutput()
	if err == nil {
		return strings.Contains(string(output), "Already up to date"), nil
	}

	conflicts, cerr := c.unmergedPaths(ctx)
	if cerr == nil && len(conflicts) > 0 {
		return false, fmt.Errorf("merging %s: %w in %s", ref, ErrMergeConflict, strings.Join(conflicts, ", "))
	}
	if bytes.Contains(output, []byte("CONFLICT")) {
		return false, fmt.Errorf("merging %s: %w: %s", ref, ErrMergeConflict, oneLine(string(output)))
	}

	return false, fmt.Errorf("git merge %s failed: %w: %s", ref, err, oneLine(string(output)))
}

// AbortMerge runs git merge --abort
func (c *ShellClient) AbortMerge(ctx context.Context) error {
	if err := c.run(ctx, "merge", "--abort"); err != nil {
		return fmt.Errorf("git merge --abort failed: %w", err)
	}
	return nil
}

// IsMerging reports whether MERGE_HEAD exists
func (c *ShellClient) IsMerging(ctx context.Context) (bool, error) {
	cmd := c.command(ctx, "rev-parse", "-q", "--verify", "MERGE_HEAD")
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return false, nil
		}
		return false, fmt.Errorf("git rev-parse failed: %w", err)
	}
	return true, nil
}

// Status returns the porcelain status lines
func (c *ShellClient) Status(ctx context.Context, paths ...string) ([]string, error) {
	args := []string{"status", "--porcelain"}
	if len(paths) > 0 {
		args = append(args, "--")
		args = append(args, paths...)
	}

	out, err := c.output(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("git status failed: %w", err)
	}
	return splitLines(out), nil
}

// StashPush stashes all local modifications, untracked files included
func (c *ShellClient) StashPush(ctx context.Context, label string) error {
	if err := c.run(ctx, "stash", "push", "--include-untracked", "-m", label); err != nil {
		return fmt.Errorf("git stash push failed: %w", err)
	}
	return nil
}

// StashList returns the stash entries
func (c *ShellClient) StashList(ctx context.Context) ([]StashEntry, error) {
	out, err := c.output(ctx, "stash", "list", "--format=%gd%x00%gs")
	if err != nil {
		return nil, fmt.Errorf("git stash list failed: %w", err)
	}
	return parseStashList(out), nil
}

// StashPop applies and removes the given stash entry
func (c *ShellClient) StashPop(ctx context.Context, ref string) error {
	output, err := c.command(ctx, "stash", "pop", ref).CombinedOutput()
	if err == nil {
		return nil
	}
	if bytes.Contains(output, []byte("CONFLICT")) || bytes.Contains(output, []byte("conflict")) {
		return fmt.Errorf("popping %s: %w: %s", ref, ErrStashConflict, oneLine(string(output)))
	}
	return fmt.Errorf("git stash pop %s failed: %w: %s", ref, err, oneLine(string(output)))
}

// Add stages the given paths
func (c *ShellClient) Add(ctx context.Context, paths ...string) error {
	args := append([]string{"add", "--"}, paths...)
	if err := c.run(ctx, args...); err != nil {
		return fmt.Errorf("git add failed: %w", err)
	}
	return nil
}

// Commit records the staged changes with message
func (c *ShellClient) Commit(ctx context.Context, message string) error {
	if err := c.run(ctx, "commit", "-m", message); err != nil {
		return fmt.Errorf("git commit failed: %w", err)
	}
	return nil
}

func (c *ShellClient) unmergedPaths(ctx context.Context) ([]string, error) {
	out, err := c.output(ctx, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// command builds a git command bound to the repository. Output is forced to
// the C locale so conflict markers can be matched.
func (c *ShellClient) command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", c.dir}, args...)...)
	cmd.Env = append(os.Environ(), "LC_ALL=C", "GIT_TERMINAL_PROMPT=0")
	return cmd
}

// run executes a command and returns an error with its output on failure
func (c *ShellClient) run(ctx context.Context, args ...string) error {
	output, err := c.command(ctx, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, oneLine(string(output)))
	}
	return nil
}

// output executes a command and returns its trimmed stdout
func (c *ShellClient) output(ctx context.Context, args ...string) (string, error) {
	cmd := c.command(ctx, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%w: %s", err, oneLine(stderr.String()))
	}
	return strings.TrimRight(string(out), "\r\n"), nil
}

func parseStashList(out string) []StashEntry {
	var entries []StashEntry
	for _, line := range splitLines(out) {
		ref, subject, ok := strings.Cut(line, "\x00")
		if !ok {
			continue
		}
		entries = append(entries, StashEntry{Ref: ref, Subject: subject})
	}
	return entries
}

// oneLine folds multi-line git output into a single line
func oneLine(out string) string {
	return strings.Join(splitLines(strings.TrimSpace(out)), "; ")
}

func splitLines(out string) []string {
	if out == "" {
		return nil
	}
	lines := strings.Split(out, "\n")
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) != "" {
			result = append(result, line)
		}
	}
	return result
}
