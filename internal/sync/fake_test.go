package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/schaermu/forkpatch/internal/git"
)

// fakeGit implements git.Client for testing. Every call is recorded as a
// single string such as "merge upstream/main".
type fakeGit struct {
	calls []string

	remotes       []string
	branches      map[string]bool
	current       string
	fetchErr      error
	checkoutErr   error
	mergeErr      map[string]error
	mergeUpToDate map[string]bool
	merging       bool
	abortErr      error
	status        []string
	pathStatus    map[string][]string
	stash         []git.StashEntry
	pushErr       error
	listErr       error
	popErr        error
	commitErr     error
}

func newFakeGit() *fakeGit {
	return &fakeGit{
		remotes:       []string{"upstream"},
		branches:      map[string]bool{"main": true},
		current:       "main",
		mergeErr:      map[string]error{},
		mergeUpToDate: map[string]bool{},
		pathStatus:    map[string][]string{},
	}
}

func (f *fakeGit) record(format string, args ...any) {
	f.calls = append(f.calls, strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (f *fakeGit) called(prefix string) bool {
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func (f *fakeGit) HasRemote(_ context.Context, name string) (bool, error) {
	f.record("remote %s", name)
	for _, r := range f.remotes {
		if r == name {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeGit) Fetch(_ context.Context, remote string) error {
	f.record("fetch %s", remote)
	return f.fetchErr
}

func (f *fakeGit) CurrentBranch(_ context.Context) (string, error) {
	return f.current, nil
}

func (f *fakeGit) BranchExists(_ context.Context, name string) (bool, error) {
	return f.branches[name], nil
}

func (f *fakeGit) Checkout(_ context.Context, name string) error {
	f.record("checkout %s", name)
	if f.checkoutErr != nil {
		return f.checkoutErr
	}
	f.current = name
	return nil
}

func (f *fakeGit) CreateBranch(_ context.Context, name, startRef string) error {
	f.record("create %s %s", name, startRef)
	f.branches[name] = true
	f.current = name
	return nil
}

func (f *fakeGit) Merge(_ context.Context, ref string) (bool, error) {
	f.record("merge %s", ref)
	if err := f.mergeErr[ref]; err != nil {
		f.merging = true
		return false, err
	}
	return f.mergeUpToDate[ref], nil
}

func (f *fakeGit) AbortMerge(_ context.Context) error {
	f.record("merge --abort")
	if f.abortErr != nil {
		return f.abortErr
	}
	f.merging = false
	return nil
}

func (f *fakeGit) IsMerging(_ context.Context) (bool, error) {
	return f.merging, nil
}

func (f *fakeGit) Status(_ context.Context, paths ...string) ([]string, error) {
	if len(paths) == 0 {
		return f.status, nil
	}
	var out []string
	for _, p := range paths {
		out = append(out, f.pathStatus[p]...)
	}
	return out, nil
}

func (f *fakeGit) StashPush(_ context.Context, label string) error {
	f.record("stash push %s", label)
	if f.pushErr != nil {
		return f.pushErr
	}
	f.stash = append([]git.StashEntry{{Ref: "stash@{0}", Subject: "On " + f.current + ": " + label}}, f.stash...)
	f.status = nil
	return nil
}

func (f *fakeGit) StashList(_ context.Context) ([]git.StashEntry, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	entries := make([]git.StashEntry, len(f.stash))
	for i, e := range f.stash {
		entries[i] = git.StashEntry{Ref: fmt.Sprintf("stash@{%d}", i), Subject: e.Subject}
	}
	return entries, nil
}

func (f *fakeGit) StashPop(_ context.Context, ref string) error {
	f.record("stash pop %s", ref)
	if f.popErr != nil {
		return f.popErr
	}
	var idx int
	if _, err := fmt.Sscanf(ref, "stash@{%d}", &idx); err != nil || idx >= len(f.stash) {
		return fmt.Errorf("no such stash %s", ref)
	}
	f.stash = append(f.stash[:idx], f.stash[idx+1:]...)
	return nil
}

func (f *fakeGit) Add(_ context.Context, paths ...string) error {
	f.record("add %s", strings.Join(paths, " "))
	return nil
}

func (f *fakeGit) Commit(_ context.Context, message string) error {
	f.record("commit %s", message)
	return f.commitErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}
