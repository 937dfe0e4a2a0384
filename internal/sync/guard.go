package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/schaermu/forkpatch/internal/git"
)

// stashLabelPrefix identifies stash entries created by forkpatch
const stashLabelPrefix = "forkpatch-autostash-"

// Guard saves uncommitted work before the sync and restores it afterwards.
// At most one snapshot is taken per Guard.
type Guard struct {
	git    git.Client
	logger *slog.Logger
	now    func() time.Time
	label  string
}

// NewGuard creates a guard for the repository behind gitClient
func NewGuard(gitClient git.Client, logger *slog.Logger) *Guard {
	return &Guard{
		git:    gitClient,
		logger: logger,
		now:    time.Now,
	}
}

// Label returns the label of the saved snapshot, or "" if none was taken
func (g *Guard) Label() string {
	return g.label
}

// Save stashes tracked and untracked modifications. A clean tree is not an
// error.
func (g *Guard) Save(ctx context.Context) (SaveResult, error) {
	if g.label != "" {
		return SaveSkipped, fmt.Errorf("snapshot %s already taken", g.label)
	}

	status, err := g.git.Status(ctx)
	if err != nil {
		return SaveSkipped, fmt.Errorf("failed to inspect working tree: %w", err)
	}
	if len(status) == 0 {
		g.logger.Debug("working tree clean, nothing to stash")
		return SaveSkipped, nil
	}

	label := stashLabelPrefix + g.now().UTC().Format("20060102T150405Z")
	g.logger.Info("stashing local changes", "label", label, "paths", len(status))
	if err := g.git.StashPush(ctx, label); err != nil {
		return SaveSkipped, fmt.Errorf("failed to stash local changes: %w", err)
	}

	g.label = label
	return SaveStashed, nil
}

// Restore pops the snapshot taken by Save. Failures are logged and reported
// through the result, never returned: the operator recovers manually.
func (g *Guard) Restore(ctx context.Context) RestoreResult {
	if g.label == "" {
		return RestoreSkipped
	}
	label := g.label

	entries, err := g.git.StashList(ctx)
	if err != nil {
		g.logger.Warn("could not list stash entries, restore manually with git stash pop",
			"label", label, "error", err)
		g.label = ""
		return RestoreFailed
	}

	ref := findStash(entries, label)
	if ref == "" {
		g.logger.Warn("stash entry not found, nothing restored", "label", label)
		g.label = ""
		return RestoreMissing
	}

	if err := g.git.StashPop(ctx, ref); err != nil {
		g.label = ""
		if errors.Is(err, git.ErrStashConflict) {
			g.logger.Warn("restoring local changes produced conflicts; resolve them and drop the stash entry manually",
				"label", label, "ref", ref)
			return RestoreConflict
		}
		g.logger.Warn("failed to restore local changes; restore manually with git stash pop",
			"label", label, "ref", ref, "error", err)
		return RestoreFailed
	}

	g.logger.Info("restored local changes", "label", label)
	g.label = ""
	return RestoreApplied
}

// Keep abandons the snapshot without restoring it, so it stays in the stash
// list for the operator. It returns the label, or "" if nothing was saved.
func (g *Guard) Keep() string {
	label := g.label
	g.label = ""
	return label
}

func findStash(entries []git.StashEntry, label string) string {
	for _, e := range entries {
		if strings.HasSuffix(e.Subject, ": "+label) || e.Subject == label {
			return e.Ref
		}
	}
	return ""
}
