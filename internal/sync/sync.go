package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/schaermu/forkpatch/internal/config"
	"github.com/schaermu/forkpatch/internal/git"
	"github.com/schaermu/forkpatch/internal/patch"
	"github.com/schaermu/forkpatch/internal/syncerr"
	"github.com/schaermu/forkpatch/internal/version"
)

// Engine orchestrates the sync process
type Engine struct {
	cfg     *config.Config
	git     git.Client
	repoDir string
	logger  *slog.Logger
	dryRun  bool
	guard   *Guard
}

// NewEngine creates a new sync engine for the repository at repoDir
func NewEngine(cfg *config.Config, gitClient git.Client, repoDir string, logger *slog.Logger, dryRun bool) *Engine {
	return &Engine{
		cfg:     cfg,
		git:     gitClient,
		repoDir: repoDir,
		logger:  logger,
		dryRun:  dryRun,
		guard:   NewGuard(gitClient, logger),
	}
}

// Run executes the complete sync process. The returned report is never nil
// and describes how far the run got, even when an error is returned.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	report := &Report{Step: StepStart, DryRun: e.dryRun}

	v, err := version.Resolve(e.cfg.MetadataPath(e.repoDir))
	if err != nil {
		report.Outcome = OutcomeBlockedMissingVersion
		return report, err
	}
	if !version.IsSemver(v) {
		e.logger.Warn("project version is not a semantic version, using it verbatim", "version", v)
	}
	report.Version = v
	branch := version.BranchName(e.cfg.Branch.Prefix, v)
	report.Branch.Branch = branch

	startBranch, err := e.git.CurrentBranch(ctx)
	if err != nil {
		report.Outcome = OutcomeBlockedUnexpectedError
		return report, fmt.Errorf("failed to determine current branch: %w", err)
	}
	report.Branch.StartBranch = startBranch

	e.logger.Info("starting sync",
		"version", v,
		"branch", branch,
		"start_branch", startBranch,
		"upstream", e.cfg.UpstreamRef(),
		"dry_run", e.dryRun)

	// check for dry-run mode
	if e.dryRun {
		return e.plan(ctx, report)
	}

	report.Stash, err = e.guard.Save(ctx)
	if err != nil {
		report.Outcome = OutcomeBlockedUnexpectedError
		return report, err
	}
	report.StashLabel = e.guard.Label()

	syncer := NewSynchronizer(e.cfg, e.git, e.logger)
	branchReport, err := syncer.Sync(ctx, branch, startBranch)
	report.Branch = branchReport
	report.Step = syncer.Step()
	if err != nil {
		return e.fail(ctx, report, err)
	}

	results, err := patch.ApplyAll(e.repoDir, e.cfg.Patches)
	if err != nil {
		return e.fail(ctx, report, err)
	}
	for i, res := range results {
		e.logger.Info("patch processed",
			"patch", res.Name,
			"target", res.Target,
			"status", res.Outcome.Status.String(),
			"import", res.Outcome.Import.String())
		if res.Outcome.Import == patch.ImportSkippedNoAnchor {
			e.logger.Warn("anchor line not found, import not inserted; check the patch against the new upstream file",
				"patch", res.Name, "anchor", e.cfg.Patches[i].Anchor)
		}
	}
	report.Patches = results
	report.Step = StepPatched

	committed, err := e.commitPatches(ctx, report.Patches)
	if err != nil {
		return e.fail(ctx, report, err)
	}
	report.Committed = committed
	report.Step = StepCommitted

	report.Restore = e.guard.Restore(ctx)
	report.Step = StepRestored

	report.Step = StepDone
	report.Outcome = OutcomeCompleted
	e.logger.Info("sync completed successfully", "branch", branch, "committed", committed)
	return report, nil
}

// commitPatches stages the patched files that git reports as changed and
// commits them together.
func (e *Engine) commitPatches(ctx context.Context, results []patch.Result) (bool, error) {
	var changed []string
	seen := make(map[string]bool)
	for _, res := range results {
		if !res.Written || seen[res.Target] {
			continue
		}
		seen[res.Target] = true

		status, err := e.git.Status(ctx, res.Target)
		if err != nil {
			return false, fmt.Errorf("failed to check status of %s: %w", res.Target, err)
		}
		if len(status) > 0 {
			changed = append(changed, res.Target)
		}
	}

	if len(changed) == 0 {
		e.logger.Info("no patch changes to commit")
		return false, nil
	}

	if err := e.git.Add(ctx, changed...); err != nil {
		return false, fmt.Errorf("failed to stage patched files: %w", err)
	}
	if err := e.git.Commit(ctx, e.cfg.Commit.Message); err != nil {
		return false, fmt.Errorf("failed to commit patched files: %w", err)
	}
	e.logger.Info("committed patched files", "files", changed, "message", e.cfg.Commit.Message)
	return true, nil
}

// fail records the outcome for err and decides what happens to the stash.
// After an upstream conflict the stash stays put: popping it onto a
// conflicted index would mix the operator's work into the merge.
func (e *Engine) fail(ctx context.Context, report *Report, err error) (*Report, error) {
	report.Outcome = outcomeFor(report.Step, err)

	if syncerr.KindOf(err) == syncerr.KindConflict {
		if label := e.guard.Keep(); label != "" {
			report.Restore = RestoreKept
			e.logger.Warn("local changes remain stashed until the conflict is resolved",
				"label", label)
		}
		return report, err
	}

	report.Restore = e.guard.Restore(ctx)
	return report, err
}

// outcomeFor maps a fatal error to the terminal outcome of the run
func outcomeFor(step Step, err error) Outcome {
	switch syncerr.KindOf(err) {
	case syncerr.KindConfig:
		if step == StepStart {
			return OutcomeBlockedMissingRemote
		}
		return OutcomeBlockedMissingTargetFile
	case syncerr.KindNetwork:
		return OutcomeBlockedFetchFailed
	case syncerr.KindConflict:
		return OutcomeBlockedMergeConflict
	default:
		return OutcomeBlockedUnexpectedError
	}
}

// plan reports what a run would do without changing anything
func (e *Engine) plan(ctx context.Context, report *Report) (*Report, error) {
	syncer := NewSynchronizer(e.cfg, e.git, e.logger)
	if err := syncer.CheckRemote(ctx); err != nil {
		report.Outcome = outcomeFor(StepStart, err)
		return report, err
	}

	exists, err := e.git.BranchExists(ctx, report.Branch.Branch)
	if err != nil {
		report.Outcome = OutcomeBlockedUnexpectedError
		return report, fmt.Errorf("failed to check branch %s: %w", report.Branch.Branch, err)
	}
	report.Branch.Created = !exists
	if exists {
		e.logger.Info("[dry-run] would switch to existing branch", "branch", report.Branch.Branch)
	} else {
		e.logger.Info("[dry-run] would create branch", "branch", report.Branch.Branch, "from", e.cfg.UpstreamRef())
	}
	e.logger.Info("[dry-run] would merge", "from", e.cfg.UpstreamRef(), "into", report.Branch.Branch)

	for _, d := range e.cfg.Patches {
		data, err := os.ReadFile(filepath.Join(e.repoDir, d.Target))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				e.logger.Warn("[dry-run] patch target missing in current checkout", "patch", d.Name, "target", d.Target)
				continue
			}
			report.Outcome = OutcomeBlockedUnexpectedError
			return report, fmt.Errorf("failed to read %s: %w", d.Target, err)
		}
		_, out := patch.Transform(string(data), d)
		report.Patches = append(report.Patches, patch.Result{Name: d.Name, Target: d.Target, Outcome: out})
		e.logger.Info("[dry-run] patch status in current checkout",
			"patch", d.Name, "status", out.Status.String(), "import", out.Import.String())
	}

	e.logger.Info("dry-run complete, no changes applied")
	report.Outcome = OutcomeCompleted
	return report, nil
}
