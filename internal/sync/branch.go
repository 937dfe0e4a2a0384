package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/schaermu/forkpatch/internal/config"
	"github.com/schaermu/forkpatch/internal/git"
	"github.com/schaermu/forkpatch/internal/syncerr"
)

// Synchronizer brings the sync branch up to date with upstream
type Synchronizer struct {
	cfg    *config.Config
	git    git.Client
	logger *slog.Logger

	// step is advanced as the synchronizer progresses
	step Step
}

// NewSynchronizer creates a synchronizer
func NewSynchronizer(cfg *config.Config, gitClient git.Client, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		cfg:    cfg,
		git:    gitClient,
		logger: logger,
		step:   StepStart,
	}
}

// Step returns the last state reached
func (s *Synchronizer) Step() Step {
	return s.step
}

// CheckRemote verifies that the upstream remote is configured
func (s *Synchronizer) CheckRemote(ctx context.Context) error {
	remote := s.cfg.Upstream.Remote
	ok, err := s.git.HasRemote(ctx, remote)
	if err != nil {
		return fmt.Errorf("failed to list remotes: %w", err)
	}
	if !ok {
		return syncerr.Config("check remote",
			fmt.Sprintf("add it with: git remote add %s <url-of-the-upstream-repository>", remote),
			fmt.Errorf("remote %q is not configured", remote))
	}
	s.step = StepRemoteChecked
	return nil
}

// Sync runs the full branch synchronisation: remote check, fetch, branch
// checkout or creation, optional merge of startBranch and the upstream merge.
func (s *Synchronizer) Sync(ctx context.Context, branch, startBranch string) (BranchReport, error) {
	report := BranchReport{Branch: branch, StartBranch: startBranch}

	if err := s.CheckRemote(ctx); err != nil {
		return report, err
	}

	remote := s.cfg.Upstream.Remote
	s.logger.Info("fetching upstream", "remote", remote)
	if err := s.git.Fetch(ctx, remote); err != nil {
		return report, syncerr.Network("fetch "+remote,
			fmt.Sprintf("check network access and the URL of remote %q (git remote -v)", remote),
			err)
	}
	s.step = StepFetched

	created, err := s.prepareBranch(ctx, branch)
	if err != nil {
		return report, err
	}
	report.Created = created
	s.step = StepBranchReady

	report.PriorMerge, err = s.mergeStartBranch(ctx, branch, startBranch)
	if err != nil {
		return report, err
	}
	s.step = StepOptionalMerged

	report.UpstreamMerge, err = s.mergeUpstream(ctx, branch)
	if err != nil {
		return report, err
	}
	s.step = StepUpstreamMerged

	return report, nil
}

// prepareBranch switches to branch, creating it from upstream if needed
func (s *Synchronizer) prepareBranch(ctx context.Context, branch string) (bool, error) {
	exists, err := s.git.BranchExists(ctx, branch)
	if err != nil {
		return false, fmt.Errorf("failed to check branch %s: %w", branch, err)
	}

	if exists {
		s.logger.Info("switching to existing branch", "branch", branch)
		if err := s.git.Checkout(ctx, branch); err != nil {
			return false, fmt.Errorf("failed to switch to %s: %w", branch, err)
		}
		return false, nil
	}

	startRef := s.cfg.UpstreamRef()
	s.logger.Info("creating branch", "branch", branch, "from", startRef)
	if err := s.git.CreateBranch(ctx, branch, startRef); err != nil {
		return false, fmt.Errorf("failed to create %s from %s: %w", branch, startRef, err)
	}
	return true, nil
}

// mergeStartBranch merges the branch the run started on. It is best effort:
// a conflict is aborted so the upstream merge starts from a clean index.
func (s *Synchronizer) mergeStartBranch(ctx context.Context, branch, startBranch string) (MergeResult, error) {
	if startBranch == "" || startBranch == branch || startBranch == s.cfg.Branch.Primary {
		return MergeSkipped, nil
	}

	s.logger.Info("merging starting branch", "from", startBranch, "into", branch)
	upToDate, err := s.git.Merge(ctx, startBranch)
	if err == nil {
		if upToDate {
			return MergeUpToDate, nil
		}
		return MergeClean, nil
	}

	result := MergeFailed
	if errors.Is(err, git.ErrMergeConflict) {
		result = MergeConflict
	}
	s.logger.Warn("could not merge starting branch, continuing without it",
		"from", startBranch, "error", err)

	merging, merr := s.git.IsMerging(ctx)
	if merr != nil {
		return result, fmt.Errorf("failed to inspect merge state: %w", merr)
	}
	if merging {
		if aerr := s.git.AbortMerge(ctx); aerr != nil {
			return result, syncerr.Conflict("abort merge of "+startBranch,
				"resolve or abort the merge manually (git merge --abort), then rerun",
				aerr)
		}
		s.logger.Info("aborted merge of starting branch", "from", startBranch)
	}

	return result, nil
}

// mergeUpstream merges the upstream integration branch. A conflict is fatal
// and is left in place for the operator.
func (s *Synchronizer) mergeUpstream(ctx context.Context, branch string) (MergeResult, error) {
	ref := s.cfg.UpstreamRef()
	s.logger.Info("merging upstream", "from", ref, "into", branch)

	upToDate, err := s.git.Merge(ctx, ref)
	if err != nil {
		if errors.Is(err, git.ErrMergeConflict) {
			return MergeConflict, syncerr.Conflict("merge "+ref,
				"resolve the conflicts, git add the files, git commit, then rerun forkpatch",
				err)
		}
		return MergeFailed, fmt.Errorf("failed to merge %s: %w", ref, err)
	}
	if upToDate {
		return MergeUpToDate, nil
	}
	return MergeClean, nil
}
