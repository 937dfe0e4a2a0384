package sync

import (
	"fmt"

	"github.com/schaermu/forkpatch/internal/patch"
)

// Step is a point in the sync state machine
type Step string

const (
	StepStart          Step = "start"
	StepRemoteChecked  Step = "remote-checked"
	StepFetched        Step = "fetched"
	StepBranchReady    Step = "branch-ready"
	StepOptionalMerged Step = "optional-merge-attempted"
	StepUpstreamMerged Step = "upstream-merged"
	StepPatched        Step = "patched"
	StepCommitted      Step = "committed"
	StepRestored       Step = "restored"
	StepDone           Step = "done"
)

// Outcome is the terminal state of a run
type Outcome string

const (
	OutcomeCompleted                Outcome = "completed"
	OutcomeBlockedMissingVersion    Outcome = "blocked-missing-version"
	OutcomeBlockedMissingRemote     Outcome = "blocked-missing-remote"
	OutcomeBlockedFetchFailed       Outcome = "blocked-fetch-failed"
	OutcomeBlockedMergeConflict     Outcome = "blocked-merge-conflict"
	OutcomeBlockedMissingTargetFile Outcome = "blocked-missing-target-file"
	OutcomeBlockedUnexpectedError   Outcome = "blocked-unexpected-error"
)

// MergeResult describes a merge attempt
type MergeResult int

const (
	MergeSkipped MergeResult = iota
	MergeClean
	MergeUpToDate
	MergeConflict // aborted, run continued
	MergeFailed   // failed for a reason other than a conflict, run continued
)

func (r MergeResult) String() string {
	switch r {
	case MergeSkipped:
		return "skipped"
	case MergeClean:
		return "merged"
	case MergeUpToDate:
		return "up to date"
	case MergeConflict:
		return "conflict (aborted)"
	case MergeFailed:
		return "failed"
	default:
		return fmt.Sprintf("MergeResult(%d)", int(r))
	}
}

// SaveResult describes what Guard.Save did
type SaveResult int

const (
	SaveSkipped SaveResult = iota // nothing to save
	SaveStashed
)

func (r SaveResult) String() string {
	switch r {
	case SaveSkipped:
		return "nothing to stash"
	case SaveStashed:
		return "stashed"
	default:
		return fmt.Sprintf("SaveResult(%d)", int(r))
	}
}

// RestoreResult describes what Guard.Restore did
type RestoreResult int

const (
	RestoreSkipped  RestoreResult = iota // nothing was saved
	RestoreApplied                       // stash popped cleanly
	RestoreMissing                       // stash entry disappeared
	RestoreConflict                      // pop conflicted, entry kept for manual recovery
	RestoreKept                          // left in place on purpose after a fatal error
	RestoreFailed                        // stash could not be listed or popped, entry kept
)

func (r RestoreResult) String() string {
	switch r {
	case RestoreSkipped:
		return "nothing to restore"
	case RestoreApplied:
		return "restored"
	case RestoreMissing:
		return "stash entry not found"
	case RestoreConflict:
		return "conflict (stash kept)"
	case RestoreKept:
		return "kept for manual restore"
	case RestoreFailed:
		return "failed (stash kept)"
	default:
		return fmt.Sprintf("RestoreResult(%d)", int(r))
	}
}

// BranchReport describes what the synchronizer did
type BranchReport struct {
	Branch        string
	Created       bool
	StartBranch   string
	PriorMerge    MergeResult
	UpstreamMerge MergeResult
}

// Report summarizes a run
type Report struct {
	Version    string
	Branch     BranchReport
	Stash      SaveResult
	StashLabel string
	Restore    RestoreResult
	Patches    []patch.Result
	Committed  bool
	DryRun     bool
	Step       Step
	Outcome    Outcome
}

// AllAlreadyApplied reports whether every patch was found already applied
func (r *Report) AllAlreadyApplied() bool {
	if len(r.Patches) == 0 {
		return false
	}
	for _, p := range r.Patches {
		if p.Outcome.Status != patch.StatusAlreadyApplied {
			return false
		}
	}
	return true
}
