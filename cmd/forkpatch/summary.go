package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/schaermu/forkpatch/internal/patch"
	"github.com/schaermu/forkpatch/internal/sync"
	"github.com/schaermu/forkpatch/internal/syncerr"
)

var (
	labelColor = color.New(color.Bold)
	okColor    = color.New(color.FgGreen)
	warnColor  = color.New(color.FgYellow)
	errColor   = color.New(color.FgRed, color.Bold)
)

// printSummary writes the end-of-run report
func printSummary(w io.Writer, r *sync.Report) {
	title := "Sync complete"
	if r.DryRun {
		title = "Dry run"
	}
	_, _ = okColor.Fprintln(w, title)

	line(w, "version", r.Version)

	branch := r.Branch.Branch + " (existing)"
	if r.Branch.Created {
		branch = r.Branch.Branch + " (created)"
		if r.DryRun {
			branch = r.Branch.Branch + " (would be created)"
		}
	}
	line(w, "branch", branch)

	if r.DryRun {
		for _, p := range r.Patches {
			line(w, "patch", fmt.Sprintf("%s: %s", p.Name, p.Outcome.Status))
		}
		return
	}

	if r.Branch.PriorMerge != sync.MergeSkipped {
		merge := fmt.Sprintf("%s %s", r.Branch.StartBranch, r.Branch.PriorMerge)
		if r.Branch.PriorMerge == sync.MergeConflict || r.Branch.PriorMerge == sync.MergeFailed {
			warnLine(w, "merged from", merge)
		} else {
			line(w, "merged from", merge)
		}
	}
	line(w, "upstream", r.Branch.UpstreamMerge.String())

	for _, p := range r.Patches {
		detail := fmt.Sprintf("%s (%s): %s", p.Name, p.Target, p.Outcome.Status)
		if p.Outcome.Status == patch.StatusApplied {
			detail += ", import " + p.Outcome.Import.String()
		}
		if p.Outcome.Import == patch.ImportSkippedNoAnchor {
			warnLine(w, "patch", detail)
		} else {
			line(w, "patch", detail)
		}
	}

	switch {
	case r.Committed:
		line(w, "commit", "created")
	case r.AllAlreadyApplied():
		line(w, "commit", "none (already applied)")
	default:
		line(w, "commit", "none (no changes)")
	}

	if r.Stash == sync.SaveStashed {
		stash := r.Restore.String()
		if r.Restore == sync.RestoreApplied {
			line(w, "local changes", stash)
		} else {
			warnLine(w, "local changes", fmt.Sprintf("%s, label %s", stash, r.StashLabel))
		}
	}
}

// printDiagnostic writes a single diagnostic line for a fatal error
func printDiagnostic(w io.Writer, err error) {
	msg := flatten(err.Error())
	if remedy := syncerr.RemedyOf(err); remedy != "" {
		msg = fmt.Sprintf("%s; to fix: %s", msg, flatten(remedy))
	}
	_, _ = errColor.Fprint(w, "error: ")
	_, _ = fmt.Fprintln(w, msg)
}

// printStashNotice tells the operator where their stashed work went after a
// failed run
func printStashNotice(w io.Writer, r *sync.Report) {
	if r == nil || r.Stash != sync.SaveStashed {
		return
	}
	switch r.Restore {
	case sync.RestoreApplied:
		return
	case sync.RestoreKept:
		_, _ = warnColor.Fprintf(w, "local changes are stashed as %q; run git stash pop once the merge is committed\n", r.StashLabel)
	default:
		_, _ = warnColor.Fprintf(w, "local changes could not be restored automatically (%s); look for %q in git stash list\n", r.Restore, r.StashLabel)
	}
}

// flatten joins the non-blank lines of s with "; "
func flatten(s string) string {
	var parts []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, "; ")
}

func line(w io.Writer, label, value string) {
	_, _ = labelColor.Fprintf(w, "  %-14s", label+":")
	_, _ = fmt.Fprintln(w, value)
}

func warnLine(w io.Writer, label, value string) {
	_, _ = labelColor.Fprintf(w, "  %-14s", label+":")
	_, _ = warnColor.Fprintln(w, value)
}
