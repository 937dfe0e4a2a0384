package git

import (
	"errors"
	"fmt"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Inspector answers read-only questions about a repository without
// spawning git processes.
type Inspector struct {
	repo *gogit.Repository
}

// OpenInspector opens the repository containing dir
func OpenInspector(dir string) (*Inspector, error) {
	repo, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", dir, err)
	}
	return &Inspector{repo: repo}, nil
}

// HasRemote reports whether the named remote is configured
func (i *Inspector) HasRemote(name string) (bool, error) {
	_, err := i.repo.Remote(name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gogit.ErrRemoteNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to look up remote %s: %w", name, err)
}

// HasLocalBranch reports whether refs/heads/name exists
func (i *Inspector) HasLocalBranch(name string) (bool, error) {
	_, err := i.repo.Reference(plumbing.NewBranchReferenceName(name), false)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to look up branch %s: %w", name, err)
}

// HeadBranch returns the branch HEAD points at. A detached HEAD yields "".
func (i *Inspector) HeadBranch() (string, error) {
	head, err := i.repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return "", fmt.Errorf("failed to read HEAD: %w", err)
	}
	if head.Type() == plumbing.SymbolicReference && head.Target().IsBranch() {
		return head.Target().Short(), nil
	}
	return "", nil
}
