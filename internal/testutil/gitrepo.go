package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// Git runs git in dir and returns its trimmed combined output. The test
// fails if the command fails.
func Git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := GitErr(dir, args...)
	if err != nil {
		t.Fatalf("git %s: %v: %s", strings.Join(args, " "), err, out)
	}
	return out
}

// GitErr runs git in dir and returns its trimmed combined output and error
func GitErr(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	cmd.Env = append(os.Environ(), "LC_ALL=C", "GIT_TERMINAL_PROMPT=0")
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

// InitRepo creates a repository in dir with an identity configured and the
// given initial branch.
func InitRepo(t *testing.T, dir, branch string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	Git(t, dir, "init", "-b", branch)
	ConfigureIdentity(t, dir)
}

// ConfigureIdentity sets a local committer identity
func ConfigureIdentity(t *testing.T, dir string) {
	t.Helper()
	Git(t, dir, "config", "user.email", "test@test.com")
	Git(t, dir, "config", "user.name", "Test")
	Git(t, dir, "config", "commit.gpgsign", "false")
}

// WriteFile writes content to name below dir, creating parent directories
func WriteFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// ReadFile returns the content of name below dir
func ReadFile(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

// CommitFile creates or overwrites a file and commits it.
func CommitFile(t *testing.T, dir, name, content, msg string) {
	t.Helper()
	WriteFile(t, dir, name, content)
	Git(t, dir, "add", name)
	Git(t, dir, "commit", "-m", msg)
}

// Fork is a pair of repositories: an upstream and a fork cloned from it
// with the upstream registered under the remote name "upstream".
type Fork struct {
	Upstream string
	Dir      string
}

// NewFork creates an upstream repository on branch main, commits files to
// it and clones it into a fork whose only remote is "upstream".
func NewFork(t *testing.T, files map[string]string) *Fork {
	t.Helper()
	root := t.TempDir()
	f := &Fork{
		Upstream: filepath.Join(root, "upstream"),
		Dir:      filepath.Join(root, "fork"),
	}

	InitRepo(t, f.Upstream, "main")
	for name, content := range files {
		WriteFile(t, f.Upstream, name, content)
	}
	Git(t, f.Upstream, "add", "-A")
	Git(t, f.Upstream, "commit", "--allow-empty", "-m", "Initial commit")

	Git(t, root, "clone", "-q", f.Upstream, f.Dir)
	Git(t, f.Dir, "remote", "rename", "origin", "upstream")
	ConfigureIdentity(t, f.Dir)

	return f
}

// Head returns the commit HEAD points at in dir
func Head(t *testing.T, dir string) string {
	t.Helper()
	return Git(t, dir, "rev-parse", "HEAD")
}
