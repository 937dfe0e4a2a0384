//go:build integration

package tier1

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/schaermu/forkpatch/internal/testutil"
)

const defaultTimeout = 2 * time.Minute

// Harness builds the forkpatch binary once per test and runs it against
// throwaway fork repositories.
type Harness struct {
	t      *testing.T
	binary string
}

// Result is the observable outcome of one forkpatch invocation
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// NewHarness creates a new test harness and builds the binary under test
func NewHarness(ctx context.Context, t *testing.T) *Harness {
	t.Helper()

	projectRoot, err := testutil.FindProjectRoot()
	if err != nil {
		t.Fatalf("get project root: %v", err)
	}

	h := &Harness{
		t:      t,
		binary: filepath.Join(t.TempDir(), "forkpatch"),
	}

	t.Logf("Building %s", h.binary)
	cmd := exec.CommandContext(ctx, "go", "build", "-o", h.binary, "./cmd/forkpatch")
	cmd.Dir = projectRoot
	cmd.Stdout = &testWriter{t: t, prefix: "[build] "}
	cmd.Stderr = &testWriter{t: t, prefix: "[build] "}
	if err := cmd.Run(); err != nil {
		t.Fatalf("go build: %v", err)
	}

	return h
}

// Run executes forkpatch in dir with the given arguments
func (h *Harness) Run(ctx context.Context, dir string, args ...string) Result {
	h.t.Helper()

	cmd := exec.CommandContext(ctx, h.binary, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "LC_ALL=C", "GIT_TERMINAL_PROMPT=0", "NO_COLOR=1")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	res := Result{}
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			h.t.Fatalf("exec failed: %v", err)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	h.t.Logf("forkpatch %s: exit %d", strings.Join(args, " "), res.ExitCode)
	return res
}

// MustRun executes forkpatch and fails the test if it exits non-zero
func (h *Harness) MustRun(ctx context.Context, dir string, args ...string) Result {
	h.t.Helper()
	res := h.Run(ctx, dir, args...)
	if res.ExitCode != 0 {
		h.t.Fatalf("forkpatch failed with exit code %d\nstdout: %s\nstderr: %s",
			res.ExitCode, res.Stdout, res.Stderr)
	}
	return res
}

// String returns a human-readable representation
func (r Result) String() string {
	return fmt.Sprintf("exit %d\nstdout: %s\nstderr: %s", r.ExitCode, r.Stdout, r.Stderr)
}

// testWriter wraps test logging for command output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	lines := strings.Split(string(p), "\n")
	for _, line := range lines {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*testWriter)(nil)
