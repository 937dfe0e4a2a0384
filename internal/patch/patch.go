// Package patch applies idempotent textual patches to fork source files.
//
// A patch inserts one import line after an anchor line and appends a fixed
// block to the end of the file. The presence of a marker string means the
// patch is already applied and the file is left untouched.
package patch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/schaermu/forkpatch/internal/syncerr"
)

// Descriptor describes one patch
type Descriptor struct {
	Name       string `yaml:"name"`
	Target     string `yaml:"target"`      // path relative to the repository root
	ImportLine string `yaml:"import_line"` // line inserted after Anchor
	Anchor     string `yaml:"anchor"`
	Marker     string `yaml:"marker"` // presence means already applied
	Append     string `yaml:"append"`
}

// DefaultDescriptor returns the built-in patch that re-exports the fork's
// internals from the package entry point.
func DefaultDescriptor() Descriptor {
	return Descriptor{
		Name:       "export-internals",
		Target:     "src/index.ts",
		ImportLine: "import * as internals from './internals';",
		Anchor:     "import { version } from './version';",
		Marker:     "export { internals };",
		Append:     "\n// fork: keep internals reachable for downstream consumers\nexport { internals };\n",
	}
}

// Validate checks that the descriptor can be applied
func (d Descriptor) Validate() error {
	if d.Target == "" {
		return fmt.Errorf("patch %q: target is required", d.Name)
	}
	if filepath.IsAbs(d.Target) {
		return fmt.Errorf("patch %q: target must be relative to the repository root: %s", d.Name, d.Target)
	}
	if d.Marker == "" {
		return fmt.Errorf("patch %q: marker is required", d.Name)
	}
	if d.Append == "" {
		return fmt.Errorf("patch %q: append is required", d.Name)
	}
	if !strings.Contains(d.Append, d.Marker) {
		return fmt.Errorf("patch %q: append must contain the marker, otherwise the patch is reapplied on every run", d.Name)
	}
	if (d.ImportLine == "") != (d.Anchor == "") {
		return fmt.Errorf("patch %q: import_line and anchor must be set together", d.Name)
	}
	if strings.Contains(d.ImportLine, "\n") || strings.Contains(d.Anchor, "\n") {
		return fmt.Errorf("patch %q: import_line and anchor must be single lines", d.Name)
	}
	return nil
}

// Status is the result of applying a patch
type Status int

const (
	StatusApplied Status = iota
	StatusAlreadyApplied
)

func (s Status) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusAlreadyApplied:
		return "already applied"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ImportStatus is the result of the import insertion step
type ImportStatus int

const (
	ImportNotRequested ImportStatus = iota
	ImportInserted
	ImportPresent
	ImportSkippedNoAnchor
)

func (s ImportStatus) String() string {
	switch s {
	case ImportNotRequested:
		return "not requested"
	case ImportInserted:
		return "inserted"
	case ImportPresent:
		return "present"
	case ImportSkippedNoAnchor:
		return "skipped (anchor not found)"
	default:
		return fmt.Sprintf("ImportStatus(%d)", int(s))
	}
}

// Outcome describes what Transform did
type Outcome struct {
	Status Status
	Import ImportStatus
}

// Result describes what Apply did to a file
type Result struct {
	Name    string
	Target  string
	Outcome Outcome
	Written bool
}

// Transform applies d to content and returns the new content. It does not
// touch the filesystem.
func Transform(content string, d Descriptor) (string, Outcome) {
	if strings.Contains(content, d.Marker) {
		return content, Outcome{Status: StatusAlreadyApplied, Import: ImportNotRequested}
	}

	out := Outcome{Status: StatusApplied}
	content, out.Import = insertImport(content, d.ImportLine, d.Anchor)

	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += d.Append

	return content, out
}

// insertImport adds importLine right after the first line equal to anchor,
// unless importLine is already present.
func insertImport(content, importLine, anchor string) (string, ImportStatus) {
	if importLine == "" {
		return content, ImportNotRequested
	}

	lines := strings.SplitAfter(content, "\n")
	for _, line := range lines {
		if trimEOL(line) == importLine {
			return content, ImportPresent
		}
	}

	for i, line := range lines {
		if trimEOL(line) != anchor {
			continue
		}
		eol := line[len(trimEOL(line)):]
		if eol == "" {
			// anchor is the last line without a terminator
			eol = "\n"
			lines[i] = line + eol
			lines = insertAt(lines, i+1, importLine)
		} else {
			lines = insertAt(lines, i+1, importLine+eol)
		}
		return strings.Join(lines, ""), ImportInserted
	}

	return content, ImportSkippedNoAnchor
}

func insertAt(lines []string, i int, line string) []string {
	lines = append(lines, "")
	copy(lines[i+1:], lines[i:])
	lines[i] = line
	return lines
}

func trimEOL(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}

// Apply applies d to the target file below root. The file is rewritten only
// when its content changes.
func Apply(root string, d Descriptor) (Result, error) {
	results, err := ApplyAll(root, []Descriptor{d})
	if err != nil {
		return Result{Name: d.Name, Target: d.Target}, err
	}
	return results[0], nil
}

// file is a patch target held in memory until every patch has been
// transformed
type file struct {
	path     string
	original string
	content  string
}

// ApplyAll applies ds in order. Every target is read and transformed in
// memory first, so a missing target leaves the tree untouched. Several
// patches may share a target. If writing fails, files already written are
// put back.
func ApplyAll(root string, ds []Descriptor) ([]Result, error) {
	files := make(map[string]*file)
	var order []*file
	results := make([]Result, 0, len(ds))

	for _, d := range ds {
		f, ok := files[d.Target]
		if !ok {
			var err error
			if f, err = readTarget(root, d); err != nil {
				return nil, err
			}
			files[d.Target] = f
			order = append(order, f)
		}

		var out Outcome
		before := f.content
		f.content, out = Transform(f.content, d)
		results = append(results, Result{
			Name:    d.Name,
			Target:  d.Target,
			Outcome: out,
			Written: f.content != before,
		})
	}

	var written []*file
	for _, f := range order {
		if f.content == f.original {
			continue
		}
		if err := writeFileAtomic(f.path, []byte(f.content)); err != nil {
			rollback(written)
			return nil, fmt.Errorf("failed to write %s: %w", f.path, err)
		}
		written = append(written, f)
	}

	return results, nil
}

func readTarget(root string, d Descriptor) (*file, error) {
	path := filepath.Join(root, d.Target)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, syncerr.Config("apply patch "+d.Name,
				fmt.Sprintf("check that %s still exists upstream and update the patch target", d.Target),
				fmt.Errorf("target file %s not found: %w", d.Target, err))
		}
		return nil, fmt.Errorf("failed to read %s: %w", d.Target, err)
	}
	return &file{path: path, original: string(data), content: string(data)}, nil
}

// rollback restores the original content of files, best effort
func rollback(files []*file) {
	for _, f := range files {
		_ = writeFileAtomic(f.path, []byte(f.original))
	}
}

// writeFileAtomic replaces path with data via a temp file in the same
// directory, keeping the original permissions.
func writeFileAtomic(path string, data []byte) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".forkpatch-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}() // cleanup on error

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Chmod(info.Mode()); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, path)
}
