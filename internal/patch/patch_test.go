package patch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/forkpatch/internal/syncerr"
)

const upstreamIndex = `import { render } from './render';
import { version } from './version';
import { parse } from './parse';

export { render, parse, version };
`

func testDescriptor() Descriptor {
	return Descriptor{
		Name:       "test",
		Target:     "src/index.ts",
		ImportLine: "import * as internals from './internals';",
		Anchor:     "import { version } from './version';",
		Marker:     "export { internals };",
		Append:     "\nexport { internals };\n",
	}
}

func TestTransform(t *testing.T) {
	got, out := Transform(upstreamIndex, testDescriptor())

	want := `import { render } from './render';
import { version } from './version';
import * as internals from './internals';
import { parse } from './parse';

export { render, parse, version };

export { internals };
`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Transform() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, StatusApplied, out.Status)
	assert.Equal(t, ImportInserted, out.Import)
}

func TestTransform_Idempotent(t *testing.T) {
	d := testDescriptor()
	first, _ := Transform(upstreamIndex, d)
	second, out := Transform(first, d)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second Transform() changed content (-first +second):\n%s", diff)
	}
	assert.Equal(t, StatusAlreadyApplied, out.Status)
}

func TestTransform_AnchorMissing(t *testing.T) {
	content := "import { render } from './render';\n"
	got, out := Transform(content, testDescriptor())

	assert.Equal(t, StatusApplied, out.Status)
	assert.Equal(t, ImportSkippedNoAnchor, out.Import)
	assert.Equal(t, content+"\nexport { internals };\n", got)
}

func TestTransform_ImportAlreadyPresent(t *testing.T) {
	content := "import { version } from './version';\nimport * as internals from './internals';\n"
	got, out := Transform(content, testDescriptor())

	assert.Equal(t, ImportPresent, out.Import)
	assert.Equal(t, content+"\nexport { internals };\n", got)
}

func TestTransform_NoImportRequested(t *testing.T) {
	d := testDescriptor()
	d.ImportLine = ""
	d.Anchor = ""

	got, out := Transform(upstreamIndex, d)
	assert.Equal(t, ImportNotRequested, out.Import)
	assert.Equal(t, upstreamIndex+"\nexport { internals };\n", got)
}

func TestTransform_CRLF(t *testing.T) {
	content := "import { version } from './version';\r\nexport { version };\r\n"
	got, out := Transform(content, testDescriptor())

	assert.Equal(t, ImportInserted, out.Import)
	assert.Equal(t,
		"import { version } from './version';\r\nimport * as internals from './internals';\r\nexport { version };\r\n\nexport { internals };\n",
		got)
}

func TestTransform_AnchorOnLastLineWithoutNewline(t *testing.T) {
	content := "import { version } from './version';"
	got, out := Transform(content, testDescriptor())

	assert.Equal(t, ImportInserted, out.Import)
	assert.Equal(t,
		"import { version } from './version';\nimport * as internals from './internals';\n\nexport { internals };\n",
		got)
}

func TestTransform_MissingTrailingNewline(t *testing.T) {
	d := testDescriptor()
	d.ImportLine, d.Anchor = "", ""

	got, _ := Transform("const a = 1;", d)
	assert.Equal(t, "const a = 1;\n\nexport { internals };\n", got)
}

func TestTransform_AnchorMatchesWholeLineOnly(t *testing.T) {
	content := "  import { version } from './version';\n"
	_, out := Transform(content, testDescriptor())
	assert.Equal(t, ImportSkippedNoAnchor, out.Import)
}

func writeTarget(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0640))
	return path
}

func TestApply(t *testing.T) {
	root := t.TempDir()
	d := testDescriptor()
	path := writeTarget(t, root, d.Target, upstreamIndex)

	res, err := Apply(root, d)
	require.NoError(t, err)
	assert.True(t, res.Written)
	assert.Equal(t, StatusApplied, res.Outcome.Status)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	want, _ := Transform(upstreamIndex, d)
	assert.Equal(t, want, string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), info.Mode().Perm())

	// Second application leaves the file byte-identical.
	res, err = Apply(root, d)
	require.NoError(t, err)
	assert.False(t, res.Written)
	assert.Equal(t, StatusAlreadyApplied, res.Outcome.Status)

	again, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestApply_MarkerPresentLeavesFileUntouched(t *testing.T) {
	root := t.TempDir()
	d := testDescriptor()
	content := upstreamIndex + "\nexport { internals };\n"
	path := writeTarget(t, root, d.Target, content)

	before, err := os.Stat(path)
	require.NoError(t, err)

	res, err := Apply(root, d)
	require.NoError(t, err)
	assert.False(t, res.Written)
	assert.Equal(t, StatusAlreadyApplied, res.Outcome.Status)

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files should be left behind")
}

func TestApply_MissingTarget(t *testing.T) {
	_, err := Apply(t.TempDir(), testDescriptor())
	require.Error(t, err)
	assert.ErrorIs(t, err, syncerr.ErrConfig)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NotEmpty(t, syncerr.RemedyOf(err))
}

func extraDescriptor(target string) Descriptor {
	return Descriptor{
		Name:   "extra",
		Target: target,
		Marker: "// fork: extra",
		Append: "// fork: extra\nexport const forked = true;\n",
	}
}

func TestApplyAll_MissingTargetWritesNothing(t *testing.T) {
	root := t.TempDir()
	d := testDescriptor()
	path := writeTarget(t, root, d.Target, upstreamIndex)

	results, err := ApplyAll(root, []Descriptor{d, extraDescriptor("src/gone.ts")})
	require.Error(t, err)
	assert.ErrorIs(t, err, syncerr.ErrConfig)
	assert.Nil(t, results)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, upstreamIndex, string(data), "earlier targets must not be written")
}

func TestApplyAll_SharedTarget(t *testing.T) {
	root := t.TempDir()
	d := testDescriptor()
	path := writeTarget(t, root, d.Target, upstreamIndex)

	results, err := ApplyAll(root, []Descriptor{d, extraDescriptor(d.Target)})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Written)
	assert.True(t, results[1].Written)

	first, _ := Transform(upstreamIndex, d)
	want, _ := Transform(first, extraDescriptor(d.Target))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	if diff := cmp.Diff(want, string(data)); diff != "" {
		t.Errorf("both patches must land in the shared file (-want +got):\n%s", diff)
	}
}

func TestApplyAll_WriteFailureRollsBack(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced for root")
	}
	root := t.TempDir()
	d := testDescriptor()
	first := writeTarget(t, root, d.Target, upstreamIndex)
	writeTarget(t, root, "locked/extra.ts", "export const extra = 1;\n")

	lockedDir := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(lockedDir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(lockedDir, 0o755) })

	_, err := ApplyAll(root, []Descriptor{d, extraDescriptor("locked/extra.ts")})
	require.Error(t, err)

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, upstreamIndex, string(data), "written targets must be restored")
}

func TestDescriptorValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *Descriptor)
		wantErr bool
	}{
		{name: "valid", mutate: func(d *Descriptor) {}},
		{name: "default", mutate: func(d *Descriptor) { *d = DefaultDescriptor() }},
		{name: "no import", mutate: func(d *Descriptor) { d.ImportLine, d.Anchor = "", "" }},
		{name: "missing target", mutate: func(d *Descriptor) { d.Target = "" }, wantErr: true},
		{name: "absolute target", mutate: func(d *Descriptor) { d.Target = "/src/index.ts" }, wantErr: true},
		{name: "missing marker", mutate: func(d *Descriptor) { d.Marker = "" }, wantErr: true},
		{name: "missing append", mutate: func(d *Descriptor) { d.Append = "" }, wantErr: true},
		{name: "append without marker", mutate: func(d *Descriptor) { d.Append = "export {};\n" }, wantErr: true},
		{name: "anchor without import", mutate: func(d *Descriptor) { d.ImportLine = "" }, wantErr: true},
		{name: "multiline import", mutate: func(d *Descriptor) { d.ImportLine = "a\nb" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testDescriptor()
			tt.mutate(&d)
			err := d.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStatusStrings(t *testing.T) {
	assert.Equal(t, "applied", StatusApplied.String())
	assert.Equal(t, "already applied", StatusAlreadyApplied.String())
	assert.Equal(t, "skipped (anchor not found)", ImportSkippedNoAnchor.String())
}
