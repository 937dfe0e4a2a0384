package version

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/forkpatch/internal/syncerr"
)

func writeMetadata(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "package.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestResolve(t *testing.T) {
	path := writeMetadata(t, `{"name": "fork", "version": "16.0.1", "private": true}`)

	v, err := Resolve(path)
	require.NoError(t, err)
	assert.Equal(t, "16.0.1", v)
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "invalid json", content: `{"version": "1.0.0"`},
		{name: "missing version", content: `{"name": "fork"}`},
		{name: "empty version", content: `{"version": ""}`},
		{name: "numeric version", content: `{"version": 16}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(writeMetadata(t, tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, syncerr.ErrConfig)
			assert.NotEmpty(t, syncerr.RemedyOf(err))
		})
	}
}

func TestResolve_MissingFile(t *testing.T) {
	_, err := Resolve(filepath.Join(t.TempDir(), "package.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, syncerr.ErrConfig)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBranchName(t *testing.T) {
	tests := []struct {
		version string
		want    string
	}{
		{version: "16.0.1", want: "p16.0.1"},
		{version: "2.0.0-beta", want: "p2.0.0-beta"},
		{version: "1.02.3", want: "p1.02.3"},
		{version: "10", want: "p10"},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			assert.Equal(t, tt.want, BranchName(DefaultPrefix, tt.version))
		})
	}
}

func TestIsSemver(t *testing.T) {
	assert.True(t, IsSemver("16.0.1"))
	assert.True(t, IsSemver("2.0.0-beta"))
	assert.False(t, IsSemver("16.0"))
	assert.False(t, IsSemver("v16.0.1"))
	assert.False(t, IsSemver("latest"))
}
