package version

import (
	"errors"
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"github.com/tidwall/gjson"

	"github.com/schaermu/forkpatch/internal/syncerr"
)

// DefaultPrefix is prepended to the project version to form the branch name
const DefaultPrefix = "p"

// Resolve reads the project metadata document at path and returns its
// version field
func Resolve(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", syncerr.Config("read project metadata",
				fmt.Sprintf("run from the project root or point metadata at an existing file (looked for %s)", path),
				err)
		}
		return "", syncerr.Config("read project metadata", "", err)
	}

	if !gjson.ValidBytes(data) {
		return "", syncerr.Config("parse project metadata",
			fmt.Sprintf("fix the JSON syntax in %s", path),
			fmt.Errorf("%s is not valid JSON", path))
	}

	field := gjson.GetBytes(data, "version")
	if !field.Exists() {
		return "", syncerr.Config("parse project metadata",
			fmt.Sprintf("add a \"version\" field to %s", path),
			fmt.Errorf("%s has no version field", path))
	}
	if field.Type != gjson.String || field.Str == "" {
		return "", syncerr.Config("parse project metadata",
			fmt.Sprintf("set \"version\" in %s to a non-empty string", path),
			fmt.Errorf("%s: version must be a non-empty string, got %s", path, field.Raw))
	}

	return field.Str, nil
}

// BranchName derives the sync branch from a version. The version is used
// verbatim.
func BranchName(prefix, v string) string {
	return prefix + v
}

// IsSemver reports whether v parses as a semantic version
func IsSemver(v string) bool {
	_, err := semver.StrictNewVersion(v)
	return err == nil
}
