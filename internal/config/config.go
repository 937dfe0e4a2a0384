package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/schaermu/forkpatch/internal/patch"
)

// DefaultFileName is the config file looked up in the repository root
const DefaultFileName = ".forkpatch.yaml"

// Config represents the complete forkpatch configuration
type Config struct {
	Metadata MetadataConfig     `yaml:"metadata"`
	Branch   BranchConfig       `yaml:"branch"`
	Upstream UpstreamConfig     `yaml:"upstream"`
	Commit   CommitConfig       `yaml:"commit"`
	Patches  []patch.Descriptor `yaml:"patches"`
}

// MetadataConfig configures where the project version is read from
type MetadataConfig struct {
	Path string `yaml:"path"`
}

// BranchConfig configures the sync branch
type BranchConfig struct {
	Prefix  string `yaml:"prefix"`
	Primary string `yaml:"primary"` // never merged into the sync branch
}

// UpstreamConfig configures the tracked upstream repository
type UpstreamConfig struct {
	Remote string `yaml:"remote"`
	Branch string `yaml:"branch"`
}

// CommitConfig configures the patch commit
type CommitConfig struct {
	Message string `yaml:"message"`
}

// Default returns the built-in configuration used when no config file exists
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Expand environment variables in string fields
	cfg.expandEnv()

	// Apply defaults
	cfg.applyDefaults()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault loads path if it exists and falls back to Default otherwise
func LoadOrDefault(path string) (*Config, bool, error) {
	if _, err := os.Stat(os.ExpandEnv(path)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), false, nil
		}
		return nil, false, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

// expandEnv expands environment variables in path-like fields. Patch
// contents are source text and are left alone.
func (c *Config) expandEnv() {
	c.Metadata.Path = os.ExpandEnv(c.Metadata.Path)
	c.Upstream.Remote = os.ExpandEnv(c.Upstream.Remote)
	c.Upstream.Branch = os.ExpandEnv(c.Upstream.Branch)
	for i := range c.Patches {
		c.Patches[i].Target = os.ExpandEnv(c.Patches[i].Target)
	}
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Metadata.Path == "" {
		c.Metadata.Path = "package.json"
	}
	if c.Branch.Prefix == "" {
		c.Branch.Prefix = "p"
	}
	if c.Branch.Primary == "" {
		c.Branch.Primary = "main"
	}
	if c.Upstream.Remote == "" {
		c.Upstream.Remote = "upstream"
	}
	if c.Upstream.Branch == "" {
		c.Upstream.Branch = "main"
	}
	if c.Commit.Message == "" {
		c.Commit.Message = "export on latest"
	}
	if len(c.Patches) == 0 {
		c.Patches = []patch.Descriptor{patch.DefaultDescriptor()}
	}
	for i := range c.Patches {
		if c.Patches[i].Name == "" {
			c.Patches[i].Name = fmt.Sprintf("patch-%d", i+1)
		}
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if filepath.IsAbs(c.Metadata.Path) {
		return fmt.Errorf("metadata.path must be relative to the repository root: %s", c.Metadata.Path)
	}

	// The prefix becomes part of a ref name
	if strings.ContainsAny(c.Branch.Prefix, " ~^:?*[\\") {
		return fmt.Errorf("branch.prefix contains characters not allowed in branch names: %q", c.Branch.Prefix)
	}

	if strings.ContainsAny(c.Upstream.Remote, " /") {
		return fmt.Errorf("upstream.remote is not a valid remote name: %q", c.Upstream.Remote)
	}

	seen := make(map[string]bool)
	for _, p := range c.Patches {
		if err := p.Validate(); err != nil {
			return err
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate patch name: %s", p.Name)
		}
		seen[p.Name] = true
	}

	return nil
}

// MetadataPath returns the metadata document path inside repoDir
func (c *Config) MetadataPath(repoDir string) string {
	return filepath.Join(repoDir, c.Metadata.Path)
}

// UpstreamRef returns the remote-tracking ref of the upstream integration branch
func (c *Config) UpstreamRef() string {
	return c.Upstream.Remote + "/" + c.Upstream.Branch
}

// PatchTargets returns the distinct patch target paths in declaration order
func (c *Config) PatchTargets() []string {
	seen := make(map[string]bool)
	targets := make([]string, 0, len(c.Patches))
	for _, p := range c.Patches {
		if !seen[p.Target] {
			seen[p.Target] = true
			targets = append(targets, p.Target)
		}
	}
	return targets
}
