// Package config loads the optional --config YAML file, layered
// underneath the CLI flags the way the teacher's gitp4transfer config
// layers underneath its own flag overrides.
package config

import (
	"fmt"
	"os"
	"regexp"
)

import yaml "gopkg.in/yaml.v2"

// DefaultTrunkBranch is the branch name project.pj's own trunk gets
// when neither --config nor the CLI overrides it.
const DefaultTrunkBranch = "master"

// BranchMapping renames a sanitized MKSSI branch name by prepending
// Prefix whenever Name (a regex) matches it, the same
// match-then-prepend idea the teacher's P4-to-git branch mapping
// uses. The command applies the overrides to the trunk branch name
// only; variant branch names are not rewritten by them.
type BranchMapping struct {
	Name   string `yaml:"name"`   // regex matched against the sanitized branch name
	Prefix string `yaml:"prefix"` // prepended on a match

	re *regexp.Regexp
}

// Config is the tool's YAML-backed, CLI-overridable configuration.
type Config struct {
	TrunkBranch         string          `yaml:"trunk_branch"`
	SourceDir           string          `yaml:"source_dir"`
	PnameDir            string          `yaml:"pname_dir"`
	ArchiveRoot         string          `yaml:"archive_root"`
	AuthorMapPath       string          `yaml:"author_map"`
	BranchNameOverrides []BranchMapping `yaml:"branch_name_overrides"`
}

// Unmarshal parses config, applying defaults first so a config file
// that omits a field keeps the tool's built-in default for it.
func Unmarshal(config []byte) (*Config, error) {
	cfg := &Config{TrunkBranch: DefaultTrunkBranch}
	if err := yaml.Unmarshal(config, cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v. make sure to use 'single quotes' around strings with special characters (like match patterns)", err.Error())
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile loads and parses a --config YAML file.
func LoadConfigFile(filename string) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load %v: %v", filename, err.Error())
	}
	cfg, err := LoadConfigString(content)
	if err != nil {
		return nil, fmt.Errorf("failed to load %v: %v", filename, err.Error())
	}
	return cfg, nil
}

// LoadConfigString parses already-read YAML content.
func LoadConfigString(content []byte) (*Config, error) {
	return Unmarshal(content)
}

func (c *Config) validate() error {
	for i, m := range c.BranchNameOverrides {
		re, err := regexp.Compile(m.Name)
		if err != nil {
			return fmt.Errorf("failed to parse '%s' as a regex", m.Name)
		}
		c.BranchNameOverrides[i].re = re
	}
	return nil
}

// ApplyBranchNameOverride rewrites a sanitized branch name through
// the first matching override's pattern, prepending its Prefix; name
// is returned unchanged if no override matches (including when there
// are no overrides configured at all).
func (c *Config) ApplyBranchNameOverride(name string) string {
	for _, m := range c.BranchNameOverrides {
		if m.re != nil && m.re.MatchString(name) {
			return m.Prefix + name
		}
	}
	return name
}
