// Package config loads the optional .evidence YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/deixis/evidence/internal/record"
	"gopkg.in/yaml.v3"
)

// FileName is the name of the configuration file.
const FileName = ".evidence"

// Default classifier locations, relative to the evidence root.
const (
	DefaultClassifyDir = ".project-control/07-critical-tests/_out"
	DefaultStructural  = "structural-evidence.json"
	DefaultExecution   = "execution-evidence.json"
	DefaultResult      = "atlas-result-evidence.json"
	DefaultOutput      = "classification.json"
)

// Config holds the parsed .evidence configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version     int            `yaml:"version"`
	RawSimPath  string         `yaml:"sim_path"`
	RawHostOS   string         `yaml:"host_os"`
	RawTruncate int            `yaml:"truncate"` // characters per stream
	Classify    ClassifyConfig `yaml:"classify"`
}

// ClassifyConfig controls where the failure classifier reads and writes.
// Relative file names resolve against Dir; a relative Dir resolves
// against the evidence root.
type ClassifyConfig struct {
	Dir        string `yaml:"dir"`
	Structural string `yaml:"structural"`
	Execution  string `yaml:"execution"`
	Result     string `yaml:"result"`
	Output     string `yaml:"output"`
}

// SimPath returns the configured search path or the default.
func (c *Config) SimPath() string {
	if c.RawSimPath != "" {
		return c.RawSimPath
	}
	return record.DefaultSimPath
}

// HostOS returns the configured host identifier or the default.
func (c *Config) HostOS() string {
	if c.RawHostOS != "" {
		return c.RawHostOS
	}
	return record.DefaultHostOS
}

// Truncate returns the configured truncation length or the default.
func (c *Config) Truncate() int {
	if c.RawTruncate > 0 {
		return c.RawTruncate
	}
	return record.DefaultMaxChars
}

// ClassifyPaths are the resolved classifier input and output files.
type ClassifyPaths struct {
	Dir        string
	Structural string
	Execution  string
	Result     string
	Output     string
}

// ClassifyPaths resolves classifier files against root.
func (c *Config) ClassifyPaths(root string) ClassifyPaths {
	dir := orDefault(c.Classify.Dir, DefaultClassifyDir)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	resolve := func(name, def string) string {
		name = orDefault(name, def)
		if filepath.IsAbs(name) {
			return name
		}
		return filepath.Join(dir, name)
	}
	return ClassifyPaths{
		Dir:        dir,
		Structural: resolve(c.Classify.Structural, DefaultStructural),
		Execution:  resolve(c.Classify.Execution, DefaultExecution),
		Result:     resolve(c.Classify.Result, DefaultResult),
		Output:     resolve(c.Classify.Output, DefaultOutput),
	}
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

// LoadResult holds the parsed config and the discovered evidence root.
type LoadResult struct {
	Config *Config
	Root   string // directory containing .evidence; falls back to workspace
}

// Load reads the .evidence file found by walking upward from workspace.
// If no file exists, a default Config rooted at workspace is returned.
func Load(workspace string) (*LoadResult, error) {
	root, err := findRoot(workspace)
	if err != nil {
		return &LoadResult{Config: &Config{}, Root: workspace}, nil
	}

	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	return &LoadResult{Config: cfg, Root: root}, nil
}

// findRoot walks upward from dir looking for a directory containing .evidence.
func findRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if fi, err := os.Stat(filepath.Join(dir, FileName)); err == nil && !fi.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s not found", FileName)
		}
		dir = parent
	}
}
