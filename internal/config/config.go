package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config holds every knob the coverage collection run understands. Values come
// from gcovcollect.yaml; command line flags override individual fields.
type Config struct {
	// Root is the project root directory that relative source paths in gcov
	// reports are resolved against.
	Root string `mapstructure:"root"`

	// Filter and Exclude select which source files contribute coverage data.
	// Both hold regular expressions matched from the start of the path.
	Filter  []string `mapstructure:"filter"`
	Exclude []string `mapstructure:"exclude"`

	// GcovFilter and GcovExclude select which generated .gcov report files
	// are parsed at all.
	GcovFilter  []string `mapstructure:"gcov_filter"`
	GcovExclude []string `mapstructure:"gcov_exclude"`

	// GcovCmd is the external coverage tool executable.
	GcovCmd string `mapstructure:"gcov_cmd"`

	// ObjectDirectory is the hint for where the compiler was run from, as
	// given to gcc's -o; used to infer gcov working directories.
	ObjectDirectory string `mapstructure:"object_directory"`

	// Branches switches derived statistics from line mode to branch mode.
	Branches bool `mapstructure:"branches"`

	// ExcludeUnreachableBranches suppresses branches gcov synthesizes on
	// brace-only or excluded lines.
	ExcludeUnreachableBranches bool `mapstructure:"exclude_unreachable_branches"`

	// Keep retains the .gcov report files gcov writes; Delete removes the
	// processed .gcda artifacts afterwards.
	Keep   bool `mapstructure:"keep"`
	Delete bool `mapstructure:"delete"`

	// Jobs bounds how many artifacts are processed concurrently.
	Jobs int `mapstructure:"jobs"`

	// GcovTimeoutSeconds bounds a single gcov invocation; expiry counts as an
	// invocation failure for that artifact.
	GcovTimeoutSeconds int `mapstructure:"gcov_timeout_seconds"`

	// SortUncovered and SortPercent pick the text report row order; the
	// default is alphabetical by file name.
	SortUncovered bool `mapstructure:"sort_uncovered"`
	SortPercent   bool `mapstructure:"sort_percent"`

	// Output is the text report destination; empty means stdout.
	Output string `mapstructure:"output"`

	LogLevel string `mapstructure:"log_level"`
}

// Load reads gcovcollect.yaml into a Config. A missing config file is not an
// error; every field has a usable default and flags can supply the rest.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("gcovcollect")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("configs")

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to determine working directory: %w", err)
	}

	v.SetDefault("root", cwd)
	v.SetDefault("filter", []string{})
	v.SetDefault("exclude", []string{})
	v.SetDefault("gcov_filter", []string{})
	v.SetDefault("gcov_exclude", []string{})
	v.SetDefault("gcov_cmd", "gcov")
	v.SetDefault("object_directory", "")
	v.SetDefault("branches", false)
	v.SetDefault("exclude_unreachable_branches", false)
	v.SetDefault("keep", false)
	v.SetDefault("delete", false)
	v.SetDefault("jobs", 1)
	v.SetDefault("gcov_timeout_seconds", 60)
	v.SetDefault("sort_uncovered", false)
	v.SetDefault("sort_percent", false)
	v.SetDefault("output", "")
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config data: %w", err)
	}

	return &cfg, nil
}
