package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/gcov-collect/internal/config"
	"github.com/zjy-dev/gcov-collect/internal/exec"
	"github.com/zjy-dev/gcov-collect/internal/gcov"
	"github.com/zjy-dev/gcov-collect/internal/logger"
	"github.com/zjy-dev/gcov-collect/internal/report"
)

// NewCollectCommand creates the "collect" subcommand.
func NewCollectCommand() *cobra.Command {
	var (
		root                       string
		filter                     []string
		exclude                    []string
		gcovFilter                 []string
		gcovExclude                []string
		gcovCmd                    string
		objectDirectory            string
		branches                   bool
		excludeUnreachableBranches bool
		keep                       bool
		deleteArtifacts            bool
		jobs                       int
		gcovTimeout                int
		sortUncovered              bool
		sortPercent                bool
		output                     string
		logLevel                   string
	)

	cmd := &cobra.Command{
		Use:   "collect [flags] ARTIFACT...",
		Short: "Run gcov over data files and print the coverage summary.",
		Long: `Run gcov over the given coverage data files (.gcda/.gcno) and print the
classic per-file coverage table.

For every artifact the correct gcov working directory is inferred, gcov is
invoked there, and the per-source-file reports it writes are parsed and
merged. A file compiled or exercised several times ends up with one record
holding the summed execution counts.

Configuration:
  Default values are loaded from gcovcollect.yaml when present.
  Command line flags override the config file values.

Examples:
  # Collect everything below the build tree
  gcovcollect collect build/**/*.gcda

  # Branch statistics for one artifact, keeping the .gcov files
  gcovcollect collect --branches --keep build/main.gcda

  # Objects were compiled with -o ../obj
  gcovcollect collect --object-directory ../obj build/main.gcda`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			// Use config values as defaults, command line flags override.
			if !cmd.Flags().Changed("root") {
				root = cfg.Root
			}
			if !cmd.Flags().Changed("filter") {
				filter = cfg.Filter
			}
			if !cmd.Flags().Changed("exclude") {
				exclude = cfg.Exclude
			}
			if !cmd.Flags().Changed("gcov-filter") {
				gcovFilter = cfg.GcovFilter
			}
			if !cmd.Flags().Changed("gcov-exclude") {
				gcovExclude = cfg.GcovExclude
			}
			if !cmd.Flags().Changed("gcov-executable") {
				gcovCmd = cfg.GcovCmd
			}
			if !cmd.Flags().Changed("object-directory") {
				objectDirectory = cfg.ObjectDirectory
			}
			if !cmd.Flags().Changed("branches") {
				branches = cfg.Branches
			}
			if !cmd.Flags().Changed("exclude-unreachable-branches") {
				excludeUnreachableBranches = cfg.ExcludeUnreachableBranches
			}
			if !cmd.Flags().Changed("keep") {
				keep = cfg.Keep
			}
			if !cmd.Flags().Changed("delete") {
				deleteArtifacts = cfg.Delete
			}
			if !cmd.Flags().Changed("jobs") {
				jobs = cfg.Jobs
			}
			if !cmd.Flags().Changed("gcov-timeout") {
				gcovTimeout = cfg.GcovTimeoutSeconds
			}
			if !cmd.Flags().Changed("sort-uncovered") {
				sortUncovered = cfg.SortUncovered
			}
			if !cmd.Flags().Changed("sort-percent") {
				sortPercent = cfg.SortPercent
			}
			if !cmd.Flags().Changed("output") {
				output = cfg.Output
			}
			if !cmd.Flags().Changed("log-level") {
				logLevel = cfg.LogLevel
			}

			logger.Init(logLevel)
			logger.SetLevel(logLevel)

			filters, err := gcov.NewFilters(gcov.FilterConfig{
				RootDir:     root,
				Filter:      filter,
				Exclude:     exclude,
				GcovFilter:  gcovFilter,
				GcovExclude: gcovExclude,
			})
			if err != nil {
				return err
			}

			aggregator := gcov.NewAggregator(exec.NewCommandExecutor(), gcov.Options{
				RootDir:                    root,
				Filters:                    filters,
				GcovCmd:                    gcovCmd,
				ObjectDirectory:            objectDirectory,
				ExcludeUnreachableBranches: excludeUnreachableBranches,
				KeepReportFiles:            keep,
				DeleteArtifacts:            deleteArtifacts,
				Jobs:                       jobs,
				Timeout:                    time.Duration(gcovTimeout) * time.Second,
			})

			files, runErr := aggregator.ProcessArtifacts(context.Background(), args)

			var out io.Writer = os.Stdout
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				out = f
			}

			write := report.WriterFor(output)
			if err := write(out, files, report.Options{
				BranchMode:    branches,
				SortUncovered: sortUncovered,
				SortPercent:   sortPercent,
				NameFor:       filters.StripRoot,
			}); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}

			// Failed artifacts never abort the run; they surface here, after
			// the surviving data has been reported.
			return runErr
		},
	}

	cmd.Flags().StringVarP(&root, "root", "r", "", "Project root directory for resolving source paths")
	cmd.Flags().StringArrayVarP(&filter, "filter", "f", nil, "Report only sources matching this regex (repeatable)")
	cmd.Flags().StringArrayVarP(&exclude, "exclude", "e", nil, "Exclude sources matching this regex (repeatable)")
	cmd.Flags().StringArrayVar(&gcovFilter, "gcov-filter", nil, "Parse only gcov files matching this regex (repeatable)")
	cmd.Flags().StringArrayVar(&gcovExclude, "gcov-exclude", nil, "Skip gcov files matching this regex (repeatable)")
	cmd.Flags().StringVar(&gcovCmd, "gcov-executable", "gcov", "gcov executable to invoke")
	cmd.Flags().StringVar(&objectDirectory, "object-directory", "", "Object directory hint, as given to the compiler")
	cmd.Flags().BoolVarP(&branches, "branches", "b", false, "Report branch statistics instead of line statistics")
	cmd.Flags().BoolVar(&excludeUnreachableBranches, "exclude-unreachable-branches", false, "Drop branches gcov attaches to brace-only lines")
	cmd.Flags().BoolVarP(&keep, "keep", "k", false, "Keep the generated .gcov report files")
	cmd.Flags().BoolVarP(&deleteArtifacts, "delete", "d", false, "Delete processed .gcda files")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 1, "Number of artifacts to process in parallel")
	cmd.Flags().IntVar(&gcovTimeout, "gcov-timeout", 60, "Timeout for one gcov invocation in seconds (0 = none)")
	cmd.Flags().BoolVarP(&sortUncovered, "sort-uncovered", "u", false, "Sort report rows by number of uncovered lines")
	cmd.Flags().BoolVarP(&sortPercent, "sort-percent", "p", false, "Sort report rows by percent uncovered")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the report to this file instead of stdout (.md selects markdown)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	return cmd
}
