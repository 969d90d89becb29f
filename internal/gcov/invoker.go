package gcov

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zjy-dev/gcov-collect/internal/exec"
	"github.com/zjy-dev/gcov-collect/internal/logger"
)

// InvocationError reports that gcov exited non-zero on an artifact. It aborts
// processing of that artifact only; the run continues with the others.
type InvocationError struct {
	Artifact string
	ExitCode int
	Stderr   string
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("gcov returned %d on file %s: %s",
		e.ExitCode, e.Artifact, strings.TrimSpace(e.Stderr))
}

// reportFiles groups the .gcov files one invocation produced, by filter
// verdict. Paths are absolute.
type reportFiles struct {
	active   []string
	filtered []string
	excluded []string
}

func (rf *reportFiles) all() []string {
	all := make([]string, 0, len(rf.active)+len(rf.filtered)+len(rf.excluded))
	all = append(all, rf.active...)
	all = append(all, rf.filtered...)
	return append(all, rf.excluded...)
}

// findReportFiles scans gcov's stdout for "creating FILE" lines and
// classifies each produced report through the gcov-file filters.
func findReportFiles(stdout, dir string, filters *Filters) *reportFiles {
	rf := &reportFiles{}
	for _, line := range strings.Split(stdout, "\n") {
		m := outputCreatedRE.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		name := m[1]
		abs := absReportPath(dir, name)
		switch filters.ClassifyReport(name, abs) {
		case ReportActive:
			rf.active = append(rf.active, abs)
		case ReportFiltered:
			logger.Debugf("filtering gcov file %s", name)
			rf.filtered = append(rf.filtered, abs)
		case ReportExcluded:
			logger.Debugf("excluding gcov file %s", name)
			rf.excluded = append(rf.excluded, abs)
		}
	}
	return rf
}

// processArtifact derives reports for one gcov data file and folds them into
// the collector.
//
// gcov must run from the directory the compiler ran in, which is not recorded
// anywhere, so each candidate directory is tried in turn: the tool is invoked
// with the candidate as the subprocess working directory, and a "cannot open
// source/graph file" diagnostic on stderr means wrong directory, try the
// next. A non-zero exit code is not part of that search; it fails the
// artifact outright. Exhausting every candidate is a warning, not an error.
func (a *Aggregator) processArtifact(ctx context.Context, artifact string, collector *Collector) error {
	abs, err := filepath.Abs(artifact)
	if err != nil {
		return fmt.Errorf("failed to resolve artifact path %s: %w", artifact, err)
	}
	dirName := filepath.Dir(abs)
	base := filepath.Base(abs)

	args := []string{
		abs,
		"--branch-counts", "--branch-probabilities", "--preserve-paths",
		"--object-directory", dirName,
	}
	// gcov's diagnostics are parsed as text, so the locale is pinned.
	env := []string{"LC_ALL=en_US"}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to determine working directory: %w", err)
	}
	candidates, diagnostics := candidateDirs(abs, a.opts.ObjectDirectory, cwd)

	done := false
	for _, wd := range candidates {
		if done {
			break
		}
		logger.Debugf("running %s %s in %s", a.opts.GcovCmd, strings.Join(args, " "), wd)

		result, err := a.runGcov(ctx, wd, args, env)
		if err != nil {
			return fmt.Errorf("failed to run %s on %s: %w", a.opts.GcovCmd, base, err)
		}
		if result.ExitCode != 0 {
			return &InvocationError{Artifact: base, ExitCode: result.ExitCode, Stderr: result.Stderr}
		}

		reports := findReportFiles(result.Stdout, wd, a.opts.Filters)

		if cannotOpenRE.MatchString(result.Stderr) {
			// Wrong working directory: keep the diagnostic and move on.
			diagnostics = append(diagnostics, result.Stderr)
		} else {
			for _, report := range reports.active {
				if err := a.parseReportFile(report, collector); err != nil {
					// A malformed report is rejected alone; other reports
					// from this invocation still count.
					logger.Errorf("rejecting gcov report %s: %v", report, err)
				}
			}
			done = true
		}

		if !a.opts.KeepReportFiles {
			for _, f := range reports.all() {
				if _, err := os.Stat(f); err == nil {
					os.Remove(f)
				}
			}
		}
	}

	if a.opts.DeleteArtifacts && !strings.HasSuffix(abs, "gcno") {
		os.Remove(abs)
	}

	if !done {
		logger.Warnf("gcov produced the following errors processing %s:\n\t%s\n\t(no working directory could be inferred that resolved them)",
			artifact, strings.Join(diagnostics, "\n\t"))
	}
	return nil
}

func (a *Aggregator) runGcov(ctx context.Context, dir string, args, env []string) (*exec.Result, error) {
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}
	return a.executor.RunInDir(ctx, dir, a.opts.GcovCmd, args, env)
}

func (a *Aggregator) parseReportFile(path string, collector *Collector) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open gcov report: %w", err)
	}
	defer f.Close()

	src, lines, err := ParseReport(f, ParseOptions{
		RootDir:                    a.opts.RootDir,
		Filters:                    a.opts.Filters,
		ExcludeUnreachableBranches: a.opts.ExcludeUnreachableBranches,
	})
	if err != nil {
		return err
	}
	if src == "" {
		return nil // filtered out
	}
	collector.Apply(src, lines)
	return nil
}
