package gcov

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zjy-dev/gcov-collect/internal/covdata"
	"github.com/zjy-dev/gcov-collect/internal/exec"
	"github.com/zjy-dev/gcov-collect/internal/logger"
)

// Options configures a coverage collection run.
type Options struct {
	RootDir                    string
	Filters                    *Filters
	GcovCmd                    string
	ObjectDirectory            string
	ExcludeUnreachableBranches bool

	// KeepReportFiles retains the .gcov files gcov writes; DeleteArtifacts
	// removes processed data files (never .gcno notes files).
	KeepReportFiles bool
	DeleteArtifacts bool

	// Jobs bounds concurrent artifact processing; values below 2 keep the
	// reference sequential order.
	Jobs int

	// Timeout bounds one gcov invocation; zero means no limit.
	Timeout time.Duration
}

// Aggregator drives the whole run: for every artifact it resolves a working
// directory, invokes gcov, and folds the parsed reports into one FileMap.
type Aggregator struct {
	executor exec.Executor
	opts     Options
}

// NewAggregator creates an Aggregator using the given executor for gcov
// invocations.
func NewAggregator(executor exec.Executor, opts Options) *Aggregator {
	if opts.GcovCmd == "" {
		opts.GcovCmd = "gcov"
	}
	return &Aggregator{executor: executor, opts: opts}
}

// Collector accumulates per-file coverage records. Merges for different files
// are independent, but the map itself is shared across artifact goroutines,
// so every upsert serializes on the mutex.
type Collector struct {
	mu    sync.Mutex
	files covdata.FileMap
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{files: covdata.FileMap{}}
}

// Apply upserts one parsed report into the record for path.
func (c *Collector) Apply(path string, lines *covdata.Lines) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files.Apply(path, lines)
}

// Files hands out the accumulated map. Callers treat it as read-only.
func (c *Collector) Files() covdata.FileMap {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.files
}

// ProcessArtifacts processes every artifact and returns the completed map
// from absolute source path to coverage record. The working directory of the
// process is never modified; gcov runs with an explicit per-invocation
// directory instead.
//
// A failing artifact does not abort the run: its error is joined into the
// returned error while the remaining artifacts still contribute. Artifacts
// run concurrently when Jobs > 1; with one job the submission order is the
// processing order.
func (a *Aggregator) ProcessArtifacts(ctx context.Context, artifacts []string) (covdata.FileMap, error) {
	collector := NewCollector()

	jobs := a.opts.Jobs
	if jobs < 1 {
		jobs = 1
	}

	var (
		errMu   sync.Mutex
		allErrs []error
	)

	// A plain errgroup (not WithContext) on purpose: one artifact's failure
	// must not cancel the others.
	var g errgroup.Group
	g.SetLimit(jobs)
	for _, artifact := range artifacts {
		artifact := artifact
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := a.processArtifact(ctx, artifact, collector); err != nil {
				errMu.Lock()
				allErrs = append(allErrs, err)
				errMu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		allErrs = append(allErrs, err)
	}

	files := collector.Files()
	logger.Infof("gathered coverage data for %d files", len(files))
	return files, errors.Join(allErrs...)
}
