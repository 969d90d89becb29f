// Package report renders the aggregated coverage model for humans. Only the
// classic text table lives here; richer renderers consume the same
// covdata.FileMap contract downstream.
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/zjy-dev/gcov-collect/internal/covdata"
)

// Options controls the text report layout.
type Options struct {
	// BranchMode reports branch statistics instead of line statistics.
	BranchMode bool

	// SortUncovered orders rows by absolute number of uncovered items;
	// SortPercent orders by fraction uncovered. Default is by file name.
	SortUncovered bool
	SortPercent   bool

	// NameFor maps an absolute source path to its display name (typically
	// stripping the project root). Nil leaves paths as-is.
	NameFor func(path string) string
}

const tableWidth = 78

// WriteText renders the classic fixed-width coverage table.
func WriteText(w io.Writer, files covdata.FileMap, opts Options) error {
	rule := strings.Repeat("-", tableWidth)

	execHeader, coverHeader := "Lines", "Exec"
	if opts.BranchMode {
		execHeader, coverHeader = "Branches", "Taken"
	}
	if _, err := fmt.Fprintf(w, "%s\n%-40s%8s%8s  Cover   Missing\n%s\n",
		rule, "File", execHeader, coverHeader, rule); err != nil {
		return err
	}

	totalLines := 0
	totalCovered := 0
	for _, path := range sortedPaths(files, opts) {
		cd := files[path]
		total, cover, row := fileRow(cd, opts)
		totalLines += total
		totalCovered += cover
		if _, err := fmt.Fprintln(w, row); err != nil {
			return err
		}
	}

	percent := "--"
	if totalLines > 0 {
		percent = strconv.Itoa(100 * totalCovered / totalLines)
	}
	_, err := fmt.Fprintf(w, "%s\n%-40s%8d%8d%6s%%\n%s\n",
		rule, "TOTAL", totalLines, totalCovered, percent, rule)
	return err
}

// fileRow builds one table row and returns the totals it contributes.
func fileRow(cd *covdata.CoverageData, opts Options) (total, cover int, row string) {
	name := displayName(cd, opts)
	left := fmt.Sprintf("%-40s", name)
	if len(name) > 40 {
		// Long names get their own line so the numeric columns stay aligned.
		left = name + "\n" + strings.Repeat(" ", 40)
	}

	total, cover, percent, missing := rowStats(cd, opts)
	return total, cover, fmt.Sprintf("%s%8d%8d%6s%%   %s", left, total, cover, percent, missing)
}

func displayName(cd *covdata.CoverageData, opts Options) string {
	if opts.NameFor != nil {
		return opts.NameFor(cd.Path)
	}
	return cd.Path
}

// rowStats computes the per-file columns shared by every renderer.
func rowStats(cd *covdata.CoverageData, opts Options) (total, cover int, percent, missing string) {
	total, cover, percent = cd.Coverage(opts.BranchMode)
	if opts.BranchMode {
		missing = cd.BranchMissLines()
	} else {
		missing = cd.UncoveredRanges()
		if exceptional := cd.UncoveredExceptionalRanges(); exceptional != "" {
			missing += " [* " + exceptional + "]"
		}
	}
	return total, cover, percent, missing
}

func sortedPaths(files covdata.FileMap, opts Options) []string {
	paths := files.Paths()
	switch {
	case opts.SortUncovered:
		sort.SliceStable(paths, func(i, j int) bool {
			return numUncovered(files[paths[i]], opts.BranchMode) <
				numUncovered(files[paths[j]], opts.BranchMode)
		})
	case opts.SortPercent:
		sort.SliceStable(paths, func(i, j int) bool {
			return percentUncovered(files[paths[i]], opts.BranchMode) <
				percentUncovered(files[paths[j]], opts.BranchMode)
		})
	}
	return paths
}

func numUncovered(cd *covdata.CoverageData, branchMode bool) int {
	total, cover, _ := cd.Coverage(branchMode)
	return total - cover
}

func percentUncovered(cd *covdata.CoverageData, branchMode bool) float64 {
	total, cover, _ := cd.Coverage(branchMode)
	if cover > 0 {
		return -float64(cover) / float64(total)
	}
	if total > 0 {
		return float64(total)
	}
	return 1e6
}
