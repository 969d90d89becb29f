package report

import (
	"fmt"
	"io"

	"github.com/zjy-dev/gcov-collect/internal/covdata"
)

// WriteMarkdown renders the coverage table as a GitHub-flavored markdown
// table, suitable for pasting into pull requests or CI summaries.
func WriteMarkdown(w io.Writer, files covdata.FileMap, opts Options) error {
	execHeader, coverHeader := "Lines", "Exec"
	if opts.BranchMode {
		execHeader, coverHeader = "Branches", "Taken"
	}

	if _, err := fmt.Fprintf(w, "| File | %s | %s | Cover | Missing |\n|---|---:|---:|---:|---|\n",
		execHeader, coverHeader); err != nil {
		return err
	}

	totalLines := 0
	totalCovered := 0
	for _, path := range sortedPaths(files, opts) {
		cd := files[path]
		total, cover, percent, missing := rowStats(cd, opts)
		totalLines += total
		totalCovered += cover
		if _, err := fmt.Fprintf(w, "| %s | %d | %d | %s%% | %s |\n",
			displayName(cd, opts), total, cover, percent, missing); err != nil {
			return err
		}
	}

	percent := "--"
	if totalLines > 0 {
		percent = fmt.Sprintf("%d", 100*totalCovered/totalLines)
	}
	_, err := fmt.Fprintf(w, "| **TOTAL** | **%d** | **%d** | **%s%%** | |\n",
		totalLines, totalCovered, percent)
	return err
}
