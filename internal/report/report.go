package report

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/zjy-dev/gcov-collect/internal/covdata"
)

// WriteFunc renders an aggregated coverage map to w.
type WriteFunc func(w io.Writer, files covdata.FileMap, opts Options) error

// WriterFor picks the renderer for an output destination by file extension.
// Markdown for .md files, the classic text table for everything else
// (including stdout, signalled by an empty path).
func WriterFor(outputPath string) WriteFunc {
	if strings.EqualFold(filepath.Ext(outputPath), ".md") {
		return WriteMarkdown
	}
	return WriteText
}
