// Package gcov turns gcov data files into aggregated per-source-file coverage
// records. It infers the working directory the compiler was run from, invokes
// the external gcov tool there, parses the textual reports it emits, and folds
// every report into a covdata.FileMap keyed by absolute source path.
package gcov

import "regexp"

var (
	// outputCreatedRE recognizes the "Creating 'foo.c.gcov'" lines gcov
	// prints on stdout for every report file it writes.
	outputCreatedRE = regexp.MustCompile("[Cc]reating [`'](.*)'$")

	// cannotOpenRE recognizes the stderr diagnostic gcov emits when run from
	// the wrong working directory.
	cannotOpenRE = regexp.MustCompile(`cannot open (source|graph) file`)

	// excludeMarkerRE matches coverage exclusion markers embedded in source
	// comments, e.g. GCOVR_EXCL_START or LCOV_EXCL_LINE.
	excludeMarkerRE = regexp.MustCompile(`([GL]COVR?)_EXCL_(LINE|START|STOP)`)

	cStyleCommentRE   = regexp.MustCompile(`/\*.*?\*/`)
	cppStyleCommentRE = regexp.MustCompile(`//.*`)
)

// excludeFlag is the cheap substring test run before the marker regexp.
const excludeFlag = "_EXCL_"

// stripComments removes line comments and single-line block comments from a
// source fragment. Multi-line block comments are not tracked; the heuristic
// that uses this only looks at one line at a time.
func stripComments(code string) string {
	code = cppStyleCommentRE.ReplaceAllString(code, "")
	return cStyleCommentRE.ReplaceAllString(code, "")
}
