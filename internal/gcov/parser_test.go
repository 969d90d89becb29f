package gcov

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjy-dev/gcov-collect/internal/covdata"
	"github.com/zjy-dev/gcov-collect/internal/logger"
)

func testFilters(t *testing.T, cfg FilterConfig) *Filters {
	t.Helper()
	f, err := NewFilters(cfg)
	require.NoError(t, err)
	return f
}

func parseString(t *testing.T, report string, opts ParseOptions) (string, *covdata.Lines, error) {
	t.Helper()
	if opts.Filters == nil {
		opts.Filters = testFilters(t, FilterConfig{})
	}
	return ParseReport(strings.NewReader(report), opts)
}

// captureWarnings redirects logger output into a buffer for the duration of
// the test.
func captureWarnings(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger.Init("info")
	logger.SetColorEnable(false)
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(os.Stderr) })
	return &buf
}

func TestParseReport_Header(t *testing.T) {
	t.Run("should reject a header with fewer than four fields", func(t *testing.T) {
		_, _, err := parseString(t, "-:0:Source\n", ParseOptions{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrReportFormat)
	})

	t.Run("should reject a header whose third field is not a source", func(t *testing.T) {
		_, _, err := parseString(t, "-:0:Graph:/x/a.gcno\n", ParseOptions{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrReportFormat)
	})

	t.Run("should reject an empty report", func(t *testing.T) {
		_, _, err := parseString(t, "", ParseOptions{})
		assert.ErrorIs(t, err, ErrReportFormat)
	})

	t.Run("should accept a Source header case-insensitively", func(t *testing.T) {
		path, lines, err := parseString(t, "-:0:SOURCE:/x/a.c\n", ParseOptions{})
		require.NoError(t, err)
		require.NotNil(t, lines)
		assert.Equal(t, "/x/a.c", path)
	})

	t.Run("should resolve relative source paths against the root", func(t *testing.T) {
		path, _, err := parseString(t, "-:0:Source:src/a.c\n", ParseOptions{RootDir: "/proj"})
		require.NoError(t, err)
		assert.Equal(t, "/proj/src/a.c", path)
	})
}

func TestParseReport_Classification(t *testing.T) {
	report := strings.Join([]string{
		"        -:    0:Source:/x/a.c",
		"        -:    0:Graph:/x/a.gcno",
		"        -:    1:#include <stdio.h>",
		"        -:    2:",
		"        3:    4:int main() {",
		"    #####:    5:  foo();",
		"    =====:    6:  bar();",
		"       12:    7:  return 0;",
		"        -:    8:}",
		"", // tolerated
	}, "\n")

	path, lines, err := parseString(t, report, ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, "/x/a.c", path)

	assert.Equal(t, map[int]int{4: 3, 7: 12}, lines.Covered)
	assert.Equal(t, map[int]bool{5: true}, lines.Uncovered)
	assert.Equal(t, map[int]bool{6: true}, lines.UncoveredExceptional)
	// Line 1 is a preprocessor directive with text, so it is not noncode;
	// the blank line and the closing brace are.
	assert.NotContains(t, lines.Noncode, 1)
	assert.Contains(t, lines.Noncode, 2)
	assert.Contains(t, lines.Noncode, 8)
}

func TestParseReport_DriftTolerance(t *testing.T) {
	t.Run("should tolerate partial-execution count markers", func(t *testing.T) {
		report := strings.Join([]string{
			"        -:    0:Source:/x/a.c",
			"      12*:    3:  maybe();",
		}, "\n")

		_, lines, err := parseString(t, report, ParseOptions{})
		require.NoError(t, err)
		assert.Equal(t, map[int]int{3: 12}, lines.Covered)
	})

	t.Run("should reuse the previous line number when the field is missing", func(t *testing.T) {
		report := strings.Join([]string{
			"        -:    0:Source:/x/a.c",
			"        4:    9:  if (x) {",
			"branch  0 taken 3",
			"branch  1 taken 1",
		}, "\n")

		_, lines, err := parseString(t, report, ParseOptions{})
		require.NoError(t, err)
		assert.Equal(t, map[int]int{0: 3, 1: 1}, lines.Branches[9])
	})

	t.Run("should warn on unrecognized payloads without aborting", func(t *testing.T) {
		buf := captureWarnings(t)
		report := strings.Join([]string{
			"        -:    0:Source:/x/a.c",
			"   wibble:    3:  foo();",
			"        2:    4:  bar();",
		}, "\n")

		_, lines, err := parseString(t, report, ParseOptions{})
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "unrecognized gcov output")
		assert.Equal(t, map[int]int{4: 2}, lines.Covered)
	})

	t.Run("should ignore call and function annotations", func(t *testing.T) {
		report := strings.Join([]string{
			"        -:    0:Source:/x/a.c",
			"        2:    4:  bar();",
			"function main called 2 returned 100%",
			"call    0 returned 2",
		}, "\n")

		buf := captureWarnings(t)
		_, lines, err := parseString(t, report, ParseOptions{})
		require.NoError(t, err)
		assert.Equal(t, map[int]int{4: 2}, lines.Covered)
		assert.NotContains(t, buf.String(), "unrecognized")
	})
}

func TestParseReport_ExclusionMarkers(t *testing.T) {
	t.Run("region turns executable lines into noncode", func(t *testing.T) {
		report := strings.Join([]string{
			"        -:    0:Source:/x/a.c",
			"        -:    4:  // GCOVR_EXCL_START",
			"    #####:    5:  foo();",
			"        7:    6:  bar();",
			"        -:    7:  // GCOVR_EXCL_STOP",
			"    #####:    8:  baz();",
		}, "\n")

		_, lines, err := parseString(t, report, ParseOptions{})
		require.NoError(t, err)
		assert.Empty(t, lines.Covered)
		assert.Equal(t, map[int]bool{8: true}, lines.Uncovered)
		assert.Contains(t, lines.Noncode, 5)
		assert.Contains(t, lines.Noncode, 6)
	})

	t.Run("single-line exclusion applies to exactly one line", func(t *testing.T) {
		report := strings.Join([]string{
			"        -:    0:Source:/x/a.c",
			"    #####:    5:  foo(); // LCOV_EXCL_LINE",
			"    #####:    6:  bar();",
		}, "\n")

		_, lines, err := parseString(t, report, ParseOptions{})
		require.NoError(t, err)
		assert.Contains(t, lines.Noncode, 5)
		assert.Equal(t, map[int]bool{6: true}, lines.Uncovered)
	})

	t.Run("family mismatch warns once and still pops", func(t *testing.T) {
		buf := captureWarnings(t)
		report := strings.Join([]string{
			"        -:    0:Source:/x/a.c",
			"        -:    4:  // GCOVR_EXCL_START",
			"        -:    5:  // LCOV_EXCL_STOP",
			"    #####:    6:  foo();",
		}, "\n")

		_, lines, err := parseString(t, report, ParseOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, strings.Count(buf.String(), "was terminated by"))
		// The stack is empty after the mismatched STOP, so line 6 is plain
		// uncovered, not excluded.
		assert.Equal(t, map[int]bool{6: true}, lines.Uncovered)
	})

	t.Run("unmatched stop warns and does nothing", func(t *testing.T) {
		buf := captureWarnings(t)
		report := strings.Join([]string{
			"        -:    0:Source:/x/a.c",
			"        -:    4:  // GCOV_EXCL_STOP",
			"    #####:    5:  foo();",
		}, "\n")

		_, lines, err := parseString(t, report, ParseOptions{})
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "without corresponding")
		assert.Equal(t, map[int]bool{5: true}, lines.Uncovered)
	})

	t.Run("unterminated region warns at end of report", func(t *testing.T) {
		buf := captureWarnings(t)
		report := strings.Join([]string{
			"        -:    0:Source:/x/a.c",
			"        -:    4:  // GCOVR_EXCL_START",
			"    #####:    5:  foo();",
		}, "\n")

		_, _, err := parseString(t, report, ParseOptions{})
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "no corresponding GCOVR_EXCL_STOP")
	})

	t.Run("line and start on the same line produce one exclusion effect each", func(t *testing.T) {
		report := strings.Join([]string{
			"        -:    0:Source:/x/a.c",
			"        -:    4:  // GCOVR_EXCL_LINE GCOVR_EXCL_START",
			"    #####:    5:  foo();",
			"        -:    6:  // GCOVR_EXCL_STOP",
			"    #####:    7:  foo();",
		}, "\n")

		_, lines, err := parseString(t, report, ParseOptions{})
		require.NoError(t, err)
		// Line 5 sits inside the START region; the LINE sentinel was popped
		// at the end of line 4 and must not leak past it.
		assert.Contains(t, lines.Noncode, 5)
		assert.Equal(t, map[int]bool{7: true}, lines.Uncovered)
	})
}

func TestParseReport_BranchExclusion(t *testing.T) {
	braceReport := strings.Join([]string{
		"        -:    0:Source:/x/a.c",
		"        1:    3:{}",
		"branch  0 taken 1",
	}, "\n")

	t.Run("suppressed on brace-only lines when enabled", func(t *testing.T) {
		_, lines, err := parseString(t, braceReport, ParseOptions{ExcludeUnreachableBranches: true})
		require.NoError(t, err)
		assert.Empty(t, lines.Branches)
	})

	t.Run("retained when disabled", func(t *testing.T) {
		_, lines, err := parseString(t, braceReport, ParseOptions{})
		require.NoError(t, err)
		assert.Equal(t, map[int]int{0: 1}, lines.Branches[3])
	})

	t.Run("suppressed on excluded lines when enabled", func(t *testing.T) {
		report := strings.Join([]string{
			"        -:    0:Source:/x/a.c",
			"        -:    2:  // GCOVR_EXCL_START",
			"        1:    3:  if (x) y();",
			"branch  0 taken 1",
			"        -:    4:  // GCOVR_EXCL_STOP",
		}, "\n")
		_, lines, err := parseString(t, report, ParseOptions{ExcludeUnreachableBranches: true})
		require.NoError(t, err)
		assert.Empty(t, lines.Branches)
	})

	t.Run("comment-only text counts as compiler-generated", func(t *testing.T) {
		report := strings.Join([]string{
			"        -:    0:Source:/x/a.c",
			"        1:    3:} // cleanup",
			"branch  0 taken 1",
		}, "\n")
		_, lines, err := parseString(t, report, ParseOptions{ExcludeUnreachableBranches: true})
		require.NoError(t, err)
		assert.Empty(t, lines.Branches)
	})

	t.Run("never-executed branches are dropped silently", func(t *testing.T) {
		report := strings.Join([]string{
			"        -:    0:Source:/x/a.c",
			"        1:    3:  if (x) y();",
			"branch  0 never executed",
			"branch  1 taken 4",
		}, "\n")
		_, lines, err := parseString(t, report, ParseOptions{})
		require.NoError(t, err)
		assert.Equal(t, map[int]int{1: 4}, lines.Branches[3])
	})
}

func TestParseReport_Filtering(t *testing.T) {
	report := "-:0:Source:/x/vendor/a.c\n        1:    3:  foo();\n"

	t.Run("excluded files yield no record and no error", func(t *testing.T) {
		filters := testFilters(t, FilterConfig{Exclude: []string{".*/vendor/.*"}})
		path, lines, err := ParseReport(strings.NewReader(report), ParseOptions{Filters: filters})
		require.NoError(t, err)
		assert.Empty(t, path)
		assert.Nil(t, lines)
	})

	t.Run("inclusion filters use any-match-wins", func(t *testing.T) {
		filters := testFilters(t, FilterConfig{Filter: []string{"/nomatch/.*", "/x/.*"}})
		path, _, err := ParseReport(strings.NewReader(report), ParseOptions{Filters: filters})
		require.NoError(t, err)
		assert.Equal(t, "/x/vendor/a.c", path)
	})

	t.Run("non-matching inclusion filters drop the file", func(t *testing.T) {
		filters := testFilters(t, FilterConfig{Filter: []string{"/other/.*"}})
		path, _, err := ParseReport(strings.NewReader(report), ParseOptions{Filters: filters})
		require.NoError(t, err)
		assert.Empty(t, path)
	})
}
