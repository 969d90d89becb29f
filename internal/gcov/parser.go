package gcov

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zjy-dev/gcov-collect/internal/covdata"
	"github.com/zjy-dev/gcov-collect/internal/logger"
)

// ErrReportFormat marks a gcov report whose header line could not be parsed.
// The report is rejected as a whole; records already merged from other
// reports are unaffected.
var ErrReportFormat = errors.New("malformed gcov report header")

// ParseOptions configures report parsing.
type ParseOptions struct {
	// RootDir is the directory relative source paths resolve against.
	RootDir string

	// Filters selects which source files contribute data.
	Filters *Filters

	// ExcludeUnreachableBranches suppresses branch records that gcov attaches
	// to brace-only or exclusion-marked lines.
	ExcludeUnreachableBranches bool
}

// exclusion is one entry of the parse-time exclusion stack: either a marked
// region opened by FAMILY_EXCL_START, or the single-line sentinel pushed for
// FAMILY_EXCL_LINE and popped again at the end of the same line.
type exclusion struct {
	singleLine bool
	family     string
	startLine  int
}

// ParseReport consumes the textual gcov report for exactly one compiled
// source file and returns the resolved absolute source path together with the
// line classification. A filtered or excluded source yields ("", nil, nil).
// Only an unparseable header is an error; everything else the parser does not
// understand is logged as a warning and skipped.
func ParseReport(r io.Reader, opts ParseOptions) (string, *covdata.Lines, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", nil, fmt.Errorf("failed to read gcov report: %w", err)
		}
		return "", nil, fmt.Errorf("%w: empty report", ErrReportFormat)
	}
	header := scanner.Text()

	// The header has the shape "-:0:Source:path/to/file.c". At least four
	// colon-delimited fields with the third naming the source are required.
	segments := strings.SplitN(header, ":", 4)
	if len(segments) != 4 || !strings.HasSuffix(strings.ToLower(strings.TrimSpace(segments[2])), "source") {
		return "", nil, fmt.Errorf("%w, line 1: %q", ErrReportFormat, strings.TrimRight(header, "\n"))
	}

	fname := strings.TrimSpace(segments[3])
	if !filepath.IsAbs(fname) {
		fname = filepath.Join(opts.RootDir, fname)
	}
	fname = filepath.Clean(fname)

	display, ok := opts.Filters.IncludeSource(fname)
	if !ok {
		logger.Debugf("filtering coverage data for file %s", fname)
		return "", nil, nil
	}
	logger.Debugf("parsing coverage data for file %s", display)

	lines := covdata.NewLines()
	var excluding []exclusion
	lineno := 0
	lastCodeLine := ""
	lastCodeLineno := 0
	lastCodeExcluded := false

	for scanner.Scan() {
		line := scanner.Text()
		segments := strings.SplitN(line, ":", 3)
		tmp := strings.TrimSpace(segments[0])
		if len(segments) > 1 {
			// Some gcov versions omit the line number on branch/call
			// annotation lines; the previous value is reused on purpose.
			if n, err := strconv.Atoi(strings.TrimSpace(segments[1])); err == nil {
				lineno = n
			}
		}

		if strings.Contains(line, excludeFlag) {
			excluding = scanMarkers(line, lineno, fname, excluding)
		}

		isCode := false
		switch {
		case tmp == "":
			logger.Warnf("unrecognized gcov output (empty count field) in %s", fname)

		case tmp[0] == '-' || (len(excluding) > 0 && strings.ContainsRune("#=0123456789", rune(tmp[0]))):
			// Not executable per gcov, or executable but inside an exclusion
			// region. Remember certain non-executed lines for range
			// compression.
			isCode = true
			code := ""
			if len(segments) == 3 {
				code = strings.TrimSpace(segments[2])
			}
			if len(excluding) > 0 || code == "" || code == "{" || code == "}" ||
				strings.HasPrefix(code, "//") || code == "else" {
				lines.Noncode[lineno] = true
			}

		case tmp[0] == '#':
			isCode = true
			lines.Uncovered[lineno] = true

		case tmp[0] == '=':
			isCode = true
			lines.UncoveredExceptional[lineno] = true

		case tmp[0] >= '0' && tmp[0] <= '9':
			isCode = true
			if n, err := parseCount(tmp); err == nil {
				lines.Covered[lineno] = n
			} else {
				logger.Warnf("unrecognized execution count %q on line %d of %s", tmp, lineno, fname)
			}

		case strings.HasPrefix(tmp, "branch"):
			parseBranch(line, lines, lineno, fname, opts.ExcludeUnreachableBranches,
				lastCodeLine, lastCodeLineno, lastCodeExcluded)

		case strings.HasPrefix(tmp, "call"):
			// informational

		case strings.HasPrefix(tmp, "function"):
			// informational

		case tmp[0] == 'f':
			// other summary noise from older gcov versions

		default:
			logger.Warnf("unrecognized gcov output %q in %s; this may indicate a gcov format change", tmp, fname)
		}

		// Save the code line for the unreachable-branch heuristic: branch
		// records always refer to the most recent code line.
		if isCode {
			if len(segments) == 3 {
				lastCodeLine = segments[2]
			} else {
				lastCodeLine = ""
			}
			lastCodeLineno = lineno
			lastCodeExcluded = len(excluding) > 0
		}

		// Single-line exclusions apply to exactly one line.
		if n := len(excluding); n > 0 && excluding[n-1].singleLine {
			excluding = excluding[:n-1]
		}
	}
	if err := scanner.Err(); err != nil {
		return "", nil, fmt.Errorf("failed to read gcov report for %s: %w", fname, err)
	}

	for _, e := range excluding {
		logger.Warnf("%s_EXCL_START on line %d of %s has no corresponding %s_EXCL_STOP",
			e.family, e.startLine, fname, e.family)
	}

	return fname, lines, nil
}

// scanMarkers applies every exclusion marker on the line to the stack. The
// single-line sentinel is buffered until all markers are seen so a line
// carrying both LINE and START/STOP contributes exactly one exclusion effect,
// and duplicate LINE markers collapse into one.
func scanMarkers(line string, lineno int, fname string, excluding []exclusion) []exclusion {
	exclLine := false
	for _, m := range excludeMarkerRE.FindAllStringSubmatch(line, -1) {
		family, flag := m[1], m[2]
		switch flag {
		case "START":
			excluding = append(excluding, exclusion{family: family, startLine: lineno})
		case "STOP":
			if n := len(excluding); n > 0 {
				top := excluding[n-1]
				excluding = excluding[:n-1]
				if top.family != family {
					logger.Warnf("%s_EXCL_START on line %d was terminated by %s_EXCL_STOP on line %d, when processing %s",
						top.family, top.startLine, family, lineno, fname)
				}
			} else {
				logger.Warnf("mismatched coverage exclusion flags: %s_EXCL_STOP on line %d without corresponding %s_EXCL_START, when processing %s",
					family, lineno, family, fname)
			}
		case "LINE":
			exclLine = true
		}
	}
	if exclLine {
		excluding = append(excluding, exclusion{singleLine: true})
	}
	return excluding
}

// parseBranch handles one "branch N taken M" record, attributing it to the
// current line. Branches on lines the compiler synthesized (brace-only text)
// or inside exclusion regions are suppressed when requested; branches whose
// count field does not parse (e.g. "never executed") are dropped silently.
func parseBranch(line string, lines *covdata.Lines, lineno int, fname string,
	excludeUnreachable bool, lastCodeLine string, lastCodeLineno int, lastCodeExcluded bool) {

	if excludeUnreachable && lineno == lastCodeLineno {
		if lastCodeExcluded {
			logger.Debugf("excluding unreachable branch on line %d in file %s (marked with exclude pattern)", lineno, fname)
			return
		}
		code := strings.TrimSpace(stripComments(lastCodeLine))
		nospace := strings.ReplaceAll(code, " ", "")
		if code == "" || code == "{" || code == "}" || nospace == "{}" {
			logger.Debugf("excluding unreachable branch on line %d in file %s (detected as compiler-generated code)", lineno, fname)
			return
		}
	}

	fields := strings.Fields(line)
	if len(fields) < 4 {
		return
	}
	count, err := strconv.Atoi(fields[3])
	if err != nil {
		return
	}
	index, err := strconv.Atoi(fields[1])
	if err != nil {
		return
	}
	d := lines.Branches[lineno]
	if d == nil {
		d = make(map[int]int)
		lines.Branches[lineno] = d
	}
	d[index] = count
}

// parseCount parses an execution count field. Newer gcov versions append a
// '*' to counts of lines whose basic blocks were only partially executed;
// the marker is tolerated and ignored.
func parseCount(field string) (int, error) {
	return strconv.Atoi(strings.TrimSuffix(field, "*"))
}
