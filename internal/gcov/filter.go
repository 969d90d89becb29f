package gcov

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Filters holds the compiled inclusion/exclusion patterns for source files and
// for the .gcov report files the tool generates. All patterns are matched from
// the start of the path, mirroring how the original option surface behaved.
type Filters struct {
	srcInclude  []*regexp.Regexp
	srcExclude  []*regexp.Regexp
	gcovInclude []*regexp.Regexp
	gcovExclude []*regexp.Regexp
	rootPrefix  *regexp.Regexp
}

// FilterConfig carries the raw pattern strings from configuration.
type FilterConfig struct {
	RootDir     string
	Filter      []string
	Exclude     []string
	GcovFilter  []string
	GcovExclude []string
}

// NewFilters compiles the configured patterns. An empty inclusion list means
// "include everything"; exclusion always wins over inclusion.
func NewFilters(cfg FilterConfig) (*Filters, error) {
	f := &Filters{}
	var err error
	if f.srcInclude, err = compileAnchored(cfg.Filter); err != nil {
		return nil, fmt.Errorf("invalid filter pattern: %w", err)
	}
	if f.srcExclude, err = compileAnchored(cfg.Exclude); err != nil {
		return nil, fmt.Errorf("invalid exclude pattern: %w", err)
	}
	if f.gcovInclude, err = compileAnchored(cfg.GcovFilter); err != nil {
		return nil, fmt.Errorf("invalid gcov-filter pattern: %w", err)
	}
	if f.gcovExclude, err = compileAnchored(cfg.GcovExclude); err != nil {
		return nil, fmt.Errorf("invalid gcov-exclude pattern: %w", err)
	}
	if cfg.RootDir != "" {
		f.rootPrefix = regexp.MustCompile("^" + regexp.QuoteMeta(cfg.RootDir+string(os.PathSeparator)))
	}
	return f, nil
}

func compileAnchored(patterns []string) ([]*regexp.Regexp, error) {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("^(?:" + p + ")")
		if err != nil {
			return nil, fmt.Errorf("%q: %w", p, err)
		}
		res = append(res, re)
	}
	return res, nil
}

// StripRoot returns the path with the project root prefix removed, for
// display. If the root prefix does not match at the start of the path, the
// path is returned unchanged.
func (f *Filters) StripRoot(path string) string {
	if f.rootPrefix == nil {
		return path
	}
	stripped := f.rootPrefix.ReplaceAllString(path, "")
	if !strings.HasSuffix(path, stripped) {
		return path
	}
	return stripped
}

// IncludeSource decides whether coverage for the given absolute source path is
// wanted. Inclusion patterns use any-match-wins; exclusion patterns are
// checked against both the root-stripped and the absolute name, any match
// excluding. The returned display name has the root prefix stripped.
func (f *Filters) IncludeSource(abs string) (display string, ok bool) {
	if len(f.srcInclude) > 0 && !anyMatch(f.srcInclude, abs) {
		return "", false
	}
	display = f.StripRoot(abs)
	if anyMatch(f.srcExclude, display) || anyMatch(f.srcExclude, abs) {
		return "", false
	}
	return display, true
}

// ReportClass classifies a generated .gcov report file.
type ReportClass int

const (
	ReportActive ReportClass = iota
	ReportFiltered
	ReportExcluded
)

// ClassifyReport applies the gcov-file patterns to a report file, testing the
// name exactly as gcov printed it and its absolute form.
func (f *Filters) ClassifyReport(name, abs string) ReportClass {
	if len(f.gcovInclude) > 0 && !anyMatch(f.gcovInclude, name) {
		return ReportFiltered
	}
	if anyMatch(f.gcovExclude, name) || anyMatch(f.gcovExclude, abs) {
		return ReportExcluded
	}
	return ReportActive
}

func anyMatch(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// absReportPath resolves a report name printed by gcov against the directory
// gcov was run in.
func absReportPath(dir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}
