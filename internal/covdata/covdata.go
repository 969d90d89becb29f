package covdata

import (
	"sort"
	"strconv"
	"strings"
)

// Lines holds the classification of a single parsed gcov report: which lines
// were covered (and how often), which were reachable but never executed, which
// were executed only on an exceptional path, branch hit counts, and which
// lines carry no executable code at all.
type Lines struct {
	Uncovered            map[int]bool
	UncoveredExceptional map[int]bool
	Covered              map[int]int
	Branches             map[int]map[int]int
	Noncode              map[int]bool
}

// NewLines returns an empty classification with all maps allocated.
func NewLines() *Lines {
	return &Lines{
		Uncovered:            make(map[int]bool),
		UncoveredExceptional: make(map[int]bool),
		Covered:              make(map[int]int),
		Branches:             make(map[int]map[int]int),
		Noncode:              make(map[int]bool),
	}
}

// CoverageData is the per-source-file aggregate. One instance exists per
// absolute source path; every gcov report that names the same file is folded
// in via Apply. Counts only ever grow across merges.
type CoverageData struct {
	Path                 string
	Covered              map[int]int
	Uncovered            map[int]bool
	UncoveredExceptional map[int]bool
	Noncode              map[int]bool
	AllLines             map[int]bool
	Branches             map[int]map[int]int
}

func newCoverageData(path string) *CoverageData {
	return &CoverageData{
		Path:                 path,
		Covered:              make(map[int]int),
		Uncovered:            make(map[int]bool),
		UncoveredExceptional: make(map[int]bool),
		Noncode:              make(map[int]bool),
		AllLines:             make(map[int]bool),
		Branches:             make(map[int]map[int]int),
	}
}

// update folds one report's classification into the aggregate.
//
// Uncovered sets and AllLines are unioned; Covered and Branches counts are
// summed per line (and per branch index); Noncode is intersected, so a line
// counts as non-code only if every report agreed. Finally any line that is
// covered anywhere is dropped from both uncovered sets, keeping the three
// classifications pairwise disjoint.
func (cd *CoverageData) update(l *Lines) {
	for ln := range l.Uncovered {
		cd.AllLines[ln] = true
		cd.Uncovered[ln] = true
	}
	for ln := range l.UncoveredExceptional {
		cd.AllLines[ln] = true
		cd.UncoveredExceptional[ln] = true
	}
	for ln, n := range l.Covered {
		cd.AllLines[ln] = true
		cd.Covered[ln] += n
	}
	for ln := range cd.Noncode {
		if !l.Noncode[ln] {
			delete(cd.Noncode, ln)
		}
	}
	for ln, branches := range l.Branches {
		d := cd.Branches[ln]
		if d == nil {
			d = make(map[int]int)
			cd.Branches[ln] = d
		}
		for b, n := range branches {
			d[b] += n
		}
	}
	for ln := range cd.Covered {
		delete(cd.Uncovered, ln)
		delete(cd.UncoveredExceptional, ln)
	}
}

// Coverage returns the derived statistics for this file. In branch mode the
// total is the number of recorded branches and cover the number taken at
// least once; in line mode the total is every known line and cover the
// covered ones. Percent is the integer-truncated ratio, or "--" when there is
// nothing to measure.
func (cd *CoverageData) Coverage(branchMode bool) (total, cover int, percent string) {
	if branchMode {
		for _, branches := range cd.Branches {
			for _, n := range branches {
				total++
				if n > 0 {
					cover++
				}
			}
		}
	} else {
		total = len(cd.AllLines)
		cover = len(cd.Covered)
	}
	if total == 0 {
		return total, cover, "--"
	}
	return total, cover, strconv.Itoa(100 * cover / total)
}

// UncoveredRanges returns the compressed range string for the plain uncovered
// set, e.g. "3,7-9,15".
func (cd *CoverageData) UncoveredRanges() string {
	return compressRanges(setToSlice(cd.Uncovered), cd.Noncode)
}

// UncoveredExceptionalRanges returns the compressed range string for lines
// reached only via exceptional control flow.
func (cd *CoverageData) UncoveredExceptionalRanges() string {
	return compressRanges(setToSlice(cd.UncoveredExceptional), cd.Noncode)
}

// BranchMissLines lists, in ascending order, every line owning at least one
// branch that was never taken. Branch results are not range-aggregated.
func (cd *CoverageData) BranchMissLines() string {
	var lines []int
	for ln, branches := range cd.Branches {
		for _, n := range branches {
			if n == 0 {
				lines = append(lines, ln)
				break
			}
		}
	}
	sort.Ints(lines)
	parts := make([]string, len(lines))
	for i, ln := range lines {
		parts[i] = strconv.Itoa(ln)
	}
	return strings.Join(parts, ",")
}

// FileMap maps an absolute source path to its coverage aggregate. The run
// aggregator owns the map exclusively; reporters receive it read-only.
type FileMap map[string]*CoverageData

// Apply upserts one report's classification: the record is created on first
// sight of the path and merged into thereafter.
func (m FileMap) Apply(path string, l *Lines) *CoverageData {
	cd, ok := m[path]
	if !ok {
		cd = newCoverageData(path)
		// The first report seeds the non-code set; later reports only
		// intersect it.
		for ln := range l.Noncode {
			cd.Noncode[ln] = true
		}
		m[path] = cd
	}
	cd.update(l)
	return cd
}

// Paths returns the recorded source paths in ascending order.
func (m FileMap) Paths() []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func setToSlice(set map[int]bool) []int {
	s := make([]int, 0, len(set))
	for ln := range set {
		s = append(s, ln)
	}
	return s
}

// compressRanges renders sorted line numbers as comma-separated singles and
// closed ranges. A gap is bridged when every line inside it is non-code, so
// uncovered runs separated only by braces or comments still read as one
// range.
func compressRanges(lines []int, noncode map[int]bool) string {
	if len(lines) == 0 {
		return ""
	}
	sort.Ints(lines)

	var ranges []string
	flush := func(first, last int) {
		if first == last {
			ranges = append(ranges, strconv.Itoa(first))
		} else {
			ranges = append(ranges, strconv.Itoa(first)+"-"+strconv.Itoa(last))
		}
	}

	first := lines[0]
	last := lines[0]
	for _, ln := range lines[1:] {
		if ln == last+1 {
			last = ln
			continue
		}
		bridged := true
		for gap := last + 1; gap < ln; gap++ {
			if !noncode[gap] {
				bridged = false
				break
			}
		}
		if bridged {
			last = ln
			continue
		}
		flush(first, last)
		first = ln
		last = ln
	}
	flush(first, last)
	return strings.Join(ranges, ",")
}
