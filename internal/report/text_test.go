package report

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjy-dev/gcov-collect/internal/covdata"
)

func record(m covdata.FileMap, path string, mutate func(*covdata.Lines)) {
	l := covdata.NewLines()
	mutate(l)
	m.Apply(path, l)
}

// rowNames extracts the file column of every data row, in order.
func rowNames(output string) []string {
	var names []string
	for _, line := range strings.Split(output, "\n") {
		switch {
		case line == "", strings.HasPrefix(line, "-"),
			strings.HasPrefix(line, "File"), strings.HasPrefix(line, "TOTAL"):
			continue
		}
		names = append(names, strings.Fields(line)[0])
	}
	return names
}

func TestWriteText_LineMode(t *testing.T) {
	files := covdata.FileMap{}
	record(files, "/proj/src/a.c", func(l *covdata.Lines) {
		l.Covered[3] = 1
		l.Uncovered[4] = true
	})

	var buf bytes.Buffer
	err := WriteText(&buf, files, Options{
		NameFor: func(path string) string { return strings.TrimPrefix(path, "/proj/") },
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 7)

	rule := strings.Repeat("-", 78)
	assert.Equal(t, rule, lines[0])
	assert.Equal(t, fmt.Sprintf("%-40s%8s%8s  Cover   Missing", "File", "Lines", "Exec"), lines[1])
	assert.Equal(t, rule, lines[2])
	assert.Equal(t, fmt.Sprintf("%-40s%8d%8d%6s%%   %s", "src/a.c", 2, 1, "50", "4"), lines[3])
	assert.Equal(t, rule, lines[4])
	assert.Equal(t, fmt.Sprintf("%-40s%8d%8d%6s%%", "TOTAL", 2, 1, "50"), lines[5])
	assert.Equal(t, rule, lines[6])
}

func TestWriteText_ExceptionalSuffix(t *testing.T) {
	files := covdata.FileMap{}
	record(files, "a.c", func(l *covdata.Lines) {
		l.Uncovered[3] = true
		l.UncoveredExceptional[8] = true
		l.UncoveredExceptional[9] = true
	})

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, files, Options{}))

	assert.Contains(t, buf.String(), "3 [* 8-9]")
}

func TestWriteText_BranchMode(t *testing.T) {
	files := covdata.FileMap{}
	record(files, "a.c", func(l *covdata.Lines) {
		l.Covered[10] = 5
		l.Branches[10] = map[int]int{0: 2, 1: 0}
		l.Branches[12] = map[int]int{0: 1}
	})

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, files, Options{BranchMode: true}))
	output := buf.String()

	assert.Contains(t, output, "Branches")
	assert.Contains(t, output, "Taken")
	// Only line 10 has an untaken branch; 2 of 3 branches taken.
	assert.Contains(t, output, fmt.Sprintf("%-40s%8d%8d%6s%%   %s", "a.c", 3, 2, "66", "10"))
	assert.Contains(t, output, fmt.Sprintf("%-40s%8d%8d%6s%%", "TOTAL", 3, 2, "66"))
}

func TestWriteText_LongNameGetsOwnLine(t *testing.T) {
	long := "/very/deeply/nested/project/tree/with/a/quite/long/source/path/name.c"
	require.Greater(t, len(long), 40)

	files := covdata.FileMap{}
	record(files, long, func(l *covdata.Lines) { l.Covered[1] = 1 })

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, files, Options{}))

	lines := strings.Split(buf.String(), "\n")
	idx := -1
	for i, line := range lines {
		if line == long {
			idx = i
			break
		}
	}
	require.GreaterOrEqual(t, idx, 0, "long name must occupy its own line")
	assert.True(t, strings.HasPrefix(lines[idx+1], strings.Repeat(" ", 40)),
		"numeric columns must stay aligned on the continuation line")
}

func TestWriteText_Sorting(t *testing.T) {
	files := covdata.FileMap{}
	// Name order is the reverse of coverage order on purpose.
	record(files, "a.c", func(l *covdata.Lines) {
		l.Uncovered[1] = true
		l.Uncovered[2] = true
	})
	record(files, "m.c", func(l *covdata.Lines) {
		l.Covered[1] = 1
		l.Uncovered[2] = true
	})
	record(files, "z.c", func(l *covdata.Lines) {
		l.Covered[1] = 1
		l.Covered[2] = 1
		l.Covered[3] = 1
	})

	t.Run("default is by name", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteText(&buf, files, Options{}))
		assert.Equal(t, []string{"a.c", "m.c", "z.c"}, rowNames(buf.String()))
	})

	t.Run("by number of uncovered lines", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteText(&buf, files, Options{SortUncovered: true}))
		assert.Equal(t, []string{"z.c", "m.c", "a.c"}, rowNames(buf.String()))
	})

	t.Run("by uncovered percentage", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteText(&buf, files, Options{SortPercent: true}))
		// Fully covered first, entirely uncovered last.
		assert.Equal(t, []string{"z.c", "m.c", "a.c"}, rowNames(buf.String()))
	})
}

func TestWriteText_EmptyMap(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, covdata.FileMap{}, Options{}))

	assert.Contains(t, buf.String(), fmt.Sprintf("%-40s%8d%8d%6s%%", "TOTAL", 0, 0, "--"))
}
