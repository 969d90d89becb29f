package gcov

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// candidateDirs builds the ordered list of working directories to try when
// invoking gcov on the given artifact. gcov must run from the directory the
// compiler was invoked in, which the artifact does not record, so it has to
// be inferred:
//
//   - With an object-directory hint that is an absolute or plain relative
//     path, the hint is joined with the artifact's directory and the current
//     directory, keeping the candidates that exist.
//   - With a hint that climbs through ".." segments (the object directory was
//     a sibling of the compiler's working directory), a breadth-first
//     expansion enumerates every directory reachable by re-descending one
//     level per ".." from the artifact's trimmed path.
//   - Without a usable hint, every ancestor of the artifact's directory is
//     tried, closest first.
//
// The returned diagnostics describe hint lookups that produced no usable
// directory; they are reported only if no candidate ultimately works.
func candidateDirs(absFilename, objdir, cwd string) (candidates []string, diagnostics []string) {
	sep := string(os.PathSeparator)

	if objdir != "" {
		srcComponents := strings.Split(absFilename, sep)
		components := strings.Split(filepath.Clean(objdir), sep)

		// Walk the trailing components of the hint against the trailing
		// components of the artifact path until they stop agreeing.
		idx := 1
		for idx <= len(components) {
			if idx > len(srcComponents) {
				break
			}
			if components[len(components)-idx] != srcComponents[len(srcComponents)-idx] {
				break
			}
			idx++
		}

		switch {
		case idx > len(components):
			// The hint is a suffix of the artifact path, i.e. a parent
			// directory; the ancestor walk below will find it.

		case components[len(components)-idx] == "..":
			// Sibling-directory hint: trim the matched tail, then fan out one
			// directory level per remaining ".." segment.
			dirs := []string{joinComponents(srcComponents[:len(srcComponents)-idx], sep)}
			for idx <= len(components) && components[len(components)-idx] == ".." {
				var next []string
				for _, d := range dirs {
					entries, err := os.ReadDir(d)
					if err != nil {
						continue
					}
					for _, entry := range entries {
						if entry.IsDir() {
							next = append(next, filepath.Join(d, entry.Name()))
						}
					}
				}
				dirs = next
				idx++
			}
			candidates = dirs

		default:
			var probes []string
			if filepath.IsAbs(objdir) {
				probes = []string{objdir}
			} else {
				probes = []string{
					filepath.Join(filepath.Dir(absFilename), objdir),
					filepath.Join(cwd, objdir),
				}
			}
			for _, d := range probes {
				if info, err := os.Stat(d); err == nil && info.IsDir() {
					candidates = append(candidates, d)
				}
			}
			if len(candidates) == 0 {
				diagnostics = append(diagnostics, fmt.Sprintf(
					"cannot identify the location where the compiler was run using --object-directory=%s", objdir))
			}
		}
	}

	// No hint, or the hint produced nothing: walk up from the artifact's own
	// directory to the filesystem root.
	if len(candidates) == 0 {
		wd := filepath.Dir(absFilename)
		for {
			candidates = append(candidates, wd)
			parent := filepath.Dir(wd)
			if parent == wd {
				break
			}
			wd = parent
		}
	}

	return candidates, diagnostics
}

func joinComponents(components []string, sep string) string {
	joined := strings.Join(components, sep)
	if joined == "" {
		return sep
	}
	return joined
}
