package diff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// SourceDelta is a line-level comparison of two candidate transforms.
type SourceDelta struct {
	Added   int
	Removed int
	// Text holds only the changed lines, prefixed "+ " or "- ".
	Text string
}

// Empty reports whether the two sources had identical lines.
func (s SourceDelta) Empty() bool {
	return s.Added == 0 && s.Removed == 0
}

var dmp = func() *diffmatchpatch.DiffMatchPatch {
	d := diffmatchpatch.New()
	d.DiffTimeout = 0
	return d
}()

// CompareSource diffs prev against next line by line.
func CompareSource(prev, next string) SourceDelta {
	// Line-level reduction avoids newline boundary artifacts.
	a, b, lineArray := dmp.DiffLinesToChars(prev, next)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var delta SourceDelta
	var sb strings.Builder
	for _, d := range diffs {
		if d.Type == diffmatchpatch.DiffEqual {
			continue
		}
		prefix := "+ "
		if d.Type == diffmatchpatch.DiffDelete {
			prefix = "- "
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			if d.Type == diffmatchpatch.DiffDelete {
				delta.Removed++
			} else {
				delta.Added++
			}
			sb.WriteString(prefix)
			sb.WriteString(strings.TrimSuffix(line, "\n"))
			sb.WriteByte('\n')
		}
	}
	delta.Text = sb.String()
	return delta
}
