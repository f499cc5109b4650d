package grouper

import "strings"

// maxDiffLines caps the inputs the line-matching pass will handle; the
// table it builds is quadratic in the line counts, and past this size
// the diff degrades to a wholesale remove-then-add.
const maxDiffLines = 500

// diffAgainst renders a unified-style diff of an outlier's stdout
// against the majority's.
func diffAgainst(majority, outlier string) string {
	a := lines(majority)
	b := lines(outlier)

	var sb strings.Builder
	sb.WriteString("--- majority\n")
	sb.WriteString("+++ outlier\n")

	if len(a) > maxDiffLines || len(b) > maxDiffLines {
		writeMarked(&sb, '-', a)
		writeMarked(&sb, '+', b)
		return sb.String()
	}
	for _, ln := range editScript(a, b) {
		sb.WriteString(ln)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func writeMarked(sb *strings.Builder, mark byte, ls []string) {
	for _, l := range ls {
		sb.WriteByte(mark)
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
}

// editScript produces prefixed diff lines by walking a
// longest-common-subsequence table back from its far corner, then
// reversing into reading order. Within a changed run the removals come
// out ahead of the additions.
func editScript(a, b []string) []string {
	m, n := len(a), len(b)
	match := make([][]int, m+1)
	for i := range match {
		match[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			switch {
			case a[i-1] == b[j-1]:
				match[i][j] = match[i-1][j-1] + 1
			case match[i-1][j] >= match[i][j-1]:
				match[i][j] = match[i-1][j]
			default:
				match[i][j] = match[i][j-1]
			}
		}
	}

	var script []string
	i, j := m, n
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && a[i-1] == b[j-1]:
			script = append(script, " "+a[i-1])
			i--
			j--
		case j > 0 && (i == 0 || match[i][j-1] >= match[i-1][j]):
			script = append(script, "+"+b[j-1])
			j--
		default:
			script = append(script, "-"+a[i-1])
			i--
		}
	}
	for l, r := 0, len(script)-1; l < r; l, r = l+1, r-1 {
		script[l], script[r] = script[r], script[l]
	}
	return script
}

// lines splits on newlines without manufacturing a trailing empty
// line from a final "\n".
func lines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
