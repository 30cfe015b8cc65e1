// Package reverse owns the line transform applied by the line reversal
// service. It is pure: no I/O, no failure modes.
package reverse

// Line reverses the content of one newline-terminated line, keeping the
// trailing newline in place. Input without a trailing newline is reversed
// whole.
func Line(line []byte) []byte {
	n := len(line)
	hasNL := n > 0 && line[n-1] == '\n'
	if hasNL {
		n--
	}
	out := make([]byte, 0, len(line))
	for i := n - 1; i >= 0; i-- {
		out = append(out, line[i])
	}
	if hasNL {
		out = append(out, '\n')
	}
	return out
}
