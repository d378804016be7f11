package procrun

import "strings"

// LineBuffer reassembles lines from arbitrarily sized chunks. Both '\n' and
// '\r' terminate a line because the media tools redraw progress with bare
// carriage returns.
type LineBuffer struct {
	partial strings.Builder
}

// Feed appends chunk and returns every line it completes, without terminators.
// A trailing fragment is carried into the next call.
func (b *LineBuffer) Feed(chunk []byte) []string {
	var lines []string
	start := 0
	for i, c := range chunk {
		if c != '\n' && c != '\r' {
			continue
		}
		b.partial.Write(chunk[start:i])
		lines = append(lines, b.partial.String())
		b.partial.Reset()
		start = i + 1
	}
	b.partial.Write(chunk[start:])
	return lines
}

// Flush returns the carried fragment, if any, and clears it.
func (b *LineBuffer) Flush() (string, bool) {
	if b.partial.Len() == 0 {
		return "", false
	}
	line := b.partial.String()
	b.partial.Reset()
	return line, true
}

// Pending reports the carried fragment without consuming it.
func (b *LineBuffer) Pending() string {
	return b.partial.String()
}
