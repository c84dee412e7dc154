package jigscript

import "strings"

// MaxLineLength bounds the partial line kept between chunks. Longer runs of
// text without a newline are cut into lines of this size.
const MaxLineLength = 64 * 1024

// LineBuffer reassembles lines from chunks that are not line-aligned.
type LineBuffer struct {
	partial strings.Builder
}

// Feed appends chunk and returns the lines it completes, without their
// trailing newline.
func (b *LineBuffer) Feed(chunk string) []string {
	var lines []string
	for len(chunk) > 0 {
		i := strings.IndexByte(chunk, '\n')
		if i < 0 {
			b.partial.WriteString(chunk)
			break
		}
		b.partial.WriteString(chunk[:i])
		lines = append(lines, b.take())
		chunk = chunk[i+1:]
	}
	for b.partial.Len() > MaxLineLength {
		s := b.take()
		lines = append(lines, s[:MaxLineLength])
		b.partial.WriteString(s[MaxLineLength:])
	}
	return lines
}

// Flush returns and clears the buffered partial line.
func (b *LineBuffer) Flush() string {
	return b.take()
}

func (b *LineBuffer) take() string {
	s := b.partial.String()
	b.partial.Reset()
	return s
}
