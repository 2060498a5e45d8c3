package parser

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// separatorFamilies is the split cascade, coarsest first. The empty family means
// splitting on rune boundaries.
var separatorFamilies = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? "},
	{" "},
	nil,
}

// textSplitter cuts text into pieces of at most chunkSize runes, each piece after the
// first starting with up to overlap runes carried over from the end of the previous one.
type textSplitter struct {
	chunkSize int
	overlap   int
}

func newTextSplitter(chunkSize, overlap int) *textSplitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}
	return &textSplitter{chunkSize: chunkSize, overlap: overlap}
}

func (s *textSplitter) Split(text string) []string {
	// room for the carried-over tail plus the joining space
	budget := s.chunkSize - s.overlap
	return s.addOverlap(s.splitRecursive(text, 0, budget))
}

func (s *textSplitter) splitRecursive(text string, level, budget int) []string {
	if utf8.RuneCountInString(text) <= budget {
		if t := strings.TrimSpace(text); t != "" {
			return []string{t}
		}
		return nil
	}

	seps := separatorFamilies[level]
	if seps == nil {
		return splitRunes(text, budget)
	}
	parts := splitKeepSeparator(text, seps)
	if len(parts) <= 1 {
		return s.splitRecursive(text, level+1, budget)
	}

	var (
		out    []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if t := strings.TrimSpace(cur.String()); t != "" {
			out = append(out, t)
		}
		cur.Reset()
		curLen = 0
	}

	for _, part := range parts {
		n := utf8.RuneCountInString(part)
		if n > budget {
			flush()
			out = append(out, s.splitRecursive(part, level+1, budget)...)
			continue
		}
		if curLen+n > budget {
			flush()
		}
		cur.WriteString(part)
		curLen += n
	}
	flush()
	return out
}

func (s *textSplitter) addOverlap(pieces []string) []string {
	if s.overlap == 0 || len(pieces) < 2 {
		return pieces
	}
	out := make([]string, len(pieces))
	out[0] = pieces[0]
	for i := 1; i < len(pieces); i++ {
		tail := overlapTail(out[i-1], s.overlap-1)
		if tail == "" {
			out[i] = pieces[i]
			continue
		}
		out[i] = tail + " " + pieces[i]
	}
	return out
}

// overlapTail returns at most n runes from the end of text, starting on a word boundary
// when one is available.
func overlapTail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= n {
		return strings.TrimSpace(text)
	}
	tail := runes[len(runes)-n:]
	if !unicode.IsSpace(runes[len(runes)-n-1]) {
		for i, r := range tail {
			if unicode.IsSpace(r) {
				tail = tail[i+1:]
				break
			}
		}
	}
	return strings.TrimSpace(string(tail))
}

// splitKeepSeparator splits text after every occurrence of any separator, leaving the
// separator on the left-hand piece.
func splitKeepSeparator(text string, seps []string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(text); {
		matched := 0
		for _, sep := range seps {
			if strings.HasPrefix(text[i:], sep) {
				matched = len(sep)
				break
			}
		}
		if matched == 0 {
			i++
			continue
		}
		i += matched
		parts = append(parts, text[start:i])
		start = i
	}
	if start < len(text) {
		parts = append(parts, text[start:])
	}
	return parts
}

func splitRunes(text string, size int) []string {
	var out []string
	runes := []rune(text)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		if t := strings.TrimSpace(string(runes[start:end])); t != "" {
			out = append(out, t)
		}
	}
	return out
}
