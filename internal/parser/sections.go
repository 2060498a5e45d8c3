package parser

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"paper-rag/internal/models"

	"github.com/dlclark/regexp2"
)

var (
	topLevelHeadingRe = regexp2.MustCompile(models.TopLevelHeadingRegex, regexp2.None)
	subHeadingRe      = regexp2.MustCompile(models.SubHeadingRegex, regexp2.None)
)

// DetectSections returns the section titles found in a document's full text.
// Numbered headings ("3 Model Architecture", "3.2 Attention") win and come back sorted;
// when there are none, the first short line mentioning each keyword is used instead,
// in keyword order.
func DetectSections(fullText string) []string {
	seen := make(map[string]struct{})
	var sections []string

	for _, re := range []*regexp2.Regexp{topLevelHeadingRe, subHeadingRe} {
		for _, m := range findAllStrings(re, fullText) {
			title := strings.TrimSpace(m)
			if !isHeadingLength(title) {
				continue
			}
			if _, ok := seen[title]; ok {
				continue
			}
			seen[title] = struct{}{}
			sections = append(sections, title)
		}
	}

	if len(sections) > 0 {
		sort.Strings(sections)
		return sections
	}
	return keywordSections(fullText)
}

func keywordSections(fullText string) []string {
	lines := strings.Split(fullText, "\n")
	seen := make(map[string]struct{})
	var sections []string

	for _, keyword := range models.SectionKeywords {
		for _, line := range lines {
			line = strings.TrimSpace(line)
			if !isHeadingLength(line) || !strings.Contains(strings.ToLower(line), keyword) {
				continue
			}
			if _, ok := seen[line]; !ok {
				seen[line] = struct{}{}
				sections = append(sections, line)
			}
			break
		}
	}
	return sections
}

// AssignSection picks the section a page belongs to: a line equal to a known section,
// else the known section appearing earliest in the text, else currentSection.
func AssignSection(pageText string, knownSections []string, currentSection string) string {
	return assignSection(pageText, knownSections, toSet(knownSections), currentSection)
}

func assignSection(pageText string, known []string, knownSet map[string]struct{}, current string) string {
	for _, line := range strings.Split(pageText, "\n") {
		if _, ok := knownSet[strings.TrimSpace(line)]; ok {
			return strings.TrimSpace(line)
		}
	}

	lower := strings.ToLower(pageText)
	best, bestPos := "", -1
	for _, section := range known {
		pos := strings.Index(lower, strings.ToLower(section))
		if pos < 0 {
			continue
		}
		if bestPos < 0 || pos < bestPos || (pos == bestPos && len(section) > len(best)) {
			best, bestPos = section, pos
		}
	}
	if bestPos >= 0 {
		return best
	}
	return current
}

// PageTitle labels a page by the first of its opening three lines that mentions a
// section keyword, or "Content" when none does.
func PageTitle(pageText string) string {
	checked := 0
	for _, line := range strings.Split(pageText, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if checked++; checked > 3 {
			break
		}
		if !isHeadingLength(line) {
			continue
		}
		lower := strings.ToLower(line)
		for _, keyword := range models.SectionKeywords {
			if strings.Contains(lower, keyword) {
				return line
			}
		}
	}
	return models.ContentLabel
}

// pageBody drops a leading heading line. Detected titles can stop short of the full
// heading ("2 Related" for "2 Related Work"), so a line that starts with a known title and
// continues with words only counts as well.
func pageBody(pageText string, known []string) string {
	trimmed := strings.TrimSpace(pageText)
	first, rest, _ := strings.Cut(trimmed, "\n")
	if isHeadingLine(strings.TrimSpace(first), known) {
		return strings.TrimSpace(rest)
	}
	return trimmed
}

func isHeadingLine(line string, known []string) bool {
	for _, title := range known {
		tail, ok := strings.CutPrefix(line, title)
		if !ok {
			continue
		}
		if tail == "" {
			return true
		}
		if unicode.IsSpace(rune(tail[0])) && onlyLettersAndSpace(tail) {
			return true
		}
	}
	return false
}

func onlyLettersAndSpace(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) && !('a' <= r && r <= 'z') && !('A' <= r && r <= 'Z') {
			return false
		}
	}
	return true
}

func isHeadingLength(s string) bool {
	n := utf8.RuneCountInString(s)
	return n > models.MinHeadingLen && n < models.MaxHeadingLen
}

func findAllStrings(re *regexp2.Regexp, s string) []string {
	var out []string
	m, err := re.FindStringMatch(s)
	for err == nil && m != nil {
		out = append(out, m.String())
		m, err = re.FindNextMatch(m)
	}
	return out
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
