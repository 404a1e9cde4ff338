package email

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// LineLengthShould is the RFC 5322 recommended line length.
	LineLengthShould = 78

	// LineLengthMust is the RFC 5322 hard line length limit.
	LineLengthMust = 998
)

var tagPattern = regexp.MustCompile(`(?i)<[a-z]+.*>`)

// Wrap splits text into lines of at most limit octets, breaking at spaces.
// Each break consumes one space and other spacing is kept. Markup tags are
// never split and a tag longer than limit gets a line of its own; words
// longer than limit are kept whole unless they exceed LineLengthMust. An
// empty line is appended for the final terminator.
func Wrap(text string, limit int) []string {
	if limit <= 0 || limit > LineLengthMust {
		limit = LineLengthMust
	}
	if text == "" {
		return []string{""}
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var out []string
	for _, line := range strings.Split(text, "\n") {
		switch {
		case len(line) < limit:
			out = append(out, line)
		case !tagPattern.MatchString(line):
			out = append(out, wordWrap(line, limit)...)
		default:
			out = append(out, hardCut(wrapTagged(line, limit))...)
		}
	}
	return append(out, "")
}

// wordWrap breaks s at the last space that keeps a line within width.
func wordWrap(s string, width int) []string {
	var lines []string
	for len(s) > width {
		if i := strings.LastIndexByte(s[:width+1], ' '); i > 0 {
			lines = append(lines, s[:i])
			s = s[i+1:]
			continue
		}

		// the leading word does not fit: keep it whole up to the hard limit
		end, skip := len(s), 0
		if j := strings.IndexByte(s[1:], ' '); j >= 0 {
			end, skip = j+1, 1
		}
		if end > LineLengthMust {
			end, skip = cutPoint(s, LineLengthMust), 0
		}
		lines = append(lines, s[:end])
		s = s[end+skip:]
		if s == "" {
			return lines
		}
	}
	return append(lines, s)
}

// wrapTagged wraps a line containing markup. Tags and runs of other text
// are atoms that are never split, and the spaces between them are kept
// as written. A line breaks inside a space run, consuming one space, or
// directly before or after a tag that is longer than limit.
func wrapTagged(line string, limit int) []string {
	var (
		out  []string
		cur  strings.Builder
		prev atom
	)
	for _, a := range atomize(line) {
		if cur.Len() > 0 && cur.Len()+len(a.space)+len(a.text) > limit {
			switch {
			case a.space != "":
				keep := min(len(a.space)-1, max(limit-cur.Len(), 0))
				cur.WriteString(a.space[:keep])
				out = append(out, cur.String())
				cur.Reset()
				a.space = a.space[keep+1:]
			case prev.oversized(limit) || a.oversized(limit):
				out = append(out, cur.String())
				cur.Reset()
			}
		}
		cur.WriteString(a.space)
		cur.WriteString(a.text)
		prev = a
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

type atom struct {
	space string // spaces written before text
	text  string
	tag   bool
}

func (a atom) oversized(limit int) bool {
	return a.tag && len(a.text) > limit
}

// atomize splits line into tags and runs of non-space text, each carrying
// the spaces in front of it. An unterminated tag is plain text.
func atomize(line string) []atom {
	var atoms []atom
	for i := 0; i < len(line); {
		j := i
		for j < len(line) && line[j] == ' ' {
			j++
		}
		a := atom{space: line[i:j]}
		i = j
		if i == len(line) {
			// trailing spaces
			atoms = append(atoms, a)
			break
		}
		if line[i] == '<' {
			if k := strings.IndexByte(line[i:], '>'); k > 0 {
				a.text, a.tag = line[i:i+k+1], true
				atoms = append(atoms, a)
				i += k + 1
				continue
			}
		}
		j = i + 1
		for j < len(line) && line[j] != ' ' && line[j] != '<' {
			j++
		}
		a.text = line[i:j]
		atoms = append(atoms, a)
		i = j
	}
	return atoms
}

// hardCut splits any line longer than LineLengthMust.
func hardCut(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		for len(l) > LineLengthMust {
			n := cutPoint(l, LineLengthMust)
			out = append(out, l[:n])
			l = l[n:]
		}
		out = append(out, l)
	}
	return out
}

// cutPoint returns the largest index <= n that starts a rune in s.
func cutPoint(s string, n int) int {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	if n == 0 {
		return LineLengthMust
	}
	return n
}
