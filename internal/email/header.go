package email

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"

	"github.com/shineum/mailkit/internal/charset"
)

// headerLineLength is the longest physical header line written, excluding CRLF.
const headerLineLength = 76

// foldLength is where long plain header values are folded.
const foldLength = LineLengthShould

// Header is a single header field.
type Header struct {
	Name  string
	Value string
}

// EncodeHeader encodes value for a header written in the given charset.
// ASCII values pass through unchanged; anything else becomes one or more
// RFC 2047 "B" encoded words joined by CRLF and a space. offset is the
// number of octets already used on the first line (for "Subject: ").
func EncodeHeader(value, cs string, offset int) (string, error) {
	if isASCII(value) {
		return value, nil
	}

	prefix := "=?" + charset.WordLabel(cs) + "?B?"
	const suffix = "?="
	overhead := len(prefix) + len(suffix)

	var (
		words []string
		chunk strings.Builder
	)
	avail := headerLineLength - offset - overhead
	for _, r := range value {
		next := chunk.String() + string(r)
		encoded, err := charset.Encode(next, cs)
		if err != nil {
			return "", err
		}
		if base64.StdEncoding.EncodedLen(len(encoded)) > avail && chunk.Len() > 0 {
			word, err := encodeWord(chunk.String(), cs, prefix, suffix)
			if err != nil {
				return "", err
			}
			words = append(words, word)
			chunk.Reset()
			// continuation lines start with a single space
			avail = headerLineLength - 1 - overhead
		}
		chunk.WriteRune(r)
	}
	if chunk.Len() > 0 {
		word, err := encodeWord(chunk.String(), cs, prefix, suffix)
		if err != nil {
			return "", err
		}
		words = append(words, word)
	}
	return strings.Join(words, "\r\n "), nil
}

func encodeWord(s, cs, prefix, suffix string) (string, error) {
	encoded, err := charset.Encode(s, cs)
	if err != nil {
		return "", err
	}
	return prefix + base64.StdEncoding.EncodeToString([]byte(encoded)) + suffix, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// validHeaderName reports whether name is a legal RFC 5322 field name.
func validHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c <= ' ' || c > '~' || c == ':' {
			return false
		}
	}
	return true
}

func validHeaderValue(value string) bool {
	return !strings.ContainsAny(value, "\r\n")
}

// fold breaks a plain header value at spaces so that no line of
// "Name: value" is longer than foldLength. Values that already contain
// line breaks (encoded words) are returned as is.
func fold(name, value string) string {
	if strings.Contains(value, "\r\n") || len(name)+2+len(value) <= foldLength {
		return value
	}

	var (
		b    strings.Builder
		line = len(name) + 2
	)
	for i, word := range strings.Split(value, " ") {
		if i > 0 {
			if line+1+len(word) > foldLength && line > 1 {
				b.WriteString("\r\n ")
				line = 1
			} else {
				b.WriteByte(' ')
				line++
			}
		}
		b.WriteString(word)
		line += len(word)
	}
	return b.String()
}

// joinAddresses formats list for the named header and joins the
// addresses with ", ". Each address is formatted at the column it starts
// on, and a new folded line is started whenever the next address would
// overflow.
func joinAddresses(name string, list []Address, cs string) (string, error) {
	var (
		b    strings.Builder
		line = len(name) + 2
	)
	for i, a := range list {
		col := line
		if i > 0 {
			col += 2
		}
		addr, err := formatAddress(a, cs, col)
		if err != nil {
			return "", err
		}
		if i > 0 {
			limit := foldLength
			if strings.HasPrefix(addr, "=?") {
				limit = headerLineLength
			}
			// leave room for the comma when the next address moves down
			if col+len(firstLine(addr)) >= limit {
				b.WriteString(",\r\n ")
				line = 1
				if addr, err = formatAddress(a, cs, line); err != nil {
					return "", err
				}
			} else {
				b.WriteString(", ")
				line += 2
			}
		}
		b.WriteString(addr)
		if j := strings.LastIndex(addr, "\r\n"); j >= 0 {
			line = len(addr) - j - 2
		} else {
			line += len(addr)
		}
	}
	return b.String(), nil
}

func firstLine(s string) string {
	if i := strings.Index(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// HeaderString renders headers as "Name: value" lines joined by CRLF.
// Headers with empty values are skipped.
func HeaderString(headers []Header) string {
	lines := make([]string, 0, len(headers))
	for _, h := range headers {
		if h.Value == "" {
			continue
		}
		lines = append(lines, h.Name+": "+h.Value)
	}
	return strings.Join(lines, "\r\n")
}
