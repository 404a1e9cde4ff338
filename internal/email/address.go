package email

import (
	"regexp"
	"strings"

	"github.com/emersion/go-message/mail"
)

// DefaultEmailPattern accepts a Unicode local part and domain.
const DefaultEmailPattern = `(?i)^((?:[\p{L}0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+)*@[\p{L}0-9-.]+)$`

var (
	defaultEmailPattern = regexp.MustCompile(DefaultEmailPattern)

	// needsQuoting matches display names that must be sent as quoted strings.
	needsQuoting = regexp.MustCompile(`[^a-zA-Z0-9 ]`)
)

// Address is a mailbox with an optional display name.
type Address struct {
	Email string
	Name  string
}

// String returns the address formatted for a UTF-8 header.
func (a Address) String() string {
	s, err := formatAddress(a, "utf-8", 0)
	if err != nil {
		return a.Email
	}
	return s
}

// validate checks addr against pattern. A nil pattern falls back to a
// generic RFC 5322 syntax check.
func validate(pattern *regexp.Regexp, addr string) error {
	if pattern == nil {
		parsed, err := mail.ParseAddress(addr)
		if err != nil || parsed.Address != addr {
			return errorf("invalid email: %q", addr)
		}
		return nil
	}
	if !pattern.MatchString(addr) {
		return errorf("invalid email: %q", addr)
	}
	return nil
}

// FormatAddresses renders each address as a header fragment. Display names
// with non-ASCII characters become encoded words in headerCharset; ASCII
// names with anything beyond letters, digits and spaces are quoted.
func FormatAddresses(list []Address, headerCharset string) ([]string, error) {
	out := make([]string, 0, len(list))
	for _, a := range list {
		s, err := formatAddress(a, headerCharset, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// formatAddress renders a as if it starts at column col of a header line.
// An encoded display name is folded to fit headerLineLength and the
// mailbox moves to a continuation line when it would not fit after it.
func formatAddress(a Address, headerCharset string, col int) (string, error) {
	if a.Name == "" || a.Name == a.Email {
		return a.Email, nil
	}

	encoded, err := EncodeHeader(a.Name, headerCharset, col)
	if err != nil {
		return "", err
	}
	mailbox := "<" + a.Email + ">"
	if encoded == a.Name {
		if needsQuoting.MatchString(encoded) {
			encoded = quote(encoded)
		}
		return encoded + " " + mailbox, nil
	}

	last := col + len(encoded)
	if i := strings.LastIndex(encoded, "\r\n"); i >= 0 {
		last = len(encoded) - i - 2
	}
	// one octet stays free for a separating comma
	if last+1+len(mailbox) >= headerLineLength {
		return encoded + "\r\n " + mailbox, nil
	}
	return encoded + " " + mailbox, nil
}

// quote wraps s in double quotes, escaping backslashes and quotes.
func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
	return b.String()
}

func addresses(list []Address) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Email)
	}
	return out
}
