package email

import (
	"github.com/shineum/mailkit/internal/charset"
)

// Boundary prefixes for the nested containers. The mixed container uses
// the bare token.
const (
	alternativePrefix = "alt-"
	relatedPrefix     = "rel-"
)

func (m *Message) hasAttachments() bool { return len(m.attachments) > 0 }

func (m *Message) hasInlineAttachments() bool {
	for _, a := range m.attachments {
		if a.Inline() {
			return true
		}
	}
	return false
}

// multipart reports whether the body needs any container at all.
func (m *Message) multipart() bool {
	return m.hasAttachments() || m.format == FormatBoth
}

// Boundary returns the boundary token, generating it on first use. The
// token is kept for every later composition until the message is reset.
func (m *Message) Boundary() string {
	if m.boundary == "" {
		m.boundary = m.NewID()
	}
	return m.boundary
}

// contentType returns the top-level Content-Type header value.
func (m *Message) contentType() string {
	cs := charset.ContentTypeLabel(m.charset)
	switch {
	case m.hasAttachments():
		return `multipart/mixed; boundary="` + m.Boundary() + `"`
	case m.format == FormatBoth:
		return `multipart/alternative; boundary="` + alternativePrefix + m.Boundary() + `"`
	case m.format == FormatHTML:
		return "text/html; charset=" + cs
	default:
		return "text/plain; charset=" + cs
	}
}

// bodyLines assembles the message body. Containers nest as
// mixed > related > alternative, each opened only when needed and closed
// after its children.
func (m *Message) bodyLines() ([]string, error) {
	var (
		msg         []string
		hasAttach   = m.hasAttachments()
		hasInline   = m.hasInlineAttachments()
		multiTypes  = m.format == FormatBoth
		multiPart   = hasAttach || multiTypes
		token       string
		relBoundary string
		txtBoundary string
	)
	if multiPart {
		token = m.Boundary()
		relBoundary, txtBoundary = token, token
	}

	if hasInline {
		msg = append(msg,
			"--"+token,
			`Content-Type: multipart/related; boundary="`+relatedPrefix+token+`"`,
			"",
		)
		relBoundary, txtBoundary = relatedPrefix+token, relatedPrefix+token
	}
	if multiTypes {
		if hasAttach {
			msg = append(msg,
				"--"+relBoundary,
				`Content-Type: multipart/alternative; boundary="`+alternativePrefix+token+`"`,
				"",
			)
		}
		txtBoundary = alternativePrefix + token
	}

	cs := charset.ContentTypeLabel(m.charset)
	writePart := func(mediaType string, lines []string) {
		if multiPart {
			msg = append(msg,
				"--"+txtBoundary,
				"Content-Type: "+mediaType+"; charset="+cs,
				"Content-Transfer-Encoding: "+m.TransferEncoding(),
				"",
			)
		}
		if lines == nil {
			lines = []string{""}
		}
		msg = append(msg, lines...)
		msg = append(msg, "")
	}
	if m.format.hasText() {
		writePart("text/plain", m.textLines)
	}
	if m.format.hasHTML() {
		writePart("text/html", m.htmlLines)
	}

	if multiTypes {
		msg = append(msg, "--"+txtBoundary+"--", "")
	}

	if hasInline {
		for _, a := range m.attachments {
			if !a.Inline() {
				continue
			}
			part, err := a.part(relBoundary)
			if err != nil {
				return nil, err
			}
			msg = append(msg, part...)
		}
		msg = append(msg, "--"+relBoundary+"--", "")
	}

	if hasAttach {
		for _, a := range m.attachments {
			if a.Inline() {
				continue
			}
			part, err := a.part(token)
			if err != nil {
				return nil, err
			}
			msg = append(msg, part...)
		}
		msg = append(msg, "--"+token+"--", "")
	}

	return msg, nil
}
