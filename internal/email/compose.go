package email

import (
	"strings"
	"time"

	"github.com/shineum/mailkit/internal/charset"
)

// Fields selects the address and subject headers a composition includes.
type Fields uint16

const (
	FieldFrom Fields = 1 << iota
	FieldSender
	FieldReplyTo
	FieldReadReceipt
	FieldReturnPath
	FieldTo
	FieldCc
	FieldBcc
	FieldSubject
)

const (
	// AllFields includes every address header and the subject.
	AllFields = FieldFrom | FieldSender | FieldReplyTo | FieldReadReceipt |
		FieldReturnPath | FieldTo | FieldCc | FieldBcc | FieldSubject

	// WireFields is AllFields without Bcc, for messages handed to a relay.
	WireFields = AllFields &^ FieldBcc
)

// managedHeaders are written by the composer and cannot be set as custom
// headers.
var managedHeaders = map[string]bool{
	"From":                        true,
	"Sender":                      true,
	"Reply-To":                    true,
	"Disposition-Notification-To": true,
	"Return-Path":                 true,
	"To":                          true,
	"Cc":                          true,
	"Bcc":                         true,
	"Subject":                     true,
	"Message-Id":                  true,
	"Mime-Version":                true,
	"Content-Type":                true,
	"Content-Transfer-Encoding":   true,
}

// Composed is a rendered message ready for a transport.
type Composed struct {
	Headers []Header
	Body    []string
}

// HeaderString returns the header block without the blank separator line.
func (c *Composed) HeaderString() string {
	return HeaderString(c.Headers)
}

// BodyString returns the body lines joined by CRLF.
func (c *Composed) BodyString() string {
	return strings.Join(c.Body, "\r\n")
}

// Bytes returns the full RFC 5322 message.
func (c *Composed) Bytes() []byte {
	return []byte(c.HeaderString() + "\r\n\r\n" + c.BodyString())
}

// Header returns the value of the named header, or "".
func (c *Composed) Header(name string) string {
	for _, h := range c.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// SetContent converts the rendered bodies to the body charset and wraps
// them. Only the parts the message format needs are kept.
func (m *Message) SetContent(c Content) error {
	m.textLines, m.htmlLines = nil, nil
	if m.format.hasText() {
		lines, err := m.bodyText(c.Text)
		if err != nil {
			return err
		}
		m.textLines = lines
	}
	if m.format.hasHTML() {
		lines, err := m.bodyText(c.HTML)
		if err != nil {
			return err
		}
		m.htmlLines = lines
	}
	return nil
}

// bodyText wraps s on UTF-8 text first so every line converts to the
// target charset on its own.
func (m *Message) bodyText(s string) ([]string, error) {
	lines := Wrap(s, m.lineLength)
	for i, l := range lines {
		encoded, err := charset.Encode(l, m.charset)
		if err != nil {
			return nil, errorf("failed to encode body: %v", err)
		}
		lines[i] = encoded
	}
	return lines, nil
}

// TextBody returns the wrapped text part.
func (m *Message) TextBody() string { return strings.Join(m.textLines, "\r\n") }

// HTMLBody returns the wrapped html part.
func (m *Message) HTMLBody() string { return strings.Join(m.htmlLines, "\r\n") }

// BuildHeaders builds the header block in its fixed order: address
// headers, custom headers, X-Mailer, Date, Message-ID, Subject,
// MIME-Version, Content-Type and Content-Transfer-Encoding.
func (m *Message) BuildHeaders(fields Fields) ([]Header, error) {
	var (
		hs  []Header
		hcs = m.HeaderCharset()
	)

	addList := func(name string, list []Address) error {
		if len(list) == 0 {
			return nil
		}
		value, err := joinAddresses(name, list, hcs)
		if err != nil {
			return err
		}
		hs = append(hs, Header{Name: name, Value: value})
		return nil
	}

	steps := []struct {
		field Fields
		name  string
		list  []Address
	}{
		{FieldFrom, "From", single(m.from)},
		{FieldReplyTo, "Reply-To", m.replyTo},
		{FieldReadReceipt, "Disposition-Notification-To", single(m.readReceipt)},
		{FieldReturnPath, "Return-Path", single(m.returnPath)},
		{FieldSender, "Sender", m.distinctSender()},
		{FieldTo, "To", m.to},
		{FieldCc, "Cc", m.cc},
		{FieldBcc, "Bcc", m.bcc},
	}
	for _, s := range steps {
		if fields&s.field == 0 {
			continue
		}
		if err := addList(s.name, s.list); err != nil {
			return nil, err
		}
	}

	var hasMailer, hasDate bool
	for _, h := range m.headers {
		if managedHeaders[h.Name] {
			continue
		}
		switch h.Name {
		case "X-Mailer":
			hasMailer = true
		case "Date":
			hasDate = true
		}
		value, err := EncodeHeader(h.Value, hcs, len(h.Name)+2)
		if err != nil {
			return nil, err
		}
		hs = append(hs, Header{Name: h.Name, Value: fold(h.Name, value)})
	}
	if !hasMailer {
		hs = append(hs, Header{Name: "X-Mailer", Value: DefaultMailer})
	}
	if !hasDate {
		hs = append(hs, Header{Name: "Date", Value: m.Now().Format(time.RFC1123Z)})
	}

	switch {
	case m.skipMessageID:
	case m.messageID != "":
		hs = append(hs, Header{Name: "Message-ID", Value: m.messageID})
	default:
		hs = append(hs, Header{Name: "Message-ID", Value: "<" + m.NewID() + "@" + m.domain + ">"})
	}

	if fields&FieldSubject != 0 {
		subject, err := EncodeHeader(m.subject, hcs, len("Subject: "))
		if err != nil {
			return nil, err
		}
		hs = append(hs, Header{Name: "Subject", Value: fold("Subject", subject)})
	}

	hs = append(hs,
		Header{Name: "MIME-Version", Value: "1.0"},
		Header{Name: "Content-Type", Value: m.contentType()},
		Header{Name: "Content-Transfer-Encoding", Value: m.TransferEncoding()},
	)
	return hs, nil
}

// distinctSender returns the Sender address unless it repeats From.
func (m *Message) distinctSender() []Address {
	if m.sender == nil || (m.from != nil && m.sender.Email == m.from.Email) {
		return nil
	}
	return []Address{*m.sender}
}

// Compose renders the header block selected by fields and the body.
func (m *Message) Compose(fields Fields) (*Composed, error) {
	headers, err := m.BuildHeaders(fields)
	if err != nil {
		return nil, err
	}
	body, err := m.bodyLines()
	if err != nil {
		return nil, err
	}
	return &Composed{Headers: headers, Body: body}, nil
}
