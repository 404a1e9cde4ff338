// Package email defines the message model and the MIME composition engine:
// address formatting, header encoding, body wrapping, attachment encoding
// and multipart assembly.
package email

import (
	"log/slog"
	"net/textproto"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shineum/mailkit/internal/charset"
)

// Format selects which body parts a message carries.
type Format string

const (
	FormatText Format = "text"
	FormatHTML Format = "html"
	FormatBoth Format = "both"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatHTML, FormatBoth:
		return f, nil
	}
	return "", errorf("format not available: %q", s)
}

func (f Format) hasText() bool { return f == FormatText || f == FormatBoth }
func (f Format) hasHTML() bool { return f == FormatHTML || f == FormatBoth }

const (
	// DefaultMailer is the X-Mailer value unless a custom header overrides it.
	DefaultMailer = "mailkit"

	// DefaultTransport names the transport used when none is configured.
	DefaultTransport = "debug"
)

// transferEncodings lists the accepted Content-Transfer-Encoding overrides.
var transferEncodings = map[string]bool{
	"7bit":             true,
	"8bit":             true,
	"base64":           true,
	"binary":           true,
	"quoted-printable": true,
}

// messageIDPattern is the shape an explicit Message-ID must have.
var messageIDPattern = regexp.MustCompile(`^<.+@.+>$`)

// LogSettings controls delivery logging for a message.
type LogSettings struct {
	Enabled bool
	Level   slog.Level
	Scope   string
}

// Content is the rendered body of a message, one entry per format.
type Content struct {
	Text string
	HTML string
}

// Message is a mail message under construction. A Message is not safe for
// concurrent use.
type Message struct {
	from        *Address
	sender      *Address
	readReceipt *Address
	returnPath  *Address
	replyTo     []Address
	to          []Address
	cc          []Address
	bcc         []Address

	subject     string
	headers     []Header
	format      Format
	attachments []Attachment

	charset          string
	headerCharset    string
	transferEncoding string
	lineLength       int

	template string
	layout   string
	theme    string
	viewVars map[string]any
	helpers  []string

	messageID     string
	skipMessageID bool
	domain        string
	emailPattern  *regexp.Regexp

	transport string
	log       LogSettings

	textLines []string
	htmlLines []string
	boundary  string

	// NewID returns a fresh unique token for boundaries and Message-IDs.
	NewID func() string

	// Now returns the time written into the Date header.
	Now func() time.Time
}

// New returns a message with default settings.
func New() *Message {
	m := &Message{
		charset: charset.UTF8,
		NewID:   newID,
		Now:     time.Now,
	}
	m.Reset()
	return m
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Reset clears every field back to its default. The body and header
// charsets survive a reset; use ResetAll to restore them as well.
func (m *Message) Reset() {
	m.from, m.sender, m.readReceipt, m.returnPath = nil, nil, nil, nil
	m.replyTo, m.to, m.cc, m.bcc = nil, nil, nil, nil
	m.subject = ""
	m.headers = nil
	m.format = FormatText
	m.attachments = nil
	m.transferEncoding = ""
	m.lineLength = LineLengthShould
	m.template = ""
	m.layout = "default"
	m.theme = ""
	m.viewVars = nil
	m.helpers = nil
	m.messageID = ""
	m.skipMessageID = false
	m.domain = defaultDomain()
	m.emailPattern = defaultEmailPattern
	m.transport = DefaultTransport
	m.log = LogSettings{}
	m.textLines, m.htmlLines = nil, nil
	m.boundary = ""
}

// ResetAll is Reset plus restoring the charsets to their defaults.
func (m *Message) ResetAll() {
	m.Reset()
	m.charset = charset.UTF8
	m.headerCharset = ""
}

// ResetBoundary discards the boundary so the next composition generates a
// new one.
func (m *Message) ResetBoundary() {
	m.boundary = ""
}

func defaultDomain() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "localhost"
}

func (m *Message) setOne(dst **Address, email, name string) error {
	if err := validate(m.emailPattern, email); err != nil {
		return err
	}
	*dst = &Address{Email: email, Name: name}
	return nil
}

func (m *Message) checkAll(list []Address) error {
	for _, a := range list {
		if err := validate(m.emailPattern, a.Email); err != nil {
			return err
		}
	}
	return nil
}

func (m *Message) setList(dst *[]Address, list []Address) error {
	if err := m.checkAll(list); err != nil {
		return err
	}
	*dst = append([]Address(nil), list...)
	return nil
}

func (m *Message) addList(dst *[]Address, list []Address) error {
	if err := m.checkAll(list); err != nil {
		return err
	}
	*dst = append(*dst, list...)
	return nil
}

// SetFrom sets the single From address.
func (m *Message) SetFrom(email, name string) error { return m.setOne(&m.from, email, name) }

// SetSender sets the Sender address. It is omitted when equal to From.
func (m *Message) SetSender(email, name string) error { return m.setOne(&m.sender, email, name) }

// SetReadReceipt sets the Disposition-Notification-To address.
func (m *Message) SetReadReceipt(email, name string) error {
	return m.setOne(&m.readReceipt, email, name)
}

// SetReturnPath sets the Return-Path address, also used as envelope sender.
func (m *Message) SetReturnPath(email, name string) error {
	return m.setOne(&m.returnPath, email, name)
}

func (m *Message) SetReplyTo(list ...Address) error { return m.setList(&m.replyTo, list) }
func (m *Message) AddReplyTo(list ...Address) error { return m.addList(&m.replyTo, list) }
func (m *Message) SetTo(list ...Address) error      { return m.setList(&m.to, list) }
func (m *Message) AddTo(list ...Address) error      { return m.addList(&m.to, list) }
func (m *Message) SetCc(list ...Address) error      { return m.setList(&m.cc, list) }
func (m *Message) AddCc(list ...Address) error      { return m.addList(&m.cc, list) }
func (m *Message) SetBcc(list ...Address) error     { return m.setList(&m.bcc, list) }
func (m *Message) AddBcc(list ...Address) error     { return m.addList(&m.bcc, list) }

func single(a *Address) []Address {
	if a == nil {
		return nil
	}
	return []Address{*a}
}

func (m *Message) From() []Address        { return single(m.from) }
func (m *Message) Sender() []Address      { return single(m.sender) }
func (m *Message) ReadReceipt() []Address { return single(m.readReceipt) }
func (m *Message) ReturnPath() []Address  { return single(m.returnPath) }
func (m *Message) ReplyTo() []Address     { return append([]Address(nil), m.replyTo...) }
func (m *Message) To() []Address          { return append([]Address(nil), m.to...) }
func (m *Message) Cc() []Address          { return append([]Address(nil), m.cc...) }
func (m *Message) Bcc() []Address         { return append([]Address(nil), m.bcc...) }

// EnvelopeFrom is the SMTP reverse path: Return-Path when set, else From.
func (m *Message) EnvelopeFrom() string {
	if m.returnPath != nil {
		return m.returnPath.Email
	}
	if m.from != nil {
		return m.from.Email
	}
	return ""
}

// Recipients returns every To, Cc and Bcc address.
func (m *Message) Recipients() []string {
	out := addresses(m.to)
	out = append(out, addresses(m.cc)...)
	return append(out, addresses(m.bcc)...)
}

// SetEmailPattern replaces the address validation pattern. An empty pattern
// switches to a generic syntax check.
func (m *Message) SetEmailPattern(pattern string) error {
	if pattern == "" {
		m.emailPattern = nil
		return nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return errorf("invalid email pattern: %v", err)
	}
	m.emailPattern = re
	return nil
}

// SetSubject sets the subject. It is encoded when headers are built.
func (m *Message) SetSubject(subject string) error {
	if !validHeaderValue(subject) {
		return errorf("invalid subject: line breaks are not allowed")
	}
	m.subject = subject
	return nil
}

func (m *Message) Subject() string { return m.subject }

// SetHeaders replaces all custom headers.
func (m *Message) SetHeaders(headers ...Header) error {
	m.headers = nil
	return m.AddHeaders(headers...)
}

// AddHeaders adds custom headers. A header with the same name as an
// existing one replaces it in place.
func (m *Message) AddHeaders(headers ...Header) error {
	for _, h := range headers {
		if !validHeaderName(h.Name) {
			return errorf("invalid header name: %q", h.Name)
		}
		if !validHeaderValue(h.Value) {
			return errorf("invalid header value for %q", h.Name)
		}
	}
	for _, h := range headers {
		h.Name = textproto.CanonicalMIMEHeaderKey(h.Name)
		replaced := false
		for i := range m.headers {
			if m.headers[i].Name == h.Name {
				m.headers[i].Value = h.Value
				replaced = true
				break
			}
		}
		if !replaced {
			m.headers = append(m.headers, h)
		}
	}
	return nil
}

func (m *Message) Headers() []Header { return append([]Header(nil), m.headers...) }

// SetFormat selects text, html or both.
func (m *Message) SetFormat(f Format) error {
	parsed, err := ParseFormat(string(f))
	if err != nil {
		return err
	}
	m.format = parsed
	return nil
}

func (m *Message) Format() Format { return m.format }

// SetCharset sets the body charset.
func (m *Message) SetCharset(cs string) error {
	if !charset.IsUTF8(cs) {
		if _, err := charset.Lookup(cs); err != nil {
			return errorf("charset not available: %q", cs)
		}
	}
	m.charset = cs
	return nil
}

func (m *Message) Charset() string { return m.charset }

// SetHeaderCharset sets the charset used for encoded words. An empty value
// means "same as the body charset".
func (m *Message) SetHeaderCharset(cs string) error {
	if cs != "" && !charset.IsUTF8(cs) {
		if _, err := charset.Lookup(cs); err != nil {
			return errorf("charset not available: %q", cs)
		}
	}
	m.headerCharset = cs
	return nil
}

// HeaderCharset returns the effective header charset.
func (m *Message) HeaderCharset() string {
	if m.headerCharset == "" {
		return m.charset
	}
	return m.headerCharset
}

// SetTransferEncoding overrides the charset-derived transfer encoding.
func (m *Message) SetTransferEncoding(enc string) error {
	enc = strings.ToLower(enc)
	if enc != "" && !transferEncodings[enc] {
		return errorf("transfer encoding not available: %q", enc)
	}
	m.transferEncoding = enc
	return nil
}

// TransferEncoding returns the Content-Transfer-Encoding of the body parts.
func (m *Message) TransferEncoding() string {
	if m.transferEncoding != "" {
		return m.transferEncoding
	}
	return charset.TransferEncoding(m.charset)
}

// SetLineLength sets the soft body line length.
func (m *Message) SetLineLength(n int) error {
	if n <= 0 || n > LineLengthMust {
		return errorf("line length must be between 1 and %d", LineLengthMust)
	}
	m.lineLength = n
	return nil
}

func (m *Message) LineLength() int { return m.lineLength }

// SetMessageID sets an explicit Message-ID such as "<id@example.com>".
func (m *Message) SetMessageID(id string) error {
	if !messageIDPattern.MatchString(id) {
		return errorf(`invalid format for Message-ID: the text should be something like "<uuid@server.com>"`)
	}
	m.messageID = id
	m.skipMessageID = false
	return nil
}

// GenerateMessageID restores the default generated Message-ID.
func (m *Message) GenerateMessageID() {
	m.messageID = ""
	m.skipMessageID = false
}

// DisableMessageID leaves the Message-ID header out.
func (m *Message) DisableMessageID() {
	m.messageID = ""
	m.skipMessageID = true
}

// SetDomain sets the domain used in generated Message-IDs.
func (m *Message) SetDomain(domain string) { m.domain = domain }
func (m *Message) Domain() string          { return m.domain }

// SetTemplate selects the template and layout rendered into the body.
func (m *Message) SetTemplate(template, layout string) {
	m.template = template
	if layout != "" {
		m.layout = layout
	}
}

func (m *Message) Template() string { return m.template }
func (m *Message) Layout() string   { return m.layout }

func (m *Message) SetTheme(theme string) { m.theme = theme }
func (m *Message) Theme() string         { return m.theme }

// SetViewVars merges vars into the template variables.
func (m *Message) SetViewVars(vars map[string]any) {
	if m.viewVars == nil {
		m.viewVars = make(map[string]any, len(vars))
	}
	for k, v := range vars {
		m.viewVars[k] = v
	}
}

func (m *Message) ViewVars() map[string]any { return m.viewVars }

func (m *Message) SetHelpers(helpers ...string) { m.helpers = append([]string(nil), helpers...) }
func (m *Message) Helpers() []string            { return m.helpers }

// SetTransport selects the transport by registry name.
func (m *Message) SetTransport(name string) { m.transport = name }
func (m *Message) Transport() string        { return m.transport }

func (m *Message) SetLog(settings LogSettings) { m.log = settings }
func (m *Message) Log() LogSettings            { return m.log }

// Validate checks the fields required for sending.
func (m *Message) Validate() error {
	if m.from == nil {
		return errorf("required field _from is empty")
	}
	if len(m.to) == 0 {
		return errorf("required field _to is empty")
	}
	return nil
}
