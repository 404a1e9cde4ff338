package email

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message"

	"github.com/shineum/mailkit/internal/charset"
)

var testDate = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// newTestMessage returns a message with a fixed clock, domain and ID
// generator so composed output is deterministic.
func newTestMessage(t *testing.T) *Message {
	t.Helper()
	m := New()
	m.NewID = func() string { return "abc123" }
	m.Now = func() time.Time { return testDate }
	m.SetDomain("example.com")
	return m
}

func cakeMessage(t *testing.T) *Message {
	t.Helper()
	m := newTestMessage(t)
	if err := m.SetFrom("cake@cakephp.org", ""); err != nil {
		t.Fatalf("SetFrom: %v", err)
	}
	if err := m.SetTo(Address{Email: "you@cakephp.org", Name: "You"}); err != nil {
		t.Fatalf("SetTo: %v", err)
	}
	if err := m.SetSubject("My title"); err != nil {
		t.Fatalf("SetSubject: %v", err)
	}
	return m
}

func headerNames(hs []Header) []string {
	names := make([]string, 0, len(hs))
	for _, h := range hs {
		names = append(names, h.Name)
	}
	return names
}

func TestCompose_TextBody(t *testing.T) {
	t.Parallel()

	m := cakeMessage(t)
	err := m.SetContent(Content{Text: "Here is my body, with multi lines.\nThis is the second line.\r\n\r\nAnd the last."})
	if err != nil {
		t.Fatalf("SetContent: %v", err)
	}
	c, err := m.Compose(AllFields)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	want := "Here is my body, with multi lines.\r\nThis is the second line.\r\n\r\nAnd the last.\r\n\r\n"
	if got := c.BodyString(); got != want {
		t.Errorf("body: got %q, want %q", got, want)
	}
}

func TestCompose_Headers(t *testing.T) {
	t.Parallel()

	m := cakeMessage(t)
	_ = m.SetContent(Content{Text: "hi"})
	c, err := m.Compose(AllFields)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	want := strings.Join([]string{
		"From: cake@cakephp.org",
		"To: You <you@cakephp.org>",
		"X-Mailer: mailkit",
		"Date: Fri, 02 Jan 2026 03:04:05 +0000",
		"Message-ID: <abc123@example.com>",
		"Subject: My title",
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"Content-Transfer-Encoding: 8bit",
	}, "\r\n")
	if got := c.HeaderString(); got != want {
		t.Errorf("headers:\ngot  %q\nwant %q", got, want)
	}
}

func TestBuildHeaders_Order(t *testing.T) {
	t.Parallel()

	m := cakeMessage(t)
	_ = m.SetSender("sender@example.com", "")
	_ = m.SetReplyTo(Address{Email: "reply@example.com"})
	_ = m.SetReadReceipt("receipt@example.com", "")
	_ = m.SetReturnPath("bounce@example.com", "")
	_ = m.SetCc(Address{Email: "cc@example.com"})
	_ = m.SetBcc(Address{Email: "bcc@example.com"})
	_ = m.AddHeaders(Header{Name: "x-campaign", Value: "spring"})

	hs, err := m.BuildHeaders(AllFields)
	if err != nil {
		t.Fatalf("BuildHeaders: %v", err)
	}
	want := []string{
		"From", "Reply-To", "Disposition-Notification-To", "Return-Path", "Sender",
		"To", "Cc", "Bcc", "X-Campaign", "X-Mailer", "Date", "Message-ID", "Subject",
		"MIME-Version", "Content-Type", "Content-Transfer-Encoding",
	}
	if got := headerNames(hs); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("header order:\ngot  %v\nwant %v", got, want)
	}

	wire, err := m.BuildHeaders(WireFields)
	if err != nil {
		t.Fatalf("BuildHeaders: %v", err)
	}
	for _, h := range wire {
		if h.Name == "Bcc" {
			t.Error("WireFields must not include Bcc")
		}
	}
}

func TestBuildHeaders_SenderSameAsFrom(t *testing.T) {
	t.Parallel()

	m := cakeMessage(t)
	_ = m.SetSender("cake@cakephp.org", "Cake")
	hs, _ := m.BuildHeaders(AllFields)
	for _, h := range hs {
		if h.Name == "Sender" {
			t.Errorf("Sender repeated From: %q", h.Value)
		}
	}
}

func TestBuildHeaders_CustomHeaders(t *testing.T) {
	t.Parallel()

	m := cakeMessage(t)
	if err := m.AddHeaders(Header{Name: "x-tag", Value: "one"}, Header{Name: "X-Mailer", Value: "custom"}); err != nil {
		t.Fatalf("AddHeaders: %v", err)
	}
	if err := m.AddHeaders(Header{Name: "X-Tag", Value: "two"}); err != nil {
		t.Fatalf("AddHeaders: %v", err)
	}
	if err := m.AddHeaders(Header{Name: "Subject", Value: "ignored"}); err != nil {
		t.Fatalf("AddHeaders: %v", err)
	}

	c, err := m.Compose(AllFields)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if got := c.Header("X-Tag"); got != "two" {
		t.Errorf("X-Tag: got %q, want %q", got, "two")
	}
	if got := c.Header("X-Mailer"); got != "custom" {
		t.Errorf("X-Mailer: got %q, want %q", got, "custom")
	}
	if got := c.Header("Subject"); got != "My title" {
		t.Errorf("Subject: got %q, want %q", got, "My title")
	}
	if n := strings.Count(c.HeaderString(), "X-Mailer:"); n != 1 {
		t.Errorf("X-Mailer: got %d headers, want 1", n)
	}
}

func TestHeaders_Invalid(t *testing.T) {
	t.Parallel()

	m := New()
	if err := m.AddHeaders(Header{Name: "Bad Name", Value: "x"}); err == nil {
		t.Error("expected error for header name with a space")
	}
	if err := m.AddHeaders(Header{Name: "X-Inject", Value: "a\r\nBcc: evil@example.com"}); err == nil {
		t.Error("expected error for header value with a line break")
	}
	if err := m.SetSubject("line\nbreak"); err == nil {
		t.Error("expected error for subject with a line break")
	}
	if len(m.Headers()) != 0 {
		t.Errorf("Headers: got %v, want none", m.Headers())
	}
}

func TestMessageID(t *testing.T) {
	t.Parallel()

	m := cakeMessage(t)
	if err := m.SetMessageID("not-an-id"); err == nil {
		t.Error("expected error for a malformed Message-ID")
	}
	if err := m.SetMessageID("<custom@example.org>"); err != nil {
		t.Fatalf("SetMessageID: %v", err)
	}
	hs, _ := m.BuildHeaders(AllFields)
	if got := (&Composed{Headers: hs}).Header("Message-ID"); got != "<custom@example.org>" {
		t.Errorf("Message-ID: got %q", got)
	}

	m.DisableMessageID()
	hs, _ = m.BuildHeaders(AllFields)
	if got := (&Composed{Headers: hs}).Header("Message-ID"); got != "" {
		t.Errorf("Message-ID: got %q, want none", got)
	}

	m.GenerateMessageID()
	hs, _ = m.BuildHeaders(AllFields)
	if got := (&Composed{Headers: hs}).Header("Message-ID"); got != "<abc123@example.com>" {
		t.Errorf("Message-ID: got %q", got)
	}
}

func TestValidate_RequiredFields(t *testing.T) {
	t.Parallel()

	m := newTestMessage(t)
	_ = m.SetTo(Address{Email: "you@example.com"})
	err := m.Validate()
	if err == nil || !strings.Contains(err.Error(), "_from") || !strings.Contains(err.Error(), "empty") {
		t.Errorf("missing from: got %v", err)
	}

	m = newTestMessage(t)
	_ = m.SetFrom("me@example.com", "")
	err = m.Validate()
	if err == nil || !strings.Contains(err.Error(), "_to") || !strings.Contains(err.Error(), "empty") {
		t.Errorf("missing to: got %v", err)
	}
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("error %v is not ErrInvalid", err)
	}

	_ = m.SetTo(Address{Email: "you@example.com"})
	if err := m.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCompose_BothFormats(t *testing.T) {
	t.Parallel()

	m := cakeMessage(t)
	_ = m.SetFormat(FormatBoth)
	_ = m.SetContent(Content{Text: "Hello", HTML: "<p>Hello</p>"})
	c, err := m.Compose(AllFields)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	if got, want := c.Header("Content-Type"), `multipart/alternative; boundary="alt-abc123"`; got != want {
		t.Errorf("Content-Type: got %q, want %q", got, want)
	}

	want := []string{
		"--alt-abc123",
		"Content-Type: text/plain; charset=utf-8",
		"Content-Transfer-Encoding: 8bit",
		"",
		"Hello",
		"",
		"",
		"--alt-abc123",
		"Content-Type: text/html; charset=utf-8",
		"Content-Transfer-Encoding: 8bit",
		"",
		"<p>Hello</p>",
		"",
		"",
		"--alt-abc123--",
		"",
	}
	if strings.Join(c.Body, "\n") != strings.Join(want, "\n") {
		t.Errorf("body:\ngot  %q\nwant %q", c.Body, want)
	}

	parts := readTree(t, c.Bytes())
	if got := strings.Join(parts, ","); got != "multipart/alternative[text/plain,text/html]" {
		t.Errorf("structure: got %q", got)
	}
}

func TestCompose_HTMLOnly(t *testing.T) {
	t.Parallel()

	m := cakeMessage(t)
	_ = m.SetFormat(FormatHTML)
	_ = m.SetContent(Content{Text: "ignored", HTML: "<p>Hi</p>"})
	c, _ := m.Compose(AllFields)

	if got := c.Header("Content-Type"); got != "text/html; charset=utf-8" {
		t.Errorf("Content-Type: got %q", got)
	}
	if got := c.BodyString(); got != "<p>Hi</p>\r\n\r\n" {
		t.Errorf("body: got %q", got)
	}
	if m.TextBody() != "" {
		t.Errorf("TextBody: got %q, want empty", m.TextBody())
	}
}

func TestCompose_Structures(t *testing.T) {
	t.Parallel()

	plain := Attachment{Name: "a.txt", Data: []byte("attached"), MimeType: "text/plain"}
	inline := Attachment{Name: "logo.png", Data: []byte{0x89, 'P', 'N', 'G'}, MimeType: "image/png", ContentID: "logo"}

	tests := []struct {
		name   string
		format Format
		atts   []Attachment
		want   string
	}{
		{"text", FormatText, nil, "text/plain"},
		{"html", FormatHTML, nil, "text/html"},
		{"both", FormatBoth, nil, "multipart/alternative[text/plain,text/html]"},
		{"text+attachment", FormatText, []Attachment{plain}, "multipart/mixed[text/plain,text/plain]"},
		{"both+attachment", FormatBoth, []Attachment{plain},
			"multipart/mixed[multipart/alternative[text/plain,text/html],text/plain]"},
		{"html+inline", FormatHTML, []Attachment{inline},
			"multipart/mixed[multipart/related[text/html,image/png]]"},
		{"both+inline+attachment", FormatBoth, []Attachment{inline, plain},
			"multipart/mixed[multipart/related[multipart/alternative[text/plain,text/html],image/png],text/plain]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := cakeMessage(t)
			_ = m.SetFormat(tt.format)
			if err := m.SetAttachments(tt.atts...); err != nil {
				t.Fatalf("SetAttachments: %v", err)
			}
			_ = m.SetContent(Content{Text: "Hello", HTML: `<p>Hello <img src="cid:logo"></p>`})
			c, err := m.Compose(AllFields)
			if err != nil {
				t.Fatalf("Compose: %v", err)
			}
			if got := strings.Join(readTree(t, c.Bytes()), ","); got != tt.want {
				t.Errorf("structure: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCompose_BoundaryNesting(t *testing.T) {
	t.Parallel()

	m := cakeMessage(t)
	_ = m.SetFormat(FormatBoth)
	_ = m.SetAttachments(
		Attachment{Name: "logo.png", Data: []byte("png"), MimeType: "image/png", ContentID: "logo"},
		Attachment{Name: "a.txt", Data: []byte("txt"), MimeType: "text/plain"},
	)
	_ = m.SetContent(Content{Text: "t", HTML: "h"})
	c, err := m.Compose(AllFields)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	index := func(line string) int {
		for i, l := range c.Body {
			if l == line {
				return i
			}
		}
		t.Fatalf("line %q missing from body", line)
		return -1
	}
	altClose := index("--alt-abc123--")
	relClose := index("--rel-abc123--")
	mixedClose := index("--abc123--")
	if !(altClose < relClose && relClose < mixedClose) {
		t.Errorf("close order: alt=%d rel=%d mixed=%d", altClose, relClose, mixedClose)
	}
	if mixedClose != len(c.Body)-2 {
		t.Errorf("mixed boundary closed at %d of %d lines", mixedClose, len(c.Body))
	}
}

func TestCompose_AttachmentContent(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte{0, 1, 2, 253, 254, 255}, 50)
	m := cakeMessage(t)
	_ = m.SetAttachments(Attachment{Name: "blob.bin", Data: data})
	_ = m.SetContent(Content{Text: "see attached"})
	c, err := m.Compose(AllFields)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	e, err := message.Read(bytes.NewReader(c.Bytes()))
	if err != nil {
		t.Fatalf("message.Read: %v", err)
	}
	mr := e.MultipartReader()
	if mr == nil {
		t.Fatal("expected a multipart message")
	}
	if _, err := mr.NextPart(); err != nil {
		t.Fatalf("text part: %v", err)
	}
	p, err := mr.NextPart()
	if err != nil {
		t.Fatalf("attachment part: %v", err)
	}
	_, params, _ := p.Header.ContentDisposition()
	if params["filename"] != "blob.bin" {
		t.Errorf("filename: got %q, want %q", params["filename"], "blob.bin")
	}
	got, err := io.ReadAll(p.Body)
	if err != nil {
		t.Fatalf("read attachment: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("attachment content does not round trip")
	}
}

func TestCompose_ISO2022JP(t *testing.T) {
	t.Parallel()

	m := cakeMessage(t)
	if err := m.SetCharset("iso-2022-jp"); err != nil {
		t.Fatalf("SetCharset: %v", err)
	}
	_ = m.SetSubject("日本語の件名")
	_ = m.SetContent(Content{Text: "日本語の本文"})
	c, err := m.Compose(AllFields)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	if got := c.Header("Content-Type"); got != "text/plain; charset=iso-2022-jp" {
		t.Errorf("Content-Type: got %q", got)
	}
	if got := c.Header("Content-Transfer-Encoding"); got != "7bit" {
		t.Errorf("Content-Transfer-Encoding: got %q, want 7bit", got)
	}
	subject := c.Header("Subject")
	if !strings.HasPrefix(subject, "=?ISO-2022-JP?B?") {
		t.Errorf("Subject: got %q", subject)
	}
	if got := charset.DecodeHeader(subject); got != "日本語の件名" {
		t.Errorf("decoded Subject: got %q", got)
	}
	want, _ := charset.Encode("日本語の本文", "iso-2022-jp")
	if c.Body[0] != want {
		t.Errorf("body: got %q, want %q", c.Body[0], want)
	}
	for _, b := range c.Bytes() {
		if b >= 0x80 {
			t.Fatal("ISO-2022-JP message contains 8-bit data")
		}
	}
}

func TestSetters_Validation(t *testing.T) {
	t.Parallel()

	m := New()
	if err := m.SetFormat("pdf"); err == nil || !strings.Contains(err.Error(), "format not available") {
		t.Errorf("SetFormat: got %v", err)
	}
	if err := m.SetCharset("klingon"); err == nil {
		t.Error("SetCharset: expected error for unknown charset")
	}
	if err := m.SetTransferEncoding("uuencode"); err == nil {
		t.Error("SetTransferEncoding: expected error")
	}
	if err := m.SetTransferEncoding("Quoted-Printable"); err != nil || m.TransferEncoding() != "quoted-printable" {
		t.Errorf("SetTransferEncoding: got %q, %v", m.TransferEncoding(), err)
	}
	if err := m.SetLineLength(0); err == nil {
		t.Error("SetLineLength(0): expected error")
	}
	if err := m.SetLineLength(LineLengthMust + 1); err == nil {
		t.Error("SetLineLength: expected error above the hard limit")
	}
	if err := m.SetHeaderCharset("iso-8859-1"); err != nil {
		t.Fatalf("SetHeaderCharset: %v", err)
	}
	if got := m.HeaderCharset(); got != "iso-8859-1" {
		t.Errorf("HeaderCharset: got %q", got)
	}
}

func TestBoundary_Reuse(t *testing.T) {
	t.Parallel()

	m := cakeMessage(t)
	n := 0
	m.NewID = func() string {
		n++
		return fmt.Sprintf("id%d", n)
	}
	_ = m.SetFormat(FormatBoth)
	_ = m.SetContent(Content{Text: "a", HTML: "b"})

	first, _ := m.Compose(AllFields)
	second, _ := m.Compose(AllFields)
	if first.Header("Content-Type") != second.Header("Content-Type") {
		t.Errorf("boundary changed between compositions: %q vs %q",
			first.Header("Content-Type"), second.Header("Content-Type"))
	}

	m.ResetBoundary()
	third, _ := m.Compose(AllFields)
	if third.Header("Content-Type") == first.Header("Content-Type") {
		t.Error("ResetBoundary did not produce a new boundary")
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	m := cakeMessage(t)
	_ = m.SetCharset("iso-2022-jp")
	_ = m.SetHeaderCharset("utf-8")
	_ = m.SetFormat(FormatBoth)
	m.SetTransport("smtp")
	m.SetTemplate("welcome", "fancy")

	m.Reset()
	if len(m.From()) != 0 || len(m.To()) != 0 || m.Subject() != "" {
		t.Error("Reset did not clear addresses and subject")
	}
	if m.Format() != FormatText || m.Transport() != DefaultTransport || m.Layout() != "default" || m.Template() != "" {
		t.Errorf("Reset defaults: format=%q transport=%q layout=%q template=%q",
			m.Format(), m.Transport(), m.Layout(), m.Template())
	}
	if m.Charset() != "iso-2022-jp" || m.HeaderCharset() != "utf-8" {
		t.Errorf("Reset should keep charsets: got %q/%q", m.Charset(), m.HeaderCharset())
	}

	m.ResetAll()
	if m.Charset() != "utf-8" || m.HeaderCharset() != "utf-8" {
		t.Errorf("ResetAll charsets: got %q/%q", m.Charset(), m.HeaderCharset())
	}
}

// readTree parses raw with go-message and describes its MIME structure as
// "type[child,child]".
func readTree(t *testing.T, raw []byte) []string {
	t.Helper()
	e, err := message.Read(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("message.Read: %v", err)
	}
	return []string{describe(t, e)}
}

func describe(t *testing.T, e *message.Entity) string {
	t.Helper()
	mediaType, _, err := e.Header.ContentType()
	if err != nil {
		t.Fatalf("Content-Type: %v", err)
	}
	mr := e.MultipartReader()
	if mr == nil {
		return mediaType
	}
	var children []string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextPart: %v", err)
		}
		children = append(children, describe(t, p))
	}
	return mediaType + "[" + strings.Join(children, ",") + "]"
}
