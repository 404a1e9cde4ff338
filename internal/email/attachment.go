package email

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
)

// base64LineLength is the width of base64 attachment lines (RFC 2045).
const base64LineLength = 76

// Attachment is a file or in-memory blob attached to a message.
type Attachment struct {
	// Name is the filename shown to the recipient. It defaults to the base
	// name of File.
	Name string

	// File is read when the message is composed. Exactly one of File and
	// Data is used; File wins when both are set.
	File string
	Data []byte

	// MimeType defaults to a guess from Name's extension, then
	// application/octet-stream.
	MimeType string

	// ContentID makes the attachment inline, referenced as cid:ContentID.
	ContentID string

	// NoDisposition suppresses the Content-Disposition header.
	NoDisposition bool
}

// Inline reports whether the attachment is referenced from the body.
func (a Attachment) Inline() bool { return a.ContentID != "" }

// SetAttachments replaces every attachment.
func (m *Message) SetAttachments(list ...Attachment) error {
	prepared, err := prepareAttachments(list)
	if err != nil {
		return err
	}
	m.attachments = nil
	m.mergeAttachments(prepared)
	return nil
}

// AddAttachments adds attachments. An attachment with the same name as an
// existing one replaces it.
func (m *Message) AddAttachments(list ...Attachment) error {
	prepared, err := prepareAttachments(list)
	if err != nil {
		return err
	}
	m.mergeAttachments(prepared)
	return nil
}

func (m *Message) Attachments() []Attachment {
	return append([]Attachment(nil), m.attachments...)
}

func (m *Message) mergeAttachments(list []Attachment) {
	for _, a := range list {
		replaced := false
		for i := range m.attachments {
			if m.attachments[i].Name == a.Name {
				m.attachments[i] = a
				replaced = true
				break
			}
		}
		if !replaced {
			m.attachments = append(m.attachments, a)
		}
	}
}

func prepareAttachments(list []Attachment) ([]Attachment, error) {
	out := make([]Attachment, 0, len(list))
	for _, a := range list {
		switch {
		case a.File != "":
			path, err := filepath.Abs(a.File)
			if err != nil {
				return nil, errorf("file not found: %q", a.File)
			}
			info, err := os.Stat(path)
			if err != nil || info.IsDir() {
				return nil, errorf("file not found: %q", a.File)
			}
			a.File = path
			if a.Name == "" {
				a.Name = filepath.Base(path)
			}
		case a.Data != nil:
			if a.Name == "" {
				return nil, errorf("no filename specified")
			}
		default:
			return nil, errorf("no file or data specified")
		}
		if !validHeaderValue(a.Name) || !validHeaderValue(a.ContentID) {
			return nil, errorf("invalid attachment name or content id: %q", a.Name)
		}
		if a.MimeType == "" {
			a.MimeType = mime.TypeByExtension(filepath.Ext(a.Name))
		}
		if a.MimeType == "" {
			a.MimeType = "application/octet-stream"
		}
		out = append(out, a)
	}
	return out, nil
}

// content returns the raw attachment bytes, reading File when set.
func (a Attachment) content() ([]byte, error) {
	if a.File == "" {
		return a.Data, nil
	}
	data, err := os.ReadFile(a.File)
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment %q: %w", a.Name, err)
	}
	return data, nil
}

// part renders the attachment as MIME part lines opened by boundary.
func (a Attachment) part(boundary string) ([]string, error) {
	data, err := a.content()
	if err != nil {
		return nil, err
	}

	lines := []string{
		"--" + boundary,
		"Content-Type: " + a.MimeType,
		"Content-Transfer-Encoding: base64",
	}
	if a.Inline() {
		lines = append(lines, "Content-ID: <"+a.ContentID+">")
	}
	if !a.NoDisposition {
		disposition := "attachment"
		if a.Inline() {
			disposition = "inline"
		}
		lines = append(lines, "Content-Disposition: "+dispositionValue(disposition, a.Name))
	}
	lines = append(lines, "")
	lines = append(lines, base64Lines(data)...)
	return append(lines, ""), nil
}

func dispositionValue(disposition, name string) string {
	if isASCII(name) {
		return disposition + `; filename="` + escapeQuoted(name) + `"`
	}
	return mime.FormatMediaType(disposition, map[string]string{"filename": name})
}

func escapeQuoted(s string) string {
	q := quote(s)
	return q[1 : len(q)-1]
}

// base64Lines encodes data and splits it into base64LineLength chunks.
func base64Lines(data []byte) []string {
	encoded := base64.StdEncoding.EncodeToString(data)
	lines := make([]string, 0, len(encoded)/base64LineLength+1)
	for i := 0; i < len(encoded); i += base64LineLength {
		end := i + base64LineLength
		if end > len(encoded) {
			end = len(encoded)
		}
		lines = append(lines, encoded[i:end])
	}
	return lines
}
