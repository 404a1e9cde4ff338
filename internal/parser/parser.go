// Package parser reads RFC 5322 messages back into their parts, decoding
// transfer encodings, encoded words and body charsets.
package parser

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Message is a parsed message.
type Message struct {
	From      []string
	To        []string
	Cc        []string
	Bcc       []string
	Subject   string
	MessageID string

	// Header holds every header field with its raw values.
	Header map[string][]string

	TextBody    string
	HTMLBody    string
	Attachments []Attachment

	// Structure describes the MIME tree, for example
	// "multipart/mixed[multipart/alternative[text/plain,text/html],image/png]".
	Structure string
}

// Attachment is a decoded attachment or inline part.
type Attachment struct {
	Filename    string
	ContentType string
	ContentID   string
	Inline      bool
	Content     []byte
}

// Parse parses a raw message. Text bodies are converted to UTF-8. Only the
// first text/plain and text/html parts that are not attachments become
// bodies.
func Parse(raw []byte) (*Message, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !recoverable(err) {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	h := mail.Header{Header: entity.Header}
	result := &Message{
		Header: make(map[string][]string),
		From:   addressList(h, "From"),
		To:     addressList(h, "To"),
		Cc:     addressList(h, "Cc"),
		Bcc:    addressList(h, "Bcc"),
	}

	fields := h.Fields()
	for fields.Next() {
		key := fields.Key()
		result.Header[key] = append(result.Header[key], fields.Value())
	}

	if result.Subject, err = h.Subject(); err != nil {
		slog.Warn("failed to decode subject", "error", err)
		result.Subject = h.Get("Subject")
	}
	if id, err := h.MessageID(); err == nil && id != "" {
		result.MessageID = "<" + id + ">"
	}

	structure, err := walk(entity, result)
	if err != nil {
		return nil, err
	}
	result.Structure = structure
	return result, nil
}

// walk collects bodies and attachments from e and returns the structure
// of its subtree.
func walk(e *message.Entity, result *Message) (string, error) {
	mediaType, params := "text/plain", map[string]string{}
	if e.Header.Get("Content-Type") != "" {
		t, p, err := e.Header.ContentType()
		if err != nil {
			slog.Warn("failed to parse content type, treating as plain text", "error", err)
		} else {
			mediaType, params = t, p
		}
	}

	if strings.HasPrefix(mediaType, "multipart/") && params["boundary"] == "" {
		return "", fmt.Errorf("%s part missing boundary", mediaType)
	}
	if mr := e.MultipartReader(); mr != nil {
		var children []string
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil && !recoverable(err) {
				return "", fmt.Errorf("failed to read %s part: %w", mediaType, err)
			}
			child, err := walk(part, result)
			if err != nil {
				return "", err
			}
			children = append(children, child)
		}
		return mediaType + "[" + strings.Join(children, ",") + "]", nil
	}

	content, err := io.ReadAll(e.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read %s body: %w", mediaType, err)
	}

	disposition, dparams, _ := e.Header.ContentDisposition()
	filename := dparams["filename"]
	if filename == "" {
		filename = params["name"]
	}

	switch {
	case disposition != "attachment" && filename == "" && mediaType == "text/plain" && result.TextBody == "":
		result.TextBody = string(content)
	case disposition != "attachment" && filename == "" && mediaType == "text/html" && result.HTMLBody == "":
		result.HTMLBody = string(content)
	default:
		if filename == "" {
			filename = "attachment"
			if _, sub, ok := strings.Cut(mediaType, "/"); ok {
				filename += "." + sub
			}
		}
		result.Attachments = append(result.Attachments, Attachment{
			Filename:    filename,
			ContentType: mediaType,
			ContentID:   strings.Trim(e.Header.Get("Content-Id"), "<>"),
			Inline:      disposition == "inline",
			Content:     content,
		})
	}
	return mediaType, nil
}

// recoverable reports whether err leaves the entity readable, with the body
// left undecoded.
func recoverable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}

func addressList(h mail.Header, key string) []string {
	list, err := h.AddressList(key)
	if err != nil {
		slog.Warn("failed to parse address list", "header", key, "error", err)
		return splitAddresses(h.Get(key))
	}
	if len(list) == 0 {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Address)
	}
	return out
}

// splitAddresses is the fallback for lists the RFC 5322 parser rejects.
func splitAddresses(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
