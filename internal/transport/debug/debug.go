// Package debug implements a Transport that writes composed messages to an
// io.Writer instead of delivering them.
package debug

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shineum/mailkit/internal/email"
	"github.com/shineum/mailkit/internal/transport"
)

const separator = "========================================\n"

// Transport writes each message to its writer and returns it.
type Transport struct {
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
}

// New creates a debug Transport that writes to os.Stdout.
func New() *Transport {
	return &Transport{writer: os.Stdout}
}

// NewWithWriter creates a debug Transport that writes to the given writer.
// A nil writer discards the output.
func NewWithWriter(w io.Writer) *Transport {
	if w == nil {
		w = io.Discard
	}
	return &Transport{writer: w}
}

// Send composes the message without Bcc, writes it between separator
// lines and returns it.
func (t *Transport) Send(_ context.Context, msg *email.Message) (*transport.Result, error) {
	composed, err := msg.Compose(email.WireFields)
	if err != nil {
		return nil, err
	}
	res := transport.NewResult(composed)

	var b strings.Builder
	b.WriteString(separator)
	b.WriteString(res.Headers)
	b.WriteString("\r\n\r\n")
	b.WriteString(res.Message)
	if !strings.HasSuffix(res.Message, "\n") {
		b.WriteString("\n")
	}

	if atts := msg.Attachments(); len(atts) > 0 {
		names := make([]string, 0, len(atts))
		for _, att := range atts {
			names = append(names, fmt.Sprintf("%s (%s)", att.Name, formatSize(attachmentSize(att))))
		}
		b.WriteString(fmt.Sprintf("Attachments: %s\n", strings.Join(names, ", ")))
	}
	b.WriteString(separator)

	if _, err := io.WriteString(t.writer, b.String()); err != nil {
		return nil, fmt.Errorf("failed to write message: %w", err)
	}
	return res, nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "debug"
}

func attachmentSize(att email.Attachment) int {
	if att.File == "" {
		return len(att.Data)
	}
	info, err := os.Stat(att.File)
	if err != nil {
		return 0
	}
	return int(info.Size())
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
