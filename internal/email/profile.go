package email

import (
	"log/slog"

	"github.com/shineum/mailkit/internal/config"
)

func toAddresses(list []config.Address) []Address {
	out := make([]Address, 0, len(list))
	for _, a := range list {
		out = append(out, Address{Email: a.Email, Name: a.Name})
	}
	return out
}

// Apply copies the settings of a configuration profile onto m. Fields the
// profile leaves empty keep their current value. The email pattern is
// applied first so that addresses are checked against it.
func (m *Message) Apply(p config.Profile) error {
	if p.EmailPattern != nil {
		if err := m.SetEmailPattern(*p.EmailPattern); err != nil {
			return err
		}
	}
	if p.Charset != "" {
		if err := m.SetCharset(p.Charset); err != nil {
			return err
		}
	}
	if p.HeaderCharset != "" {
		if err := m.SetHeaderCharset(p.HeaderCharset); err != nil {
			return err
		}
	}

	singles := []struct {
		addr *config.Address
		set  func(email, name string) error
	}{
		{p.From, m.SetFrom},
		{p.Sender, m.SetSender},
		{p.ReadReceipt, m.SetReadReceipt},
		{p.ReturnPath, m.SetReturnPath},
	}
	for _, s := range singles {
		if s.addr == nil {
			continue
		}
		if err := s.set(s.addr.Email, s.addr.Name); err != nil {
			return err
		}
	}

	lists := []struct {
		list []config.Address
		set  func(...Address) error
	}{
		{p.ReplyTo, m.SetReplyTo},
		{p.To, m.SetTo},
		{p.Cc, m.SetCc},
		{p.Bcc, m.SetBcc},
	}
	for _, l := range lists {
		if len(l.list) == 0 {
			continue
		}
		if err := l.set(toAddresses(l.list)...); err != nil {
			return err
		}
	}

	if p.Subject != "" {
		if err := m.SetSubject(p.Subject); err != nil {
			return err
		}
	}
	for _, name := range p.HeaderNames() {
		if err := m.AddHeaders(Header{Name: name, Value: p.Headers[name]}); err != nil {
			return err
		}
	}
	if p.Format != "" {
		if err := m.SetFormat(Format(p.Format)); err != nil {
			return err
		}
	}
	if p.TransferEncoding != "" {
		if err := m.SetTransferEncoding(p.TransferEncoding); err != nil {
			return err
		}
	}
	if p.LineLength != 0 {
		if err := m.SetLineLength(p.LineLength); err != nil {
			return err
		}
	}

	if p.Template != "" || p.Layout != "" {
		m.SetTemplate(p.Template, p.Layout)
	}
	if p.Theme != "" {
		m.SetTheme(p.Theme)
	}
	if len(p.Helpers) > 0 {
		m.SetHelpers(p.Helpers...)
	}
	if len(p.ViewVars) > 0 {
		m.SetViewVars(p.ViewVars)
	}

	if len(p.Attachments) > 0 {
		atts := make([]Attachment, 0, len(p.Attachments))
		for _, a := range p.Attachments {
			atts = append(atts, Attachment{
				Name:          a.Name,
				File:          a.File,
				MimeType:      a.MimeType,
				ContentID:     a.ContentID,
				NoDisposition: a.NoDisposition,
			})
		}
		if err := m.AddAttachments(atts...); err != nil {
			return err
		}
	}

	if p.Domain != "" {
		m.SetDomain(p.Domain)
	}
	switch {
	case p.DisableMessageID:
		m.DisableMessageID()
	case p.MessageID != "":
		if err := m.SetMessageID(p.MessageID); err != nil {
			return err
		}
	}

	if p.Transport != "" {
		m.SetTransport(p.Transport)
	}
	if p.Log.Enabled {
		settings := LogSettings{Enabled: true, Level: slog.LevelDebug, Scope: p.Log.Scope}
		if p.Log.Level != "" {
			if err := settings.Level.UnmarshalText([]byte(p.Log.Level)); err != nil {
				return errorf("invalid log level: %q", p.Log.Level)
			}
		}
		m.SetLog(settings)
	}
	return nil
}
