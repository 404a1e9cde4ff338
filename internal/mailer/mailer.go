// Package mailer sends messages: it renders their bodies, hands them to
// the configured transport and logs deliveries.
package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shineum/mailkit/internal/config"
	"github.com/shineum/mailkit/internal/email"
	"github.com/shineum/mailkit/internal/transport"
	"github.com/shineum/mailkit/internal/view"
)

// Renderer renders message bodies from templates.
type Renderer interface {
	Render(ctx context.Context, req view.Request) (view.Rendered, error)
}

// Mailer sends messages through the transports of a registry.
type Mailer struct {
	transports *transport.Registry
	renderer   Renderer
	logger     *slog.Logger
}

// Option configures a Mailer.
type Option func(*Mailer)

// WithRenderer sets the renderer used for messages with a template.
func WithRenderer(r Renderer) Option {
	return func(m *Mailer) { m.renderer = r }
}

// WithLogger sets the logger deliveries are written to.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mailer) { m.logger = l }
}

// New creates a Mailer. Without WithLogger, deliveries are logged through
// slog.Default.
func New(transports *transport.Registry, opts ...Option) *Mailer {
	m := &Mailer{
		transports: transports,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send validates msg, sets its body and delivers it through the transport
// it names. The body comes from the renderer when the message has a
// template, else from content. A message with a template fails when the
// Mailer has no renderer.
//
// The message keeps its boundary, so sending it again produces the same
// MIME structure until msg.Reset or msg.ResetBoundary is called.
func (m *Mailer) Send(ctx context.Context, msg *email.Message, content email.Content) (*transport.Result, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	if msg.Template() != "" {
		if m.renderer == nil {
			return nil, &email.Error{Msg: fmt.Sprintf("template %q set but no renderer configured", msg.Template())}
		}
		rendered, err := m.renderer.Render(ctx, view.Request{
			Template: msg.Template(),
			Layout:   msg.Layout(),
			Theme:    msg.Theme(),
			Text:     msg.Format() == email.FormatText || msg.Format() == email.FormatBoth,
			HTML:     msg.Format() == email.FormatHTML || msg.Format() == email.FormatBoth,
			Vars:     msg.ViewVars(),
			Helpers:  msg.Helpers(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to render template %q: %w", msg.Template(), err)
		}
		content = email.Content{Text: rendered.Text, HTML: rendered.HTML}
	}
	if err := msg.SetContent(content); err != nil {
		return nil, err
	}

	name := msg.Transport()
	t, err := m.transports.Get(name)
	if err != nil {
		return nil, err
	}

	res, err := t.Send(ctx, msg)
	if err != nil {
		m.logger.Error("failed to send email",
			"transport", name,
			"error", err,
		)
		return nil, fmt.Errorf("failed to send via %s: %w", name, err)
	}

	if settings := msg.Log(); settings.Enabled {
		m.logger.Log(ctx, settings.Level, "email sent",
			"scope", settings.Scope,
			"transport", name,
			"headers", res.Headers,
			"message", res.Message,
		)
	}
	return res, nil
}

// Deliver builds a message from profile, addresses it to to with subject
// and sends content. A single body is used for every format the profile
// asks for when only one of Text and HTML is given.
func (m *Mailer) Deliver(ctx context.Context, profile config.Profile, to []email.Address, subject string, content email.Content) (*transport.Result, error) {
	msg := email.New()
	if err := msg.Apply(profile); err != nil {
		return nil, err
	}
	if len(to) > 0 {
		if err := msg.SetTo(to...); err != nil {
			return nil, err
		}
	}
	if subject != "" {
		if err := msg.SetSubject(subject); err != nil {
			return nil, err
		}
	}

	switch {
	case content.HTML == "":
		content.HTML = content.Text
	case content.Text == "":
		content.Text = content.HTML
	}
	return m.Send(ctx, msg, content)
}
