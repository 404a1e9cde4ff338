// Package smtp implements a Transport that submits messages to an SMTP
// relay, with optional STARTTLS or implicit TLS and AUTH PLAIN.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/shineum/mailkit/internal/email"
	mailtls "github.com/shineum/mailkit/internal/tls"
	"github.com/shineum/mailkit/internal/transport"
)

// TLS modes.
const (
	TLSNone     = "none"
	TLSStartTLS = "starttls"
	TLSImplicit = "implicit"
)

const defaultTimeout = 30 * time.Second

// Config holds the configuration for creating a Transport.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// Client is the name announced in EHLO. Defaults to "localhost".
	Client  string
	Timeout time.Duration

	TLS                string
	CAFile             string
	InsecureSkipVerify bool
}

// Transport submits messages over SMTP. Each Send opens its own connection.
type Transport struct {
	addr      string
	helo      string
	username  string
	password  string
	timeout   time.Duration
	tlsMode   string
	tlsConfig *tls.Config
}

// New creates a new Transport with the given configuration.
func New(cfg Config) (*Transport, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.TLS == "" {
		cfg.TLS = TLSNone
	}
	if cfg.Port == 0 {
		cfg.Port = 25
		if cfg.TLS == TLSImplicit {
			cfg.Port = 465
		}
	}
	if cfg.Client == "" {
		cfg.Client = "localhost"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	t := &Transport{
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		helo:     cfg.Client,
		username: cfg.Username,
		password: cfg.Password,
		timeout:  cfg.Timeout,
		tlsMode:  cfg.TLS,
	}

	switch cfg.TLS {
	case TLSNone:
	case TLSStartTLS, TLSImplicit:
		tlsConfig, err := mailtls.ClientConfig(cfg.Host, cfg.CAFile, cfg.InsecureSkipVerify)
		if err != nil {
			return nil, err
		}
		t.tlsConfig = tlsConfig
	default:
		return nil, fmt.Errorf("unknown tls mode %q", cfg.TLS)
	}
	return t, nil
}

// Send composes the message without a Bcc header and submits it to every
// To, Cc and Bcc recipient. The envelope sender is Return-Path when set,
// else From.
func (t *Transport) Send(ctx context.Context, msg *email.Message) (*transport.Result, error) {
	composed, err := msg.Compose(email.WireFields)
	if err != nil {
		return nil, err
	}
	from := msg.EnvelopeFrom()
	rcpts := msg.Recipients()
	if len(rcpts) == 0 {
		return nil, &email.Error{Msg: "no recipients"}
	}

	c, err := t.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	// unblock any pending command when the caller gives up
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	eightBit := msg.TransferEncoding() == "8bit"
	if err := t.submit(c, from, rcpts, composed.Bytes(), eightBit); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("smtp submission cancelled: %w", ctxErr)
		}
		return nil, err
	}

	slog.Debug("SMTP relay accepted message",
		"addr", t.addr,
		"recipients", len(rcpts),
	)
	return transport.NewResult(composed), nil
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "smtp"
}

func (t *Transport) dial(ctx context.Context) (*smtp.Client, error) {
	d := net.Dialer{Timeout: t.timeout}
	conn, err := d.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", t.addr, err)
	}
	if t.tlsMode == TLSImplicit {
		conn = tls.Client(conn, t.tlsConfig)
	}

	c := smtp.NewClient(conn)
	c.CommandTimeout = t.timeout
	c.SubmissionTimeout = t.timeout
	return c, nil
}

// saslClient picks PLAIN unless the server only offers LOGIN.
func (t *Transport) saslClient(mechs string) sasl.Client {
	offered := strings.Fields(strings.ToUpper(mechs))
	if !slices.Contains(offered, sasl.Plain) && slices.Contains(offered, sasl.Login) {
		return sasl.NewLoginClient(t.username, t.password)
	}
	return sasl.NewPlainClient("", t.username, t.password)
}

func (t *Transport) submit(c *smtp.Client, from string, rcpts []string, data []byte, eightBit bool) error {
	if err := c.Hello(t.helo); err != nil {
		return fmt.Errorf("failed to greet server: %w", err)
	}

	if t.tlsMode == TLSStartTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return errors.New("server does not support STARTTLS")
		}
		if err := c.StartTLS(t.tlsConfig); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	if t.username != "" {
		ok, mechs := c.Extension("AUTH")
		if !ok {
			return errors.New("server does not support AUTH")
		}
		if err := c.Auth(t.saslClient(mechs)); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	var opts *smtp.MailOptions
	if ok, _ := c.Extension("8BITMIME"); ok && eightBit {
		opts = &smtp.MailOptions{Body: smtp.Body8BitMIME}
	}
	if err := c.Mail(from, opts); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, rcpt := range rcpts {
		if err := c.Rcpt(rcpt, nil); err != nil {
			return fmt.Errorf("failed to add recipient %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish data: %w", err)
	}

	// the message is accepted at this point
	if err := c.Quit(); err != nil {
		slog.Debug("SMTP QUIT failed", "error", err)
	}
	return nil
}
