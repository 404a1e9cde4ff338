package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shineum/mailkit/internal/config"
	"github.com/shineum/mailkit/internal/email"
	"github.com/shineum/mailkit/internal/view"
)

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"loud", slog.LevelInfo},
	}
	for _, tt := range tests {
		logger := setupLogger(io.Discard, tt.level)
		ctx := context.Background()
		if !logger.Enabled(ctx, tt.want) {
			t.Errorf("level %q: %v should be enabled", tt.level, tt.want)
		}
		if tt.want > slog.LevelDebug && logger.Enabled(ctx, tt.want-1) {
			t.Errorf("level %q: below %v should be disabled", tt.level, tt.want)
		}
	}
}

func TestBuildRegistry(t *testing.T) {
	cfg := &config.Config{
		Transports: map[string]config.TransportConfig{
			"debug": {Type: config.TypeDebug},
			"relay": {Type: config.TypeSMTP, SMTP: config.SMTPConfig{Host: "mail.example.com", Port: 587, TLS: "none"}},
			"m365": {Type: config.TypeGraph, Graph: config.GraphConfig{
				TenantID: "tenant", ClientID: "client", ClientSecret: "secret", Sender: "app@example.com",
			}},
		},
	}

	reg, err := buildRegistry(context.Background(), cfg, io.Discard)
	if err != nil {
		t.Fatalf("buildRegistry: %v", err)
	}
	if got := strings.Join(reg.Names(), ","); got != "debug,m365,relay" {
		t.Errorf("Names: got %q", got)
	}
	for name, want := range map[string]string{"debug": "debug", "relay": "smtp", "m365": "graph"} {
		tr, err := reg.Get(name)
		if err != nil {
			t.Fatalf("Get(%q): %v", name, err)
		}
		if tr.Name() != want {
			t.Errorf("%s: got transport %q, want %q", name, tr.Name(), want)
		}
	}
}

func TestBuildRegistry_Errors(t *testing.T) {
	cfg := &config.Config{
		Transports: map[string]config.TransportConfig{
			"relay": {Type: config.TypeSMTP, SMTP: config.SMTPConfig{Host: "localhost", TLS: "ssl3"}},
		},
	}
	if _, err := buildRegistry(context.Background(), cfg, io.Discard); err == nil || !strings.Contains(err.Error(), "relay") {
		t.Errorf("got %v, want error naming the transport", err)
	}

	cfg = &config.Config{Transports: map[string]config.TransportConfig{"x": {Type: "fax"}}}
	if _, err := buildRegistry(context.Background(), cfg, io.Discard); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestParseAddress(t *testing.T) {
	t.Parallel()

	a, err := parseAddress(`"Ann Lee" <ann@example.com>`)
	if err != nil {
		t.Fatalf("parseAddress: %v", err)
	}
	if a != (email.Address{Email: "ann@example.com", Name: "Ann Lee"}) {
		t.Errorf("got %+v", a)
	}
	if a, _ := parseAddress("bob@example.com"); a.Email != "bob@example.com" || a.Name != "" {
		t.Errorf("bare address: got %+v", a)
	}
	if _, err := parseAddress("not an address"); err == nil {
		t.Error("expected error")
	}
}

func TestNewRenderer(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "email", "text"), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	tmpl := `{{upper .name}} {{date "2006" (now)}}`
	if err := os.WriteFile(filepath.Join(dir, "email", "text", "hi.tmpl"), []byte(tmpl), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r := newRenderer(dir)
	if got := strings.Join(r.Helpers(), ","); got != "text,time" {
		t.Errorf("Helpers: got %q", got)
	}

	got, err := r.Render(context.Background(), view.Request{
		Template: "hi",
		Text:     true,
		Helpers:  []string{"text", "time"},
		Vars:     map[string]any{"name": "ann"},
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.HasPrefix(got.Text, "ANN ") || len(got.Text) != len("ANN 2006") {
		t.Errorf("Text: got %q", got.Text)
	}
}

// writeConfig writes a YAML config with a debug default profile.
func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mailkit.yaml")
	data := `
logging:
  level: error
transports:
  debug:
    type: debug
profiles:
  default:
    transport: debug
    from:
      email: app@example.com
      name: App
    headers:
      X-Campaign: cli
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, stdin io.Reader, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestSendCommand(t *testing.T) {
	cfgPath := writeConfig(t)
	body := filepath.Join(t.TempDir(), "body.txt")
	if err := os.WriteFile(body, []byte("Line one\nLine two"), 0644); err != nil {
		t.Fatalf("failed to write body: %v", err)
	}

	out, errOut, err := execute(t, nil, "--config", cfgPath, "send",
		"--to", "Ann <ann@example.com>",
		"--bcc", "audit@example.com",
		"--subject", "From the CLI",
		"--body-file", body,
	)
	if err != nil {
		t.Fatalf("send: %v (stderr %q)", err, errOut)
	}

	for _, want := range []string{
		"From: App <app@example.com>",
		"To: Ann <ann@example.com>",
		"X-Campaign: cli",
		"Subject: From the CLI",
		"Line one\r\nLine two",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "audit@example.com") {
		t.Error("debug output must not include Bcc")
	}
	if !strings.Contains(errOut, "sent via debug") {
		t.Errorf("status line: got %q", errOut)
	}
}

func TestInspectCommand(t *testing.T) {
	m := email.New()
	_ = m.SetFrom("app@example.com", "App")
	_ = m.SetTo(email.Address{Email: "you@example.com"})
	_ = m.SetSubject("Inspect me")
	_ = m.SetAttachments(email.Attachment{Name: "logo.png", MimeType: "image/png", Data: []byte("png"), ContentID: "logo"})
	if err := m.SetContent(email.Content{Text: "Hello"}); err != nil {
		t.Fatalf("SetContent: %v", err)
	}
	composed, err := m.Compose(email.AllFields)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	out, _, err := execute(t, bytes.NewReader(composed.Bytes()), "inspect", "--headers")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, want := range []string{
		"Inspect me",
		"you@example.com",
		"multipart/mixed[multipart/related[text/plain,image/png]]",
		"logo.png (image/png, 3 bytes)",
		"X-Mailer:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
