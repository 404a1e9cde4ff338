// Package main is the entry point for the mailkit command line tool.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shineum/mailkit/internal/config"
	"github.com/shineum/mailkit/internal/transport"
	"github.com/shineum/mailkit/internal/transport/debug"
	"github.com/shineum/mailkit/internal/transport/graph"
	"github.com/shineum/mailkit/internal/transport/ses"
	"github.com/shineum/mailkit/internal/transport/smtp"
	"github.com/shineum/mailkit/internal/view"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "mailkit",
	Short: "Compose and send MIME email",
	Long: `mailkit composes RFC 5322 messages from configuration profiles and
templates and delivers them through SMTP, AWS SES, Microsoft Graph or the
debug transport.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML configuration file (optional)")
}

func main() {
	// Cancel in-flight deliveries on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(w io.Writer, level string) *slog.Logger {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// buildRegistry creates every configured transport under its configured
// name. The debug transport writes to out.
func buildRegistry(ctx context.Context, cfg *config.Config, out io.Writer) (*transport.Registry, error) {
	names := make([]string, 0, len(cfg.Transports))
	for name := range cfg.Transports {
		names = append(names, name)
	}
	sort.Strings(names)

	reg := transport.NewRegistry()
	for _, name := range names {
		tc := cfg.Transports[name]
		var t transport.Transport

		switch tc.Type {
		case config.TypeDebug:
			t = debug.NewWithWriter(out)

		case config.TypeSMTP:
			s, err := smtp.New(smtp.Config{
				Host:               tc.SMTP.Host,
				Port:               tc.SMTP.Port,
				Username:           tc.SMTP.Username,
				Password:           tc.SMTP.Password,
				Client:             tc.SMTP.Client,
				Timeout:            tc.SMTP.Timeout,
				TLS:                tc.SMTP.TLS,
				CAFile:             tc.SMTP.CAFile,
				InsecureSkipVerify: tc.SMTP.InsecureSkipVerify,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to create transport %q: %w", name, err)
			}
			t = s

		case config.TypeSES:
			s, err := ses.New(ctx, ses.Config{
				Region:           tc.SES.Region,
				AccessKeyID:      tc.SES.AccessKeyID,
				SecretAccessKey:  tc.SES.SecretAccessKey,
				ConfigurationSet: tc.SES.ConfigurationSet,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to create transport %q: %w", name, err)
			}
			t = s

		case config.TypeGraph:
			t = graph.New(graph.Config{
				TenantID:     tc.Graph.TenantID,
				ClientID:     tc.Graph.ClientID,
				ClientSecret: tc.Graph.ClientSecret,
				Sender:       tc.Graph.Sender,
			})

		default:
			return nil, fmt.Errorf("transport %q: unknown type %q", name, tc.Type)
		}

		slog.Debug("registered transport", "name", name, "type", tc.Type)
		reg.Register(name, t)
	}
	return reg, nil
}

// newRenderer creates a template renderer over dir with the built-in
// helper sets registered.
func newRenderer(dir string) *view.Renderer {
	r := view.New(os.DirFS(dir))
	r.RegisterHelper("text", map[string]any{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"join":  strings.Join,
		"trim":  strings.TrimSpace,
	})
	r.RegisterHelper("time", map[string]any{
		"now": time.Now,
		"date": func(layout string, t time.Time) string {
			return t.Format(layout)
		},
	})
	return r
}
