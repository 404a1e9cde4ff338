package main

import (
	"fmt"
	"os"

	"github.com/emersion/go-message/mail"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/shineum/mailkit/internal/email"
	"github.com/shineum/mailkit/internal/mailer"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Compose and send a message",
	Long: `Compose a message from a configuration profile, override any field from
the command line and deliver it through the profile's transport.

Examples:
  mailkit send --to you@example.com --subject Hi --text "Hello"
  mailkit send --profile billing --to "Ann <ann@example.com>" --template invoice --var total=42
  mailkit send --to you@example.com --body-file notes.txt --attach report.pdf --transport debug`,
	RunE: runSend,
}

func init() {
	f := sendCmd.Flags()
	f.String("profile", "", "configuration profile (defaults to default_profile)")
	f.String("transport", "", "transport name, overriding the profile")
	f.String("from", "", "From address, e.g. \"App <app@example.com>\"")
	f.StringSlice("to", nil, "To addresses")
	f.StringSlice("cc", nil, "Cc addresses")
	f.StringSlice("bcc", nil, "Bcc addresses")
	f.String("subject", "", "message subject")
	f.String("format", "", "text, html or both")
	f.String("charset", "", "body charset, e.g. iso-2022-jp")
	f.String("text", "", "text body")
	f.String("html", "", "html body")
	f.String("body-file", "", "read the body from a file")
	f.StringSlice("attach", nil, "files to attach")
	f.String("templates", "", "template directory")
	f.String("template", "", "template name")
	f.String("layout", "", "layout name")
	f.String("theme", "", "theme name")
	f.StringToString("var", nil, "template variables as key=value")

	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	f := cmd.Flags()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := setupLogger(cmd.ErrOrStderr(), cfg.Logging.Level)

	reg, err := buildRegistry(ctx, cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	profileName, _ := f.GetString("profile")
	profile, err := cfg.Profile(profileName)
	if err != nil {
		return err
	}
	if profile.Transport == "" && cfg.Transport != "" {
		profile.Transport = cfg.Transport
	}

	msg := email.New()
	if err := msg.Apply(profile); err != nil {
		return fmt.Errorf("failed to apply profile: %w", err)
	}
	if err := applyFlags(cmd, msg); err != nil {
		return err
	}
	content, err := bodyContent(cmd)
	if err != nil {
		return err
	}

	opts := []mailer.Option{mailer.WithLogger(logger)}
	if dir, _ := f.GetString("templates"); dir != "" {
		opts = append(opts, mailer.WithRenderer(newRenderer(dir)))
	}
	res, err := mailer.New(reg, opts...).Send(ctx, msg, content)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", color.RedString("✗"), err)
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(cmd.ErrOrStderr(), "%s sent via %s (%d header bytes, %d body bytes)\n",
		green("✓"), msg.Transport(), len(res.Headers), len(res.Message))
	return nil
}

// applyFlags copies the command line overrides onto msg.
func applyFlags(cmd *cobra.Command, msg *email.Message) error {
	f := cmd.Flags()

	if v, _ := f.GetString("transport"); v != "" {
		msg.SetTransport(v)
	}
	if v, _ := f.GetString("charset"); v != "" {
		if err := msg.SetCharset(v); err != nil {
			return err
		}
	}
	if v, _ := f.GetString("from"); v != "" {
		a, err := parseAddress(v)
		if err != nil {
			return err
		}
		if err := msg.SetFrom(a.Email, a.Name); err != nil {
			return err
		}
	}

	lists := []struct {
		flag string
		set  func(...email.Address) error
	}{
		{"to", msg.SetTo},
		{"cc", msg.SetCc},
		{"bcc", msg.SetBcc},
	}
	for _, l := range lists {
		raw, _ := f.GetStringSlice(l.flag)
		if len(raw) == 0 {
			continue
		}
		addrs := make([]email.Address, 0, len(raw))
		for _, r := range raw {
			a, err := parseAddress(r)
			if err != nil {
				return err
			}
			addrs = append(addrs, a)
		}
		if err := l.set(addrs...); err != nil {
			return err
		}
	}

	if v, _ := f.GetString("subject"); v != "" {
		if err := msg.SetSubject(v); err != nil {
			return err
		}
	}
	if v, _ := f.GetString("format"); v != "" {
		format, err := email.ParseFormat(v)
		if err != nil {
			return err
		}
		if err := msg.SetFormat(format); err != nil {
			return err
		}
	}

	if files, _ := f.GetStringSlice("attach"); len(files) > 0 {
		atts := make([]email.Attachment, 0, len(files))
		for _, file := range files {
			atts = append(atts, email.Attachment{File: file})
		}
		if err := msg.AddAttachments(atts...); err != nil {
			return err
		}
	}

	if v, _ := f.GetString("template"); v != "" {
		layout, _ := f.GetString("layout")
		msg.SetTemplate(v, layout)
	}
	if v, _ := f.GetString("theme"); v != "" {
		msg.SetTheme(v)
	}
	if vars, _ := f.GetStringToString("var"); len(vars) > 0 {
		m := make(map[string]any, len(vars))
		for k, v := range vars {
			m[k] = v
		}
		msg.SetViewVars(m)
	}
	return nil
}

// bodyContent builds the body from --text, --html and --body-file. A body
// file fills whichever of text and html was not given.
func bodyContent(cmd *cobra.Command) (email.Content, error) {
	f := cmd.Flags()
	text, _ := f.GetString("text")
	html, _ := f.GetString("html")

	if path, _ := f.GetString("body-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return email.Content{}, fmt.Errorf("failed to read body file: %w", err)
		}
		if text == "" {
			text = string(data)
		}
		if html == "" {
			html = string(data)
		}
	}
	return email.Content{Text: text, HTML: html}, nil
}

// parseAddress accepts "user@example.com" or "Name <user@example.com>".
func parseAddress(s string) (email.Address, error) {
	a, err := mail.ParseAddress(s)
	if err != nil {
		return email.Address{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return email.Address{Email: a.Address, Name: a.Name}, nil
}
