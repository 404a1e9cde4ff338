package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/shineum/mailkit/internal/parser"
)

// previewLines bounds how much of each body inspect prints.
const previewLines = 10

var inspectCmd = &cobra.Command{
	Use:   "inspect [file]",
	Short: "Show the headers and MIME structure of a message",
	Long: `Parse an RFC 5322 message (.eml) and print its addresses, subject,
MIME tree, body previews and attachments. Reads standard input when no
file or "-" is given.

Examples:
  mailkit inspect message.eml
  mailkit inspect - < message.eml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().Bool("headers", false, "print every header field")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	var (
		raw []byte
		err error
	)
	if len(args) == 0 || args[0] == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read message: %w", err)
	}

	msg, err := parser.Parse(raw)
	if err != nil {
		return err
	}

	showHeaders, _ := cmd.Flags().GetBool("headers")
	printMessage(cmd.OutOrStdout(), msg, showHeaders)
	return nil
}

func printMessage(w io.Writer, msg *parser.Message, showHeaders bool) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(w, "%s %s\n", cyan("Subject:"), msg.Subject)
	for _, f := range []struct {
		label string
		list  []string
	}{
		{"From:", msg.From},
		{"To:", msg.To},
		{"Cc:", msg.Cc},
		{"Bcc:", msg.Bcc},
	} {
		if len(f.list) > 0 {
			fmt.Fprintf(w, "%s %s\n", cyan(f.label), strings.Join(f.list, ", "))
		}
	}
	if msg.MessageID != "" {
		fmt.Fprintf(w, "%s %s\n", cyan("Message-ID:"), msg.MessageID)
	}
	fmt.Fprintf(w, "%s %s\n", cyan("Structure:"), msg.Structure)

	if showHeaders {
		fmt.Fprintf(w, "\n%s\n", cyan("Headers"))
		keys := make([]string, 0, len(msg.Header))
		for key := range msg.Header {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			for _, v := range msg.Header[key] {
				fmt.Fprintf(w, "  %s %s\n", gray(key+":"), v)
			}
		}
	}

	for _, body := range []struct {
		label string
		text  string
	}{
		{"Text body", msg.TextBody},
		{"HTML body", msg.HTMLBody},
	} {
		if body.text == "" {
			continue
		}
		fmt.Fprintf(w, "\n%s\n", cyan(body.label))
		lines := strings.Split(strings.ReplaceAll(body.text, "\r\n", "\n"), "\n")
		if len(lines) > previewLines {
			lines = append(lines[:previewLines], gray(fmt.Sprintf("... %d more lines", len(lines)-previewLines)))
		}
		for _, l := range lines {
			fmt.Fprintf(w, "  %s\n", l)
		}
	}

	if len(msg.Attachments) > 0 {
		fmt.Fprintf(w, "\n%s\n", cyan("Attachments"))
		for _, a := range msg.Attachments {
			kind := "attachment"
			if a.Inline {
				kind = yellow("inline cid:" + a.ContentID)
			}
			fmt.Fprintf(w, "  %s (%s, %d bytes) %s\n", a.Filename, a.ContentType, len(a.Content), kind)
		}
	}
}
