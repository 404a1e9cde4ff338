// Package ses implements a Transport that delivers raw MIME messages via
// AWS SES v2.
package ses

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/shineum/mailkit/internal/email"
	"github.com/shineum/mailkit/internal/transport"
)

// maxRetries is the maximum number of retry attempts for transient failures.
const maxRetries = 3

// baseRetryDelay is the initial delay for exponential backoff.
const baseRetryDelay = 1 * time.Second

// Config holds the configuration for creating a Transport.
type Config struct {
	Region           string
	AccessKeyID      string
	SecretAccessKey  string
	ConfigurationSet string
}

// Transport sends messages via the AWS SES v2 API.
type Transport struct {
	client           SendEmailAPI
	configurationSet string
	baseDelay        time.Duration
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
// Used for testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// New creates a new Transport with the given configuration. Static
// credentials are used when both keys are set, else the default AWS
// credential chain.
func New(ctx context.Context, cfg Config) (*Transport, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	t := NewWithClient(sesv2.NewFromConfig(awsCfg))
	t.configurationSet = cfg.ConfigurationSet
	return t, nil
}

// NewWithClient creates a Transport with a custom client, used for testing.
func NewWithClient(client SendEmailAPI) *Transport {
	return &Transport{
		client:    client,
		baseDelay: baseRetryDelay,
	}
}

// Send composes the message without a Bcc header and submits it as a raw
// message. Every To, Cc and Bcc address is passed as an explicit
// destination so blind copies are still delivered.
func (t *Transport) Send(ctx context.Context, msg *email.Message) (*transport.Result, error) {
	composed, err := msg.Compose(email.WireFields)
	if err != nil {
		return nil, err
	}
	input := t.buildInput(msg, composed)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying SES API request",
				"attempt", attempt,
				"max_retries", maxRetries,
			)
			if err := sleepWithContext(ctx, t.backoffDelay(attempt)); err != nil {
				return nil, fmt.Errorf("context cancelled during retry wait: %w", err)
			}
		}

		out, err := t.client.SendEmail(ctx, input)
		if err == nil {
			slog.Debug("SES accepted message", "message_id", aws.ToString(out.MessageId))
			return transport.NewResult(composed), nil
		}

		lastErr = err
		slog.Warn("SES API error",
			"attempt", attempt,
			"error", err,
		)
	}

	return nil, fmt.Errorf("SES API request failed after %d retries: %w", maxRetries, lastErr)
}

// Name returns the transport name.
func (t *Transport) Name() string {
	return "ses"
}

func (t *Transport) buildInput(msg *email.Message, composed *email.Composed) *sesv2.SendEmailInput {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.EnvelopeFrom()),
		Destination: &types.Destination{
			ToAddresses:  emails(msg.To()),
			CcAddresses:  emails(msg.Cc()),
			BccAddresses: emails(msg.Bcc()),
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{
				Data: composed.Bytes(),
			},
		},
	}
	if t.configurationSet != "" {
		input.ConfigurationSetName = aws.String(t.configurationSet)
	}
	return input
}

func emails(list []email.Address) []string {
	if len(list) == 0 {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Email)
	}
	return out
}

// backoffDelay returns the exponential backoff delay for the given attempt number.
func (t *Transport) backoffDelay(attempt int) time.Duration {
	delay := t.baseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// sleepWithContext waits for the specified duration or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
