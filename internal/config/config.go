// Package config provides YAML configuration loading with environment
// variable overrides for transports, message profiles and logging.
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport types understood by the transport factory.
const (
	TypeDebug = "debug"
	TypeSMTP  = "smtp"
	TypeSES   = "ses"
	TypeGraph = "graph"
)

// defaultSMTPTimeout bounds dialing and each SMTP command.
const defaultSMTPTimeout = 30 * time.Second

// Config holds the complete application configuration.
type Config struct {
	Logging        LoggingConfig              `yaml:"logging"`
	Transport      string                     `yaml:"transport"`
	Transports     map[string]TransportConfig `yaml:"transports"`
	DefaultProfile string                     `yaml:"default_profile"`
	Profiles       map[string]Profile         `yaml:"profiles"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// TransportConfig describes one named transport.
type TransportConfig struct {
	Type  string      `yaml:"type"`
	SMTP  SMTPConfig  `yaml:"smtp"`
	SES   SESConfig   `yaml:"ses"`
	Graph GraphConfig `yaml:"graph"`
}

// SMTPConfig holds SMTP submission settings.
type SMTPConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Client   string        `yaml:"client"`
	Timeout  time.Duration `yaml:"timeout"`

	// TLS is one of "none", "starttls" or "implicit".
	TLS                string `yaml:"tls"`
	CAFile             string `yaml:"ca_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// SESConfig holds AWS SES v2 settings.
type SESConfig struct {
	Region           string `yaml:"region"`
	AccessKeyID      string `yaml:"access_key_id"`
	SecretAccessKey  string `yaml:"secret_access_key"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// GraphConfig holds Microsoft Graph API settings.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Sender       string `yaml:"sender"`
}

// Address is a mailbox in configuration. It accepts either a bare
// "user@example.com" scalar or an {email, name} mapping.
type Address struct {
	Email string `yaml:"email"`
	Name  string `yaml:"name"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Address) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		a.Email = value.Value
		return nil
	}
	type plain Address
	return value.Decode((*plain)(a))
}

// AttachmentConfig is a file attached to every message of a profile.
type AttachmentConfig struct {
	Name          string `yaml:"name"`
	File          string `yaml:"file"`
	MimeType      string `yaml:"mimetype"`
	ContentID     string `yaml:"content_id"`
	NoDisposition bool   `yaml:"no_disposition"`
}

// LogConfig enables delivery logging for a profile.
type LogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	Scope   string `yaml:"scope"`
}

// Profile is a named set of message defaults.
type Profile struct {
	Transport        string             `yaml:"transport"`
	From             *Address           `yaml:"from"`
	Sender           *Address           `yaml:"sender"`
	ReplyTo          []Address          `yaml:"reply_to"`
	ReadReceipt      *Address           `yaml:"read_receipt"`
	ReturnPath       *Address           `yaml:"return_path"`
	To               []Address          `yaml:"to"`
	Cc               []Address          `yaml:"cc"`
	Bcc              []Address          `yaml:"bcc"`
	Subject          string             `yaml:"subject"`
	Headers          map[string]string  `yaml:"headers"`
	Format           string             `yaml:"format"`
	Charset          string             `yaml:"charset"`
	HeaderCharset    string             `yaml:"header_charset"`
	TransferEncoding string             `yaml:"transfer_encoding"`
	LineLength       int                `yaml:"line_length"`
	Template         string             `yaml:"template"`
	Layout           string             `yaml:"layout"`
	Theme            string             `yaml:"theme"`
	Helpers          []string           `yaml:"helpers"`
	ViewVars         map[string]any     `yaml:"view_vars"`
	Attachments      []AttachmentConfig `yaml:"attachments"`
	Domain           string             `yaml:"domain"`
	MessageID        string             `yaml:"message_id"`
	DisableMessageID bool               `yaml:"disable_message_id"`
	EmailPattern     *string            `yaml:"email_pattern"`
	Log              LogConfig          `yaml:"log"`
}

// HeaderNames returns the profile's custom header names in sorted order.
func (p Profile) HeaderNames() []string {
	names := make([]string, 0, len(p.Headers))
	for name := range p.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load loads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	cfg.applyTransportDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()
	cfg.applyTransportDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Profile returns the named profile, or the default profile when name is
// empty. A missing default profile yields an empty one.
func (c *Config) Profile(name string) (Profile, error) {
	if name == "" {
		name = c.DefaultProfile
	}
	p, ok := c.Profiles[name]
	if !ok {
		if name == c.DefaultProfile {
			return Profile{}, nil
		}
		return Profile{}, fmt.Errorf("unknown profile %q", name)
	}
	return p, nil
}

// Validate checks transport types and the references between profiles and
// transports.
func (c *Config) Validate() error {
	for name, t := range c.Transports {
		switch t.Type {
		case TypeDebug:
		case TypeSMTP:
			if t.SMTP.Host == "" {
				return fmt.Errorf("transport %q: smtp host is required", name)
			}
			switch t.SMTP.TLS {
			case "", "none", "starttls", "implicit":
			default:
				return fmt.Errorf("transport %q: unknown tls mode %q", name, t.SMTP.TLS)
			}
		case TypeSES:
			if t.SES.Region == "" {
				return fmt.Errorf("transport %q: ses region is required", name)
			}
		case TypeGraph:
			g := t.Graph
			if g.TenantID == "" || g.ClientID == "" || g.ClientSecret == "" || g.Sender == "" {
				return fmt.Errorf("transport %q: graph tenant_id, client_id, client_secret and sender are required", name)
			}
		default:
			return fmt.Errorf("transport %q: unknown type %q", name, t.Type)
		}
	}

	if c.Transport != "" {
		if _, ok := c.Transports[c.Transport]; !ok {
			return fmt.Errorf("default transport %q is not configured", c.Transport)
		}
	}
	for name, p := range c.Profiles {
		if p.Transport == "" {
			continue
		}
		if _, ok := c.Transports[p.Transport]; !ok {
			return fmt.Errorf("profile %q: transport %q is not configured", name, p.Transport)
		}
	}
	return nil
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Logging.Level = "info"
	c.DefaultProfile = "default"
	c.Transports = map[string]TransportConfig{
		TypeDebug: {Type: TypeDebug},
	}
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("MAILKIT_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("MAILKIT_PROFILE"); v != "" {
		c.DefaultProfile = v
	}
	if v := os.Getenv("MAILKIT_TRANSPORT"); v != "" {
		c.Transport = v
	}

	if c.Transports == nil {
		c.Transports = make(map[string]TransportConfig)
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		t := c.transportOfType(TypeSMTP)
		t.SMTP.Host = v
		c.Transports[TypeSMTP] = t
	}
	if t, ok := c.Transports[TypeSMTP]; ok && t.Type == TypeSMTP {
		if v := os.Getenv("SMTP_PORT"); v != "" {
			if port, err := strconv.Atoi(v); err == nil {
				t.SMTP.Port = port
			}
		}
		if v := os.Getenv("SMTP_USERNAME"); v != "" {
			t.SMTP.Username = v
		}
		if v := os.Getenv("SMTP_PASSWORD"); v != "" {
			t.SMTP.Password = v
		}
		if v := os.Getenv("SMTP_TLS"); v != "" {
			t.SMTP.TLS = strings.ToLower(v)
		}
		c.Transports[TypeSMTP] = t
	}

	if v := os.Getenv("SES_REGION"); v != "" {
		t := c.transportOfType(TypeSES)
		t.SES.Region = v
		c.Transports[TypeSES] = t
	}
	if t, ok := c.Transports[TypeSES]; ok && t.Type == TypeSES {
		if v := os.Getenv("SES_ACCESS_KEY_ID"); v != "" {
			t.SES.AccessKeyID = v
		}
		if v := os.Getenv("SES_SECRET_ACCESS_KEY"); v != "" {
			t.SES.SecretAccessKey = v
		}
		c.Transports[TypeSES] = t
	}

	if v := os.Getenv("GRAPH_TENANT_ID"); v != "" {
		t := c.transportOfType(TypeGraph)
		t.Graph.TenantID = v
		c.Transports[TypeGraph] = t
	}
	if t, ok := c.Transports[TypeGraph]; ok && t.Type == TypeGraph {
		if v := os.Getenv("GRAPH_CLIENT_ID"); v != "" {
			t.Graph.ClientID = v
		}
		if v := os.Getenv("GRAPH_CLIENT_SECRET"); v != "" {
			t.Graph.ClientSecret = v
		}
		if v := os.Getenv("GRAPH_SENDER"); v != "" {
			t.Graph.Sender = v
		}
		c.Transports[TypeGraph] = t
	}
}

// applyTransportDefaults fills in per-type defaults left unset by YAML and
// the environment.
func (c *Config) applyTransportDefaults() {
	for name, t := range c.Transports {
		if t.Type != TypeSMTP {
			continue
		}
		if t.SMTP.Port == 0 {
			t.SMTP.Port = 25
		}
		if t.SMTP.Timeout == 0 {
			t.SMTP.Timeout = defaultSMTPTimeout
		}
		if t.SMTP.TLS == "" {
			t.SMTP.TLS = "none"
		}
		c.Transports[name] = t
	}
}

// transportOfType returns the transport registered under the type's own
// name, creating it when absent.
func (c *Config) transportOfType(typ string) TransportConfig {
	t, ok := c.Transports[typ]
	if !ok {
		t = TransportConfig{Type: typ}
	}
	return t
}
