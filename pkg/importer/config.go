// Copyright 2024-2026 Aiku AI

package importer

import (
	"fmt"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

// Limits holds the destination-defined size and count ceilings. They
// are configuration, not assumptions: Discord's current values are the
// defaults but the core never hard-codes them.
type Limits struct {
	// MaxMessageChars caps a plain text message body.
	MaxMessageChars int `yaml:"max_message_chars"`
	// MaxEmbedChars caps one rich-text fragment (embed description).
	MaxEmbedChars int `yaml:"max_embed_chars"`
	// MaxEmbedsPerPayload caps rich-text blocks in one send.
	MaxEmbedsPerPayload int `yaml:"max_embeds_per_payload"`
	// MaxTotalEmbedChars caps the combined embed characters in one send.
	MaxTotalEmbedChars int `yaml:"max_total_embed_chars"`
	// MaxPayloadsPerMessage caps spillover sends for one source message
	// before the message is declared unrepresentable.
	MaxPayloadsPerMessage int `yaml:"max_payloads_per_message"`
	// MaxAttachmentBytes caps one attachment transfer.
	MaxAttachmentBytes int64 `yaml:"max_attachment_bytes"`
}

// DefaultLimits are Discord's documented limits.
// https://discord.com/developers/docs/resources/channel#embed-object-embed-limits
func DefaultLimits() Limits {
	return Limits{
		MaxMessageChars:       2000,
		MaxEmbedChars:         4096,
		MaxEmbedsPerPayload:   10,
		MaxTotalEmbedChars:    6000,
		MaxPayloadsPerMessage: 8,
		MaxAttachmentBytes:    25 * 1024 * 1024,
	}
}

// Config holds the importer configuration.
type Config struct {
	// GuildID is the destination Discord server.
	GuildID string `yaml:"guild_id"`
	// HeaderTemplate renders the per-message header line. Fields:
	// {{.Timestamp}} and {{.Username}}.
	HeaderTemplate string `yaml:"header_template"`
	// AllowBroadcast controls @everyone/@here rendering: "auto" asks
	// the destination directory for broadcast permission, "never"
	// always degrades to the literal word.
	AllowBroadcast string `yaml:"allow_broadcast"`
	// UserMap maps Slack user IDs to Discord usernames for accounts
	// whose names differ between the platforms.
	UserMap map[string]string `yaml:"user_map"`
	// CreateChannels makes missing destination channels instead of
	// failing the channel's import.
	CreateChannels bool `yaml:"create_channels"`
	// SendRetries bounds resends of a single transiently failed payload.
	SendRetries int `yaml:"send_retries"`
	// Throttle is the pause between sends on top of the transport's own
	// rate limit handling.
	Throttle time.Duration `yaml:"throttle"`

	Limits Limits `yaml:"limits"`

	headerTemplate *template.Template `yaml:"-"`
}

// HeaderParams holds the parameters for rendering the header template.
type HeaderParams struct {
	Timestamp string
	Username  string
}

const defaultHeaderTemplate = "*{{.Timestamp}}* **{{.Username}}**: "

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// PostProcess fills defaults and compiles the header template. It must
// be called once after the config is decoded.
func (c *Config) PostProcess() error {
	if c.HeaderTemplate == "" {
		c.HeaderTemplate = defaultHeaderTemplate
	}
	if c.AllowBroadcast == "" {
		c.AllowBroadcast = "never"
	}
	if c.AllowBroadcast != "auto" && c.AllowBroadcast != "never" {
		return fmt.Errorf("allow_broadcast must be \"auto\" or \"never\", got %q", c.AllowBroadcast)
	}
	if c.SendRetries == 0 {
		c.SendRetries = 3
	}
	if c.Throttle == 0 {
		c.Throttle = 100 * time.Millisecond
	}
	def := DefaultLimits()
	if c.Limits.MaxMessageChars == 0 {
		c.Limits.MaxMessageChars = def.MaxMessageChars
	}
	if c.Limits.MaxEmbedChars == 0 {
		c.Limits.MaxEmbedChars = def.MaxEmbedChars
	}
	if c.Limits.MaxEmbedsPerPayload == 0 {
		c.Limits.MaxEmbedsPerPayload = def.MaxEmbedsPerPayload
	}
	if c.Limits.MaxTotalEmbedChars == 0 {
		c.Limits.MaxTotalEmbedChars = def.MaxTotalEmbedChars
	}
	if c.Limits.MaxPayloadsPerMessage == 0 {
		c.Limits.MaxPayloadsPerMessage = def.MaxPayloadsPerMessage
	}
	if c.Limits.MaxAttachmentBytes == 0 {
		c.Limits.MaxAttachmentBytes = def.MaxAttachmentBytes
	}

	var err error
	c.headerTemplate, err = template.New("header").Parse(c.HeaderTemplate)
	if err != nil {
		return fmt.Errorf("invalid header_template: %w", err)
	}
	return nil
}

// FormatHeader renders the message header line from the template.
func (c *Config) FormatHeader(params HeaderParams) string {
	if c.headerTemplate == nil {
		return fmt.Sprintf("*%s* **%s**: ", params.Timestamp, params.Username)
	}
	var buf []byte
	if err := c.headerTemplate.Execute((*templateBuffer)(&buf), params); err != nil {
		return fmt.Sprintf("*%s* **%s**: ", params.Timestamp, params.Username)
	}
	return string(buf)
}

// templateBuffer is a simple io.Writer that appends to a byte slice.
type templateBuffer []byte

func (b *templateBuffer) Write(p []byte) (int, error) {
	*b = append(*b, p...)
	return len(p), nil
}
