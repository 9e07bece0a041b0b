// Copyright 2024-2026 Aiku AI

// Package discord delivers assembled payloads to a Discord guild over
// the REST API and answers identity lookups against it.
package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/aiku/slack2discord/pkg/importer"
)

// Transport sends payloads through a discordgo session. Only the REST
// surface is used; the gateway is never opened.
type Transport struct {
	session        *discordgo.Session
	guildID        string
	createChannels bool
	allowBroadcast bool

	channelsByName map[string]string
	log            zerolog.Logger
}

var _ importer.Transport = (*Transport)(nil)

// NewTransport creates a transport bound to one guild. createChannels
// makes EnsureChannel create missing text channels; allowBroadcast
// permits @everyone/@here to actually notify.
func NewTransport(session *discordgo.Session, guildID string, createChannels, allowBroadcast bool, log zerolog.Logger) *Transport {
	return &Transport{
		session:        session,
		guildID:        guildID,
		createChannels: createChannels,
		allowBroadcast: allowBroadcast,
		log:            log.With().Str("component", "discord").Logger(),
	}
}

// Send implements importer.Transport.
func (t *Transport) Send(ctx context.Context, channelID string, p *importer.Payload) (importer.DestMessageID, error) {
	msg, err := t.session.ChannelMessageSendComplex(channelID, t.buildSend(channelID, p), discordgo.WithContext(ctx))
	if err != nil {
		return "", classify(err)
	}
	return importer.DestMessageID(msg.ID), nil
}

// buildSend maps one payload onto the Discord message create call. The
// payload nonce stays off the wire: it identifies the constructed
// payload for the importer's retry loop, which always resends the same
// payload rather than relying on server-side deduplication.
func (t *Transport) buildSend(channelID string, p *importer.Payload) *discordgo.MessageSend {
	send := &discordgo.MessageSend{
		Content:         p.Text,
		AllowedMentions: t.allowedMentions(),
	}

	for _, f := range p.Fragments {
		send.Embeds = append(send.Embeds, &discordgo.MessageEmbed{
			Description: f.Markdown(),
		})
	}

	embedIdx := 0
	for _, up := range p.Uploads {
		send.Files = append(send.Files, &discordgo.File{
			Name:        up.Name,
			ContentType: up.ContentType,
			Reader:      bytes.NewReader(up.Data),
		})
		if !up.Inline {
			continue
		}
		// Inline images render inside the rich blocks, pointing at the
		// uploaded file rather than an external URL.
		if embedIdx >= len(send.Embeds) {
			send.Embeds = append(send.Embeds, &discordgo.MessageEmbed{Title: up.Title})
		}
		send.Embeds[embedIdx].Image = &discordgo.MessageEmbedImage{URL: "attachment://" + up.Name}
		embedIdx++
	}

	if p.ReplyTo != "" {
		send.Reference = &discordgo.MessageReference{
			MessageID: string(p.ReplyTo),
			ChannelID: channelID,
			GuildID:   t.guildID,
		}
	}
	return send
}

func (t *Transport) allowedMentions() *discordgo.MessageAllowedMentions {
	parse := []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers}
	if t.allowBroadcast {
		parse = append(parse, discordgo.AllowedMentionTypeEveryone)
	}
	return &discordgo.MessageAllowedMentions{Parse: parse}
}

// EnsureChannel implements importer.Transport. Channel names are cached
// after the first guild listing.
func (t *Transport) EnsureChannel(ctx context.Context, name string) (string, error) {
	if t.channelsByName == nil {
		channels, err := t.session.GuildChannels(t.guildID, discordgo.WithContext(ctx))
		if err != nil {
			return "", classify(err)
		}
		t.channelsByName = make(map[string]string, len(channels))
		for _, ch := range channels {
			if ch.Type == discordgo.ChannelTypeGuildText {
				t.channelsByName[ch.Name] = ch.ID
			}
		}
	}

	if id, ok := t.channelsByName[name]; ok {
		return id, nil
	}
	if !t.createChannels {
		return "", fmt.Errorf("destination has no channel %q and channel creation is disabled", name)
	}

	ch, err := t.session.GuildChannelCreate(t.guildID, name, discordgo.ChannelTypeGuildText, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify(err)
	}
	t.log.Info().Str("channel", name).Str("channel_id", ch.ID).Msg("Created destination channel")
	t.channelsByName[name] = ch.ID
	return ch.ID, nil
}

// classify wraps a discordgo error as a typed transport error so the
// run loop can decide between retry, skip and abort.
func classify(err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch code := restErr.Response.StatusCode; {
		case code == http.StatusTooManyRequests:
			return &importer.TransportError{Kind: importer.TransportRateLimited, Err: err}
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return &importer.TransportError{Kind: importer.TransportAuth, Err: err}
		case code >= 500:
			return &importer.TransportError{Kind: importer.TransportTransientNetwork, Err: err}
		default:
			return &importer.TransportError{Kind: importer.TransportPayloadRejected, Err: err}
		}
	}
	var rateErr *discordgo.RateLimitError
	if errors.As(err, &rateErr) {
		return &importer.TransportError{Kind: importer.TransportRateLimited, Err: err}
	}
	return &importer.TransportError{Kind: importer.TransportTransientNetwork, Err: err}
}
