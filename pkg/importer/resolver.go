// Copyright 2024-2026 Aiku AI

package importer

import (
	"context"

	"github.com/rs/zerolog"
)

// Directory looks up destination identities for source identifiers.
// Implementations are expected to be cheap to call repeatedly; the
// Resolver caches results for the lifetime of one run anyway.
type Directory interface {
	// LookupUser returns the Discord user ID mapped to a Slack user ID.
	LookupUser(ctx context.Context, sourceUserID string) (string, bool)
	// LookupChannel returns the Discord channel ID mapped to a Slack
	// channel ID.
	LookupChannel(ctx context.Context, sourceChannelID string) (string, bool)
	// CanBroadcast reports whether the importer is permitted to emit
	// live @everyone/@here mentions.
	CanBroadcast(ctx context.Context) bool
}

// SourceNames carries the display names from the export's users.json
// and channels.json. They are the literal fallback when a mention
// target has no destination identity.
type SourceNames struct {
	Users    map[string]string // Slack user ID -> display name
	Channels map[string]string // Slack channel ID -> channel name
}

type resolution struct {
	display string
	destID  string
}

// Resolver maps Slack identifiers to Discord references, falling back
// to literal display text when no destination identity exists. It
// caches lookups for the lifetime of the run and is owned by the single
// processing loop; it is not safe for concurrent writers.
type Resolver struct {
	dir            Directory
	names          SourceNames
	allowBroadcast bool

	userCache    map[string]resolution
	channelCache map[string]resolution
	canBroadcast *bool

	log zerolog.Logger
}

// NewResolver creates a resolver over a destination directory and the
// export's name tables. allowBroadcast gates live broadcast mentions:
// when false, CanBroadcast is never even consulted.
func NewResolver(dir Directory, names SourceNames, allowBroadcast bool, log zerolog.Logger) *Resolver {
	return &Resolver{
		dir:            dir,
		names:          names,
		allowBroadcast: allowBroadcast,
		userCache:      make(map[string]resolution),
		channelCache:   make(map[string]resolution),
		log:            log.With().Str("component", "resolver").Logger(),
	}
}

// ResolveUser implements slackfmt.EntityResolver. A mention of a user
// who never joined Discord resolves to their Slack display name; the
// mention is never dropped.
func (r *Resolver) ResolveUser(ctx context.Context, sourceID string) (string, string) {
	if res, ok := r.userCache[sourceID]; ok {
		return res.display, res.destID
	}

	res := resolution{display: r.names.Users[sourceID]}
	if destID, ok := r.dir.LookupUser(ctx, sourceID); ok {
		res.destID = destID
	} else {
		r.log.Debug().
			Str("slack_user_id", sourceID).
			Str("display_name", res.display).
			Msg("User not found on Discord, mention falls back to literal name")
	}
	r.userCache[sourceID] = res
	return res.display, res.destID
}

// ResolveChannel implements slackfmt.EntityResolver.
func (r *Resolver) ResolveChannel(ctx context.Context, sourceID string) (string, string) {
	if res, ok := r.channelCache[sourceID]; ok {
		return res.display, res.destID
	}

	res := resolution{display: r.names.Channels[sourceID]}
	if destID, ok := r.dir.LookupChannel(ctx, sourceID); ok {
		res.destID = destID
	} else {
		r.log.Debug().
			Str("slack_channel_id", sourceID).
			Str("channel_name", res.display).
			Msg("Channel not found on Discord, reference falls back to literal name")
	}
	r.channelCache[sourceID] = res
	return res.display, res.destID
}

// ResolveBroadcast implements slackfmt.EntityResolver. Live broadcast
// syntax is only emitted when the run allows it and the destination
// grants the permission; anything else gets the bare word, so an import
// never mass-notifies a server by accident.
func (r *Resolver) ResolveBroadcast(ctx context.Context, kind string) (string, bool) {
	if !r.allowBroadcast {
		return kind, false
	}
	if r.canBroadcast == nil {
		allowed := r.dir.CanBroadcast(ctx)
		r.canBroadcast = &allowed
		if !allowed {
			r.log.Info().Msg("Destination denies broadcast mentions, rendering them as literal text")
		}
	}
	return kind, *r.canBroadcast
}
