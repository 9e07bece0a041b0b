// Copyright 2024-2026 Aiku AI

package discord

import (
	"context"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/aiku/slack2discord/pkg/importer"
)

// Directory answers Slack-to-Discord identity lookups against one
// guild. Member and channel listings are fetched lazily, once.
type Directory struct {
	session *discordgo.Session
	guildID string
	// userMap maps Slack user IDs to Discord usernames, from config.
	userMap map[string]string
	// userNames maps Slack user IDs to display names, from the export's
	// users.json.
	userNames map[string]string
	// channelNames maps Slack channel IDs to channel names, from the
	// export's channels.json.
	channelNames map[string]string

	loadOnce sync.Once
	loadErr  error
	// membersByName keys lower-cased usernames, global display names and
	// guild nicks to member IDs.
	membersByName  map[string]string
	channelsByName map[string]string

	log zerolog.Logger
}

var _ importer.Directory = (*Directory)(nil)

// NewDirectory creates a directory over one guild. userMap translates
// Slack user IDs to Discord usernames, userNames to Slack display
// names, channelNames translates Slack channel IDs to channel names.
func NewDirectory(session *discordgo.Session, guildID string, userMap, userNames, channelNames map[string]string, log zerolog.Logger) *Directory {
	return &Directory{
		session:      session,
		guildID:      guildID,
		userMap:      userMap,
		userNames:    userNames,
		channelNames: channelNames,
		log:          log.With().Str("component", "directory").Logger(),
	}
}

// LookupUser implements importer.Directory. An explicit config mapping
// wins; without one the Slack display name is tried against the guild
// members, so same-named accounts still resolve to live mentions.
func (d *Directory) LookupUser(ctx context.Context, sourceUserID string) (string, bool) {
	name, ok := d.userMap[sourceUserID]
	if !ok {
		name, ok = d.userNames[sourceUserID]
	}
	if !ok || name == "" {
		return "", false
	}
	if err := d.load(ctx); err != nil {
		return "", false
	}
	id, ok := d.membersByName[strings.ToLower(name)]
	if !ok {
		d.log.Debug().Str("username", name).Msg("No guild member with this name")
	}
	return id, ok
}

// LookupChannel implements importer.Directory.
func (d *Directory) LookupChannel(ctx context.Context, sourceChannelID string) (string, bool) {
	name, ok := d.channelNames[sourceChannelID]
	if !ok {
		return "", false
	}
	if err := d.load(ctx); err != nil {
		return "", false
	}
	id, ok := d.channelsByName[name]
	return id, ok
}

// CanBroadcast implements importer.Directory: it reports whether the
// bot's guild permissions include mentioning everyone.
func (d *Directory) CanBroadcast(ctx context.Context) bool {
	me, err := d.session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return false
	}
	member, err := d.session.GuildMember(d.guildID, me.ID, discordgo.WithContext(ctx))
	if err != nil {
		return false
	}
	roles, err := d.session.GuildRoles(d.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return false
	}

	memberRoles := make(map[string]bool, len(member.Roles))
	for _, id := range member.Roles {
		memberRoles[id] = true
	}
	var perms int64
	for _, role := range roles {
		// The @everyone role shares its ID with the guild and applies to
		// every member.
		if role.ID == d.guildID || memberRoles[role.ID] {
			perms |= role.Permissions
		}
	}
	return perms&discordgo.PermissionAdministrator != 0 ||
		perms&discordgo.PermissionMentionEveryone != 0
}

func (d *Directory) load(ctx context.Context) error {
	d.loadOnce.Do(func() {
		d.membersByName = map[string]string{}
		d.channelsByName = map[string]string{}

		after := ""
		for {
			members, err := d.session.GuildMembers(d.guildID, after, 1000, discordgo.WithContext(ctx))
			if err != nil {
				d.loadErr = err
				return
			}
			for _, m := range members {
				if m.User == nil {
					continue
				}
				d.membersByName[strings.ToLower(m.User.Username)] = m.User.ID
				if m.User.GlobalName != "" {
					d.membersByName[strings.ToLower(m.User.GlobalName)] = m.User.ID
				}
				if m.Nick != "" {
					d.membersByName[strings.ToLower(m.Nick)] = m.User.ID
				}
				after = m.User.ID
			}
			if len(members) < 1000 {
				break
			}
		}

		channels, err := d.session.GuildChannels(d.guildID, discordgo.WithContext(ctx))
		if err != nil {
			d.loadErr = err
			return
		}
		for _, ch := range channels {
			if ch.Type == discordgo.ChannelTypeGuildText {
				d.channelsByName[ch.Name] = ch.ID
			}
		}
		d.log.Debug().
			Int("members", len(d.membersByName)).
			Int("channels", len(d.channelsByName)).
			Msg("Guild directory loaded")
	})
	return d.loadErr
}
