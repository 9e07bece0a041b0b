// Copyright 2024-2026 Aiku AI

// Package export reads a Slack workspace export directory into
// chronologically ordered source messages.
//
// The export layout is a root directory holding users.json,
// channels.json and one subdirectory per channel containing per-day
// message files (2022-07-29.json, ...). All of it is plain JSON.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/slack2discord/pkg/importer"
)

// Archive is a loaded Slack export: name tables plus per-channel
// message history in chronological order.
type Archive struct {
	Root string
	// Users maps Slack user IDs to display names (display_name, falling
	// back to real_name).
	Users map[string]string
	// Channels maps Slack channel IDs to channel names.
	Channels map[string]string
	// ChannelNames lists channels in stable (sorted) order.
	ChannelNames []string

	history map[string][]importer.SourceMessage
}

// Messages returns the chronological message list for one channel.
func (a *Archive) Messages(channel string) []importer.SourceMessage {
	return a.history[channel]
}

// Names returns the archive's name tables in resolver form.
func (a *Archive) Names() importer.SourceNames {
	return importer.SourceNames{Users: a.Users, Channels: a.Channels}
}

// exportUser mirrors one users.json record.
type exportUser struct {
	ID      string `json:"id"`
	Profile struct {
		DisplayName string `json:"display_name"`
		RealName    string `json:"real_name"`
	} `json:"profile"`
}

// exportChannel mirrors one channels.json record.
type exportChannel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// exportFile mirrors the subset of a Slack file record the importer
// needs.
type exportFile struct {
	Name       string `json:"name"`
	Title      string `json:"title"`
	MimeType   string `json:"mimetype"`
	Size       int64  `json:"size"`
	URLPrivate string `json:"url_private"`
}

// exportMessage mirrors one message record from a day file.
type exportMessage struct {
	ClientMsgID string       `json:"client_msg_id"`
	TS          string       `json:"ts"`
	ThreadTS    string       `json:"thread_ts"`
	User        string       `json:"user"`
	Text        string       `json:"text"`
	Subtype     string       `json:"subtype"`
	Files       []exportFile `json:"files"`
}

// Load reads an export directory. Missing users.json or channels.json
// degrade to empty name tables (mentions then fall back to raw IDs);
// an unreadable day file fails the load so no channel silently imports
// with holes.
func Load(root string, log zerolog.Logger) (*Archive, error) {
	log = log.With().Str("component", "export").Logger()

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("export root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("export root %q is not a directory", root)
	}

	a := &Archive{
		Root:     root,
		Users:    map[string]string{},
		Channels: map[string]string{},
		history:  map[string][]importer.SourceMessage{},
	}

	if err := loadUsers(filepath.Join(root, "users.json"), a.Users); err != nil {
		log.Warn().Err(err).Msg("No usable users.json, mentions will show raw user IDs")
	}
	if err := loadChannels(filepath.Join(root, "channels.json"), a.Channels); err != nil {
		log.Warn().Err(err).Msg("No usable channels.json, channel references will show raw IDs")
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading export root: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		channel := entry.Name()
		msgs, err := loadChannelHistory(filepath.Join(root, channel), channel, a.Users)
		if err != nil {
			return nil, fmt.Errorf("channel %q: %w", channel, err)
		}
		if len(msgs) == 0 {
			continue
		}
		a.history[channel] = msgs
		a.ChannelNames = append(a.ChannelNames, channel)
	}
	sort.Strings(a.ChannelNames)

	if len(a.ChannelNames) == 0 {
		return nil, fmt.Errorf("no channel history found under %q", root)
	}

	log.Info().
		Int("channels", len(a.ChannelNames)).
		Int("users", len(a.Users)).
		Msg("Export loaded")
	return a, nil
}

func loadUsers(path string, into map[string]string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var users []exportUser
	if err := json.Unmarshal(data, &users); err != nil {
		return fmt.Errorf("parsing users.json: %w", err)
	}
	for _, u := range users {
		name := u.Profile.DisplayName
		if name == "" {
			name = u.Profile.RealName
		}
		if u.ID != "" && name != "" {
			into[u.ID] = name
		}
	}
	return nil
}

func loadChannels(path string, into map[string]string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var channels []exportChannel
	if err := json.Unmarshal(data, &channels); err != nil {
		return fmt.Errorf("parsing channels.json: %w", err)
	}
	for _, ch := range channels {
		if ch.ID != "" {
			into[ch.ID] = ch.Name
		}
	}
	return nil
}

// loadChannelHistory reads every day file in a channel directory and
// returns the merged messages sorted by Slack timestamp.
func loadChannelHistory(dir, channel string, _ map[string]string) ([]importer.SourceMessage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	var msgs []importer.SourceMessage
	for _, name := range files {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		var records []exportMessage
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		for _, rec := range records {
			if rec.TS == "" {
				continue
			}
			msgs = append(msgs, toSourceMessage(channel, rec))
		}
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		_, ti := importer.ParseSourceMessageID(msgs[i].ID)
		_, tj := importer.ParseSourceMessageID(msgs[j].ID)
		return tsLess(ti, tj)
	})
	return msgs, nil
}

func toSourceMessage(channel string, rec exportMessage) importer.SourceMessage {
	msg := importer.SourceMessage{
		ID:        importer.MakeSourceMessageID(channel, rec.TS),
		Channel:   channel,
		AuthorID:  rec.User,
		Raw:       rec.Text,
		Timestamp: tsTime(rec.TS),
		Subtype:   rec.Subtype,
	}
	// A thread child references its root; the root's own thread_ts
	// equals its ts and must not become a self-reply.
	if rec.ThreadTS != "" && rec.ThreadTS != rec.TS {
		msg.ParentID = importer.MakeSourceMessageID(channel, rec.ThreadTS)
	}
	for _, f := range rec.Files {
		msg.Attachments = append(msg.Attachments, importer.AttachmentRef{
			URL:      f.URLPrivate,
			Name:     f.Name,
			Title:    f.Title,
			MimeType: f.MimeType,
			Size:     f.Size,
		})
	}
	return msg
}

// tsTime converts a Slack "seconds.micros" timestamp to time.Time.
func tsTime(ts string) time.Time {
	sec, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}
	}
	var micros int64
	if frac != "" {
		if m, err := strconv.ParseInt(frac, 10, 64); err == nil {
			micros = m
		}
	}
	return time.Unix(s, micros*1000)
}

// tsLess orders Slack timestamps numerically, so "999.1" < "1000.1"
// despite lexicographic order saying otherwise.
func tsLess(a, b string) bool {
	ta, tb := tsTime(a), tsTime(b)
	if ta.Equal(tb) {
		return a < b
	}
	return ta.Before(tb)
}
