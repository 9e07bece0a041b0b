// Copyright 2024-2026 Aiku AI

package discord

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

// primedDirectory returns a directory with the guild listings already
// in place, so lookups can be tested without a live session.
func primedDirectory(userMap, userNames map[string]string, members map[string]string) *Directory {
	d := NewDirectory(nil, "guild-1", userMap, userNames, nil, zerolog.Nop())
	d.loadOnce.Do(func() {})
	d.membersByName = members
	d.channelsByName = map[string]string{}
	return d
}

func TestLookupUserMapped(t *testing.T) {
	t.Parallel()
	d := primedDirectory(
		map[string]string{"U123": "alice"},
		map[string]string{"U123": "Alice Smith"},
		map[string]string{"alice": "111", "alice smith": "999"},
	)

	// The explicit config mapping wins over the display name.
	id, ok := d.LookupUser(context.Background(), "U123")
	if !ok || id != "111" {
		t.Errorf("LookupUser = (%q, %v), want mapped member", id, ok)
	}
}

func TestLookupUserDisplayNameFallback(t *testing.T) {
	t.Parallel()
	d := primedDirectory(
		nil,
		map[string]string{"U456": "Bob"},
		map[string]string{"bob": "222"},
	)

	// No config mapping, but a guild member shares the Slack display
	// name; the mention still goes live.
	id, ok := d.LookupUser(context.Background(), "U456")
	if !ok || id != "222" {
		t.Errorf("LookupUser = (%q, %v), want display-name match", id, ok)
	}
}

func TestLookupUserUnknown(t *testing.T) {
	t.Parallel()
	d := primedDirectory(
		map[string]string{"U123": "alice"},
		map[string]string{"U456": "Bob"},
		map[string]string{"carol": "333"},
	)

	if _, ok := d.LookupUser(context.Background(), "U999"); ok {
		t.Error("unknown Slack ID must not resolve")
	}
	if _, ok := d.LookupUser(context.Background(), "U456"); ok {
		t.Error("display name absent from the guild must not resolve")
	}
}
