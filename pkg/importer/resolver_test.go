// Copyright 2024-2026 Aiku AI

package importer

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

type fakeDirectory struct {
	users    map[string]string
	channels map[string]string
	canPing  bool

	userLookups      int
	channelLookups   int
	broadcastLookups int
}

func (d *fakeDirectory) LookupUser(_ context.Context, id string) (string, bool) {
	d.userLookups++
	dest, ok := d.users[id]
	return dest, ok
}

func (d *fakeDirectory) LookupChannel(_ context.Context, id string) (string, bool) {
	d.channelLookups++
	dest, ok := d.channels[id]
	return dest, ok
}

func (d *fakeDirectory) CanBroadcast(_ context.Context) bool {
	d.broadcastLookups++
	return d.canPing
}

func testNames() SourceNames {
	return SourceNames{
		Users:    map[string]string{"U123": "alice", "U456": "bob"},
		Channels: map[string]string{"C123": "general"},
	}
}

func TestResolveUserMapped(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{users: map[string]string{"U123": "111222333"}}
	r := NewResolver(dir, testNames(), false, zerolog.Nop())

	display, destID := r.ResolveUser(context.Background(), "U123")
	if display != "alice" || destID != "111222333" {
		t.Errorf("ResolveUser = (%q, %q), want (alice, 111222333)", display, destID)
	}
}

func TestResolveUserFallback(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{}
	r := NewResolver(dir, testNames(), false, zerolog.Nop())

	display, destID := r.ResolveUser(context.Background(), "U456")
	if display != "bob" || destID != "" {
		t.Errorf("ResolveUser = (%q, %q), want literal fallback", display, destID)
	}
}

func TestResolveUserCached(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{users: map[string]string{"U123": "111"}}
	r := NewResolver(dir, testNames(), false, zerolog.Nop())

	ctx := context.Background()
	r.ResolveUser(ctx, "U123")
	r.ResolveUser(ctx, "U123")
	r.ResolveUser(ctx, "U123")
	if dir.userLookups != 1 {
		t.Errorf("directory consulted %d times, want 1", dir.userLookups)
	}

	// Misses are cached too, the fallback answer does not change mid-run.
	r.ResolveUser(ctx, "U999")
	r.ResolveUser(ctx, "U999")
	if dir.userLookups != 2 {
		t.Errorf("directory consulted %d times after miss, want 2", dir.userLookups)
	}
}

func TestResolveChannel(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{channels: map[string]string{"C123": "555"}}
	r := NewResolver(dir, testNames(), false, zerolog.Nop())

	ctx := context.Background()
	display, destID := r.ResolveChannel(ctx, "C123")
	if display != "general" || destID != "555" {
		t.Errorf("ResolveChannel = (%q, %q), want (general, 555)", display, destID)
	}
	r.ResolveChannel(ctx, "C123")
	if dir.channelLookups != 1 {
		t.Errorf("directory consulted %d times, want 1", dir.channelLookups)
	}
}

func TestResolveBroadcastDisabled(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{canPing: true}
	r := NewResolver(dir, testNames(), false, zerolog.Nop())

	word, live := r.ResolveBroadcast(context.Background(), "everyone")
	if word != "everyone" || live {
		t.Errorf("ResolveBroadcast = (%q, %v), want literal", word, live)
	}
	if dir.broadcastLookups != 0 {
		t.Error("directory consulted despite broadcast being disabled")
	}
}

func TestResolveBroadcastAuto(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{canPing: true}
	r := NewResolver(dir, testNames(), true, zerolog.Nop())

	ctx := context.Background()
	word, live := r.ResolveBroadcast(ctx, "here")
	if word != "here" || !live {
		t.Errorf("ResolveBroadcast = (%q, %v), want live", word, live)
	}
	r.ResolveBroadcast(ctx, "everyone")
	if dir.broadcastLookups != 1 {
		t.Errorf("permission checked %d times, want 1", dir.broadcastLookups)
	}
}

func TestResolveBroadcastDenied(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{canPing: false}
	r := NewResolver(dir, testNames(), true, zerolog.Nop())

	word, live := r.ResolveBroadcast(context.Background(), "channel")
	if word != "channel" || live {
		t.Errorf("ResolveBroadcast = (%q, %v), want literal when destination denies", word, live)
	}
}
