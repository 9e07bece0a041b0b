// Copyright 2024-2026 Aiku AI

package importer

import "strings"

// SourceMessageID identifies one message within the whole source
// export. Slack timestamps are only unique per channel, so the channel
// name is folded into the ID.
type SourceMessageID string

// MakeSourceMessageID creates a SourceMessageID from a channel name and
// a Slack message timestamp.
func MakeSourceMessageID(channel, ts string) SourceMessageID {
	return SourceMessageID(channel + "/" + ts)
}

// ParseSourceMessageID splits a SourceMessageID back into channel name
// and Slack timestamp.
func ParseSourceMessageID(id SourceMessageID) (channel, ts string) {
	channel, ts, _ = strings.Cut(string(id), "/")
	return channel, ts
}

// DestMessageID identifies a sent Discord message.
type DestMessageID string
