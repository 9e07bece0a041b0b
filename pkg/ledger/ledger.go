// Copyright 2024-2026 Aiku AI

// Package ledger provides stores for the source-to-destination message
// ID mapping. The in-memory store covers single runs; the SQLite store
// survives restarts so re-runs skip already-imported messages.
package ledger

import (
	"github.com/aiku/slack2discord/pkg/importer"
)

// Memory is a map-backed ledger for one-shot runs. It is owned by the
// single processing loop and does no locking.
type Memory struct {
	entries map[importer.SourceMessageID]importer.DestMessageID
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{entries: make(map[importer.SourceMessageID]importer.DestMessageID)}
}

func (m *Memory) Get(id importer.SourceMessageID) (importer.DestMessageID, bool) {
	dest, ok := m.entries[id]
	return dest, ok
}

func (m *Memory) Put(id importer.SourceMessageID, dest importer.DestMessageID) error {
	m.entries[id] = dest
	return nil
}

// Len returns the number of recorded mappings.
func (m *Memory) Len() int {
	return len(m.entries)
}
