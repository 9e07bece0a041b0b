// Copyright 2024-2026 Aiku AI

// Package importer converts Slack export messages into Discord sends.
//
// The pipeline for one message is: normalize the raw text into spans
// (slackfmt), split the spans into size-bounded fragments, relocate
// attachments, assemble everything into ordered payloads, then send
// them through a Transport while recording the source-to-destination
// ID mapping in a Ledger for reply anchoring and idempotent re-runs.
package importer
