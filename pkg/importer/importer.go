// Copyright 2024-2026 Aiku AI

package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/slack2discord/pkg/importer/slackfmt"
)

// SourceMessage is one message record read from the export. Immutable
// once read.
type SourceMessage struct {
	ID       SourceMessageID
	Channel  string
	AuthorID string
	// Raw is the message text as exported: markup plus entity tokens.
	Raw       string
	Timestamp time.Time
	// ParentID is the thread parent, empty for top-level messages.
	ParentID SourceMessageID
	// Subtype is the Slack message subtype ("channel_join",
	// "bot_message", ...); empty for regular user messages.
	Subtype     string
	Attachments []AttachmentRef
}

// MessageState tracks one source message through the pipeline.
type MessageState int

const (
	StatePending MessageState = iota
	StateNormalized
	StateChunked
	StateAssembled
	StateSending
	StateSent
	StatePartiallyFailed
	StateFailed
	StateSkipped
)

func (s MessageState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateNormalized:
		return "normalized"
	case StateChunked:
		return "chunked"
	case StateAssembled:
		return "assembled"
	case StateSending:
		return "sending"
	case StateSent:
		return "sent"
	case StatePartiallyFailed:
		return "partially_failed"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Transport sends assembled payloads to the destination platform. It
// owns rate limit backoff; the importer only does bounded resends of a
// single payload on transient failure.
type Transport interface {
	// Send transmits one payload to a destination channel and returns
	// the created message's ID. Errors are *TransportError.
	Send(ctx context.Context, channelID string, p *Payload) (DestMessageID, error)
	// EnsureChannel resolves a destination channel by name, creating it
	// when allowed, and returns its ID.
	EnsureChannel(ctx context.Context, name string) (string, error)
}

// Ledger records the source-to-destination message ID mapping used for
// reply anchoring and idempotent re-runs. Single writer: the run loop.
type Ledger interface {
	Get(id SourceMessageID) (DestMessageID, bool)
	Put(id SourceMessageID, dest DestMessageID) error
}

// RunStats summarizes one import run.
type RunStats struct {
	Sent            int
	PartiallyFailed int
	Failed          int
	Skipped         int
}

// Importer drives the conversion: one logical worker walks the ordered
// message queue; only sibling attachment transfers within one message
// run concurrently.
type Importer struct {
	cfg       *Config
	transport Transport
	resolver  *Resolver
	relocator *Relocator
	assembler *Assembler
	ledger    Ledger

	stats RunStats
	log   zerolog.Logger
}

// New creates an importer from its collaborators.
func New(cfg *Config, transport Transport, resolver *Resolver, relocator *Relocator, ledger Ledger, log zerolog.Logger) *Importer {
	return &Importer{
		cfg:       cfg,
		transport: transport,
		resolver:  resolver,
		relocator: relocator,
		assembler: NewAssembler(cfg.Limits, log),
		ledger:    ledger,
		log:       log.With().Str("component", "importer").Logger(),
	}
}

// Stats returns the counters accumulated so far.
func (im *Importer) Stats() RunStats {
	return im.stats
}

// ImportChannel converts one channel's messages in chronological order.
// Order is a correctness requirement: reply anchoring needs parents in
// the ledger before their children arrive. Per-message failures are
// counted and logged; only a fatal transport error stops the run.
func (im *Importer) ImportChannel(ctx context.Context, channelName string, msgs []SourceMessage) error {
	channelID, err := im.transport.EnsureChannel(ctx, channelName)
	if err != nil {
		return fmt.Errorf("resolving destination channel %q: %w", channelName, err)
	}

	log := im.log.With().Str("channel", channelName).Logger()
	log.Info().Int("messages", len(msgs)).Msg("Importing channel")

	for i := range msgs {
		if err := ctx.Err(); err != nil {
			return err
		}

		state, err := im.processMessage(ctx, channelID, &msgs[i])
		switch state {
		case StateSent:
			im.stats.Sent++
		case StatePartiallyFailed:
			im.stats.PartiallyFailed++
		case StateFailed:
			im.stats.Failed++
		case StateSkipped:
			im.stats.Skipped++
		}
		if err != nil {
			if errors.Is(err, ErrTransportFatal) {
				log.Error().Err(err).Str("message_id", string(msgs[i].ID)).Msg("Fatal transport error, aborting run")
				return err
			}
			log.Warn().Err(err).
				Str("message_id", string(msgs[i].ID)).
				Str("state", state.String()).
				Msg("Message conversion failed, continuing")
		}

		if im.cfg.Throttle > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(im.cfg.Throttle):
			}
		}
	}

	log.Info().Msg("Channel import complete")
	return nil
}

// processMessage runs one source message through the pipeline:
// Pending -> Normalized -> Chunked -> Assembled -> Sending -> terminal.
func (im *Importer) processMessage(ctx context.Context, channelID string, msg *SourceMessage) (MessageState, error) {
	log := im.log.With().Str("message_id", string(msg.ID)).Logger()

	switch msg.Subtype {
	case "channel_join", "channel_leave", "bot_message":
		log.Debug().Str("subtype", msg.Subtype).Msg("Skipping system message")
		return StateSkipped, nil
	}

	if dest, ok := im.ledger.Get(msg.ID); ok {
		log.Debug().Str("dest_id", string(dest)).Msg("Message already imported, skipping")
		return StateSkipped, nil
	}

	// Normalize.
	parsed := slackfmt.Parse(ctx, msg.Raw, im.resolver)
	log.Trace().Str("state", StateNormalized.String()).Int("spans", len(parsed.Spans)).Msg("Normalized")

	// Relocate attachments; siblings run concurrently, the resolver
	// cache and ledger are not touched until all have settled.
	uploads, placeholders := im.relocateAll(ctx, msg, log)

	// Reply anchoring degrades to no link when the parent was never
	// converted (out-of-order or partial exports are legitimate).
	var replyTo DestMessageID
	if msg.ParentID != "" {
		if dest, ok := im.ledger.Get(msg.ParentID); ok {
			replyTo = dest
		} else {
			log.Debug().Str("parent_id", string(msg.ParentID)).Msg("Reply parent not in ledger, sending without reply link")
		}
	}

	header := im.cfg.FormatHeader(HeaderParams{
		Timestamp: msg.Timestamp.Format("2006-01-02 at 15:04:05"),
		Username:  im.authorName(ctx, msg.AuthorID),
	})

	payloads, err := im.assembler.Assemble(parsed, header, uploads, placeholders, replyTo)
	if err != nil {
		return StateFailed, fmt.Errorf("assembling message: %w", err)
	}
	if len(payloads) == 0 {
		log.Debug().Msg("Message has no sendable content")
		return StateSkipped, nil
	}
	log.Trace().Str("state", StateAssembled.String()).Int("payloads", len(payloads)).Msg("Assembled")

	// Send.
	var firstDest DestMessageID
	sent := 0
	for i, p := range payloads {
		if err := ctx.Err(); err != nil {
			// Clean abort at a payload boundary; anything already sent
			// stays sent and ledgered below.
			break
		}
		dest, err := im.sendWithRetry(ctx, channelID, p)
		if err != nil {
			if errors.Is(err, ErrTransportFatal) {
				return StateFailed, err
			}
			if i == 0 {
				return StateFailed, fmt.Errorf("sending payload %d/%d: %w", i+1, len(payloads), err)
			}
			// The opening payload went through; record what we have.
			im.recordLedger(msg.ID, firstDest, log)
			return StatePartiallyFailed, fmt.Errorf("sending payload %d/%d: %w", i+1, len(payloads), err)
		}
		sent++
		if i == 0 {
			firstDest = dest
		}
	}
	if firstDest == "" {
		return StateFailed, ctx.Err()
	}

	im.recordLedger(msg.ID, firstDest, log)

	if sent < len(payloads) {
		return StatePartiallyFailed, ctx.Err()
	}
	if len(placeholders) > 0 {
		return StatePartiallyFailed, nil
	}
	return StateSent, nil
}

// relocateAll transfers the message's attachments concurrently and
// returns successful uploads plus placeholder names for failures, both
// in source attachment order.
func (im *Importer) relocateAll(ctx context.Context, msg *SourceMessage, log zerolog.Logger) ([]*Upload, []string) {
	if len(msg.Attachments) == 0 {
		return nil, nil
	}

	type result struct {
		up  *Upload
		err error
	}
	results := make([]result, len(msg.Attachments))

	var wg sync.WaitGroup
	for i := range msg.Attachments {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			up, err := im.relocator.Relocate(ctx, msg.Attachments[i])
			results[i] = result{up: up, err: err}
		}(i)
	}
	wg.Wait()

	var uploads []*Upload
	var placeholders []string
	for i, res := range results {
		if res.err != nil {
			name := msg.Attachments[i].Name
			if name == "" {
				name = msg.Attachments[i].URL
			}
			log.Warn().Err(res.err).Str("attachment", name).Msg("Attachment transfer failed, sending placeholder")
			placeholders = append(placeholders, name)
			continue
		}
		uploads = append(uploads, res.up)
	}
	return uploads, placeholders
}

// sendWithRetry resends the exact same payload on transient failure, up
// to the configured bound. Backoff belongs to the transport.
func (im *Importer) sendWithRetry(ctx context.Context, channelID string, p *Payload) (DestMessageID, error) {
	var lastErr error
	for attempt := 0; attempt <= im.cfg.SendRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		dest, err := im.transport.Send(ctx, channelID, p)
		if err == nil {
			return dest, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return "", err
		}
		im.log.Debug().Err(err).
			Str("nonce", p.Nonce).
			Int("attempt", attempt+1).
			Msg("Transient send failure, retrying payload")
	}
	return "", fmt.Errorf("retries exhausted: %w", lastErr)
}

func (im *Importer) recordLedger(id SourceMessageID, dest DestMessageID, log zerolog.Logger) {
	if dest == "" {
		return
	}
	if err := im.ledger.Put(id, dest); err != nil {
		log.Error().Err(err).Msg("Failed to record ledger entry")
	}
}

func (im *Importer) authorName(ctx context.Context, authorID string) string {
	if authorID == "" {
		return "unknown user"
	}
	display, _ := im.resolver.ResolveUser(ctx, authorID)
	if display == "" {
		return authorID
	}
	return display
}
