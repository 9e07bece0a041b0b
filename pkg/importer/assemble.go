// Copyright 2024-2026 Aiku AI

package importer

import (
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aiku/slack2discord/pkg/importer/slackfmt"
)

// Payload is one atomic destination send: optional text body, ordered
// rich-text fragments, attachment uploads. A payload always carries at
// least one of the three.
type Payload struct {
	// Nonce identifies this exact constructed payload across retries,
	// so a transient failure resends the same bytes instead of
	// re-running the pipeline.
	Nonce string
	// Text is the plain message body, empty for rich payloads.
	Text string
	// Fragments become rich-text blocks. One fragment renders as a
	// single block, several render as stacked blocks.
	Fragments []Fragment
	// Uploads are the attachments riding on this send.
	Uploads []*Upload
	// ReplyTo links the payload to an earlier destination message.
	ReplyTo DestMessageID
}

// Empty reports whether the payload carries nothing at all. Empty
// payloads must never be sent.
func (p *Payload) Empty() bool {
	return p.Text == "" && len(p.Fragments) == 0 && len(p.Uploads) == 0
}

// Assembler combines normalized text, fragments and relocated
// attachments into destination payloads within the configured limits.
type Assembler struct {
	limits Limits
	log    zerolog.Logger
}

// NewAssembler creates an assembler for the given limits.
func NewAssembler(limits Limits, log zerolog.Logger) *Assembler {
	return &Assembler{
		limits: limits,
		log:    log.With().Str("component", "assembler").Logger(),
	}
}

const attachmentsOnlyBody = "*Attachments:*"

// Assemble builds the ordered payload sequence for one source message.
// header is the rendered header line, placeholders name attachments
// that could not be transferred, replyTo is the destination anchor for
// a threaded reply (empty when the parent is unknown). A nil, nil
// return means the message has nothing to send.
func (a *Assembler) Assemble(parsed *slackfmt.ParsedMessage, header string, uploads []*Upload, placeholders []string, replyTo DestMessageID) ([]*Payload, error) {
	spans := a.buildSpans(parsed, header, uploads, placeholders)
	if len(spans) == 0 && len(uploads) == 0 {
		return nil, nil
	}

	if !a.needsRich(parsed, spans, uploads) {
		p := &Payload{
			Nonce:   uuid.NewString(),
			Text:    Fragment{Spans: spans}.Markdown(),
			Uploads: uploads,
			ReplyTo: replyTo,
		}
		return []*Payload{p}, nil
	}

	frags, err := a.chunkRendered(spans)
	if err != nil {
		return nil, err
	}

	payloads := a.pack(frags)
	if len(payloads) > a.limits.MaxPayloadsPerMessage {
		return nil, fmt.Errorf("%w: message needs %d payloads, limit %d",
			ErrCapacityExceeded, len(payloads), a.limits.MaxPayloadsPerMessage)
	}
	if len(payloads) == 0 {
		payloads = []*Payload{{Nonce: uuid.NewString()}}
	}

	// Attachments ride on the first payload so inline images render
	// next to the opening fragment.
	payloads[0].Uploads = uploads
	payloads[0].ReplyTo = replyTo
	return payloads, nil
}

// buildSpans assembles the full ordered span list for the message:
// header, body, attachment-loss placeholders.
func (a *Assembler) buildSpans(parsed *slackfmt.ParsedMessage, header string, uploads []*Upload, placeholders []string) []slackfmt.Span {
	var spans []slackfmt.Span
	body := parsed.Spans

	if len(body) == 0 && len(uploads) > 0 {
		// Attachment-only message still gets an attributed header.
		spans = append(spans, slackfmt.Span{Kind: slackfmt.SpanText, Text: header + attachmentsOnlyBody})
	} else if len(body) > 0 {
		if header != "" {
			spans = append(spans, slackfmt.Span{Kind: slackfmt.SpanText, Text: header})
		}
		spans = append(spans, body...)
	}

	for _, name := range placeholders {
		spans = append(spans, slackfmt.Span{
			Kind: slackfmt.SpanText,
			Text: "\n*[missing attachment: " + name + "]*",
		})
	}
	return spans
}

// needsRich decides between a plain text body and rich-text fragments.
// Hyperlinked markup, inline images and anything over the plain body
// limit go the rich route.
func (a *Assembler) needsRich(parsed *slackfmt.ParsedMessage, spans []slackfmt.Span, uploads []*Upload) bool {
	if parsed.Rich {
		return true
	}
	for _, up := range uploads {
		if up.Inline {
			return true
		}
	}
	return utf8.RuneCountInString(Fragment{Spans: spans}.Markdown()) > a.limits.MaxMessageChars
}

// chunkRendered chunks spans against the embed budget and verifies the
// rendered markup also fits; mention and link markup can be longer than
// the display text the budget counts, so the budget shrinks until the
// rendered fragments comply.
func (a *Assembler) chunkRendered(spans []slackfmt.Span) ([]Fragment, error) {
	budget := a.limits.MaxEmbedChars
	for {
		frags, err := Chunk(spans, budget)
		if err != nil {
			return nil, err
		}
		if fit := a.renderedFit(frags); fit {
			return frags, nil
		}
		budget = budget * 9 / 10
		if budget < 1 {
			return nil, fmt.Errorf("%w: rendered fragments cannot fit embed limit %d",
				ErrCapacityExceeded, a.limits.MaxEmbedChars)
		}
	}
}

func (a *Assembler) renderedFit(frags []Fragment) bool {
	for _, f := range frags {
		if utf8.RuneCountInString(f.Markdown()) > a.limits.MaxEmbedChars {
			return false
		}
	}
	return true
}

// pack groups fragments into payloads, honoring both the per-payload
// block count and the combined character ceiling, in source order.
func (a *Assembler) pack(frags []Fragment) []*Payload {
	var payloads []*Payload
	var cur *Payload
	curChars := 0

	for _, f := range frags {
		n := utf8.RuneCountInString(f.Markdown())
		if cur != nil &&
			(len(cur.Fragments) >= a.limits.MaxEmbedsPerPayload ||
				curChars+n > a.limits.MaxTotalEmbedChars) {
			payloads = append(payloads, cur)
			cur = nil
		}
		if cur == nil {
			cur = &Payload{Nonce: uuid.NewString()}
			curChars = 0
		}
		cur.Fragments = append(cur.Fragments, f)
		curChars += n
	}
	if cur != nil {
		payloads = append(payloads, cur)
	}
	return payloads
}
