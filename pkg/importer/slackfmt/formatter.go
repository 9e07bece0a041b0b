// Copyright 2024-2026 Aiku AI

// Package slackfmt converts Slack export markup to Discord markdown.
//
// Slack escapes &, < and > as HTML entities and wraps every special
// construct in angle brackets: <@U123> user mentions, <#C123|name>
// channel mentions, <!everyone> broadcasts and <https://url|label>
// hyperlinks. Parse decodes the entities exactly once and emits typed
// inline spans covering the whole message, so downstream chunking can
// split text without ever cutting a link or mention in half.
package slackfmt

import (
	"context"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

// EntityResolver maps Slack identifiers to Discord references. A miss
// returns an empty destination ID and the resolver's best display text.
type EntityResolver interface {
	ResolveUser(ctx context.Context, sourceID string) (display, destID string)
	ResolveChannel(ctx context.Context, sourceID string) (display, destID string)
	// ResolveBroadcast returns the literal word for the broadcast kind
	// ("everyone", "here", "channel") and whether live broadcast syntax
	// is permitted in the current context.
	ResolveBroadcast(ctx context.Context, kind string) (word string, live bool)
}

// SpanKind identifies the type of an inline span.
type SpanKind int

const (
	SpanText SpanKind = iota
	SpanLink
	SpanUserMention
	SpanChannelMention
	SpanBroadcast
)

// Span is a typed run of canonical text. Concatenating the Text of all
// spans in order reconstructs the canonical (entity-decoded) message.
type Span struct {
	Kind SpanKind
	// Text is the display text: the decoded literal for SpanText, the
	// link label for SpanLink, "@name"/"#name" for mentions and the
	// bare word for SpanBroadcast.
	Text string
	// URL is set for SpanLink.
	URL string
	// DestID is the resolved Discord ID for mention spans. Empty when
	// the target has no Discord identity; the span then renders as its
	// literal display text.
	DestID string
}

// Len returns the span's character count. Budgets are counted over
// display text, not over the rendered markup.
func (s Span) Len() int {
	return utf8.RuneCountInString(s.Text)
}

// Markdown renders the span as Discord-native markup.
func (s Span) Markdown() string {
	switch s.Kind {
	case SpanLink:
		return "[" + s.Text + "](" + s.URL + ")"
	case SpanUserMention:
		if s.DestID != "" {
			return "<@" + s.DestID + ">"
		}
		return s.Text
	case SpanChannelMention:
		if s.DestID != "" {
			return "<#" + s.DestID + ">"
		}
		return s.Text
	case SpanBroadcast:
		return "@" + s.Text
	default:
		return s.Text
	}
}

// ParsedMessage holds the result of normalizing one raw Slack message.
type ParsedMessage struct {
	// Text is the canonical, entity-free text: the concatenation of all
	// span display texts in order.
	Text  string
	Spans []Span
	// Rich reports whether the message needs rich-text (embed)
	// rendering on Discord: true when any hyperlink carries markup that
	// plain message bodies would display raw.
	Rich bool
}

// tokenRe matches one Slack angle-bracket construct.
var tokenRe = regexp.MustCompile(`<([^<>]+)>`)

// bareBroadcastRe matches an @everyone-style broadcast written as plain
// text. Slack normally wraps these as <!everyone>, but hand-typed and
// legacy-export messages carry the bare form.
var bareBroadcastRe = regexp.MustCompile(`(^|\s)@(everyone|here|channel)\b`)

// urlSchemes are the link schemes Slack auto-wraps in angle brackets.
var urlSchemes = []string{"http://", "https://", "ftp://", "mailto:"}

// Parse normalizes raw Slack export text into canonical text plus
// ordered spans. It is deterministic: the same input and resolver state
// always yield the same result. Entity decoding is applied exactly once
// per character; text produced by decoding is never re-decoded.
func Parse(ctx context.Context, raw string, resolver EntityResolver) *ParsedMessage {
	if raw == "" {
		return &ParsedMessage{}
	}

	var spans []Span
	last := 0
	for _, loc := range tokenRe.FindAllStringSubmatchIndex(raw, -1) {
		if loc[0] > last {
			spans = append(spans, plainSpans(ctx, html.UnescapeString(raw[last:loc[0]]), resolver)...)
		}
		spans = append(spans, parseToken(ctx, raw[loc[2]:loc[3]], resolver)...)
		last = loc[1]
	}
	if last < len(raw) {
		spans = append(spans, plainSpans(ctx, html.UnescapeString(raw[last:]), resolver)...)
	}

	var sb strings.Builder
	rich := false
	for _, sp := range spans {
		sb.WriteString(sp.Text)
		if sp.Kind == SpanLink {
			rich = true
		}
	}

	return &ParsedMessage{
		Text:  sb.String(),
		Spans: spans,
		Rich:  rich,
	}
}

// plainSpans wraps already-decoded plain text, splitting out bare
// broadcast mentions (@everyone, @here, @channel) so they go through
// the same permission check as the <!everyone> form.
func plainSpans(ctx context.Context, text string, resolver EntityResolver) []Span {
	if text == "" {
		return nil
	}
	var spans []Span
	last := 0
	for _, loc := range bareBroadcastRe.FindAllStringSubmatchIndex(text, -1) {
		// loc[2:4] is the leading whitespace, loc[4:6] the keyword.
		if loc[4]-1 > last {
			spans = append(spans, Span{Kind: SpanText, Text: text[last : loc[4]-1]})
		}
		spans = append(spans, broadcastSpan(ctx, text[loc[4]:loc[5]], resolver))
		last = loc[5]
	}
	if last < len(text) {
		spans = append(spans, Span{Kind: SpanText, Text: text[last:]})
	}
	return spans
}

func broadcastSpan(ctx context.Context, kind string, resolver EntityResolver) Span {
	word, live := resolver.ResolveBroadcast(ctx, kind)
	if live {
		return Span{Kind: SpanBroadcast, Text: word}
	}
	return Span{Kind: SpanText, Text: word}
}

// parseToken converts the inside of one <...> construct into spans.
// Unrecognized constructs degrade to their literal text.
func parseToken(ctx context.Context, body string, resolver EntityResolver) []Span {
	inner, label, hasLabel := strings.Cut(body, "|")

	switch {
	case strings.HasPrefix(inner, "@"):
		sourceID := strings.TrimPrefix(inner, "@")
		display, destID := resolver.ResolveUser(ctx, sourceID)
		if hasLabel && display == "" {
			display = html.UnescapeString(label)
		}
		if display == "" {
			display = sourceID
		}
		return []Span{{Kind: SpanUserMention, Text: "@" + strings.TrimPrefix(display, "@"), DestID: destID}}

	case strings.HasPrefix(inner, "#"):
		sourceID := strings.TrimPrefix(inner, "#")
		display, destID := resolver.ResolveChannel(ctx, sourceID)
		if display == "" && hasLabel {
			display = html.UnescapeString(label)
		}
		if display == "" {
			display = sourceID
		}
		return []Span{{Kind: SpanChannelMention, Text: "#" + strings.TrimPrefix(display, "#"), DestID: destID}}

	case strings.HasPrefix(inner, "!"):
		kind := strings.TrimPrefix(inner, "!")
		switch kind {
		case "everyone", "here", "channel":
			return []Span{broadcastSpan(ctx, kind, resolver)}
		default:
			// Other special mentions (<!subteam^ID|label>, <!date...>)
			// have no Discord equivalent; keep the human-readable part.
			if hasLabel {
				return []Span{{Kind: SpanText, Text: html.UnescapeString(label)}}
			}
			return []Span{{Kind: SpanText, Text: html.UnescapeString(body)}}
		}

	case isURL(inner):
		url := html.UnescapeString(inner)
		text := url
		if hasLabel {
			text = html.UnescapeString(label)
		}
		return []Span{{Kind: SpanLink, Text: text, URL: url}}

	default:
		// Not a Slack construct, keep the angle brackets as typed.
		return []Span{{Kind: SpanText, Text: html.UnescapeString("<" + body + ">")}}
	}
}

func isURL(s string) bool {
	for _, scheme := range urlSchemes {
		if strings.HasPrefix(s, scheme) {
			return true
		}
	}
	return false
}
