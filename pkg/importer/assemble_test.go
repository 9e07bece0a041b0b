// Copyright 2024-2026 Aiku AI

package importer

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/aiku/slack2discord/pkg/importer/slackfmt"
)

func testAssembler(limits Limits) *Assembler {
	return NewAssembler(limits, zerolog.Nop())
}

func parsedText(text string) *slackfmt.ParsedMessage {
	return &slackfmt.ParsedMessage{
		Text:  text,
		Spans: []slackfmt.Span{{Kind: slackfmt.SpanText, Text: text}},
	}
}

func TestAssembleNothing(t *testing.T) {
	t.Parallel()
	a := testAssembler(DefaultLimits())
	payloads, err := a.Assemble(&slackfmt.ParsedMessage{}, "*header* ", nil, nil, "")
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if payloads != nil {
		t.Errorf("empty message produced %d payloads, want none", len(payloads))
	}
}

func TestAssemblePlainSingle(t *testing.T) {
	t.Parallel()
	a := testAssembler(DefaultLimits())
	payloads, err := a.Assemble(parsedText("hello there"), "*2022-07-29* **alice**: ", nil, nil, "reply-123")
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if len(payloads) != 1 {
		t.Fatalf("got %d payloads, want 1", len(payloads))
	}
	p := payloads[0]
	if p.Text != "*2022-07-29* **alice**: hello there" {
		t.Errorf("Text = %q", p.Text)
	}
	if len(p.Fragments) != 0 {
		t.Errorf("plain payload carries %d fragments", len(p.Fragments))
	}
	if p.ReplyTo != "reply-123" {
		t.Errorf("ReplyTo = %q", p.ReplyTo)
	}
	if p.Nonce == "" {
		t.Error("payload has no nonce")
	}
}

func TestAssembleAttachmentOnly(t *testing.T) {
	t.Parallel()
	a := testAssembler(DefaultLimits())
	up := &Upload{Name: "notes.txt", ContentType: "text/plain", Data: []byte("x")}
	payloads, err := a.Assemble(&slackfmt.ParsedMessage{}, "*ts* **bob**: ", []*Upload{up}, nil, "")
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if len(payloads) != 1 {
		t.Fatalf("got %d payloads, want 1", len(payloads))
	}
	p := payloads[0]
	if p.Text != "*ts* **bob**: *Attachments:*" {
		t.Errorf("Text = %q", p.Text)
	}
	if len(p.Uploads) != 1 || p.Uploads[0] != up {
		t.Error("upload did not ride on the payload")
	}
}

func TestAssemblePlaceholders(t *testing.T) {
	t.Parallel()
	a := testAssembler(DefaultLimits())
	payloads, err := a.Assemble(parsedText("body"), "", nil, []string{"lost.png"}, "")
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if len(payloads) != 1 {
		t.Fatalf("got %d payloads, want 1", len(payloads))
	}
	want := "body\n*[missing attachment: lost.png]*"
	if payloads[0].Text != want {
		t.Errorf("Text = %q, want %q", payloads[0].Text, want)
	}
}

func TestAssembleInlineImageGoesRich(t *testing.T) {
	t.Parallel()
	a := testAssembler(DefaultLimits())
	up := &Upload{Name: "pic.png", ContentType: "image/png", Data: []byte("x"), Inline: true}
	payloads, err := a.Assemble(parsedText("look"), "", []*Upload{up}, nil, "")
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if len(payloads) != 1 {
		t.Fatalf("got %d payloads, want 1", len(payloads))
	}
	p := payloads[0]
	if p.Text != "" || len(p.Fragments) == 0 {
		t.Errorf("inline image message should be rich, got Text=%q fragments=%d", p.Text, len(p.Fragments))
	}
	if len(p.Uploads) != 1 {
		t.Error("upload missing from payload")
	}
}

func TestAssembleRichLink(t *testing.T) {
	t.Parallel()
	a := testAssembler(DefaultLimits())
	parsed := &slackfmt.ParsedMessage{
		Text: "see docs",
		Spans: []slackfmt.Span{
			{Kind: slackfmt.SpanText, Text: "see "},
			{Kind: slackfmt.SpanLink, Text: "docs", URL: "https://example.com/docs"},
		},
		Rich: true,
	}
	payloads, err := a.Assemble(parsed, "hdr ", nil, nil, "")
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if len(payloads) != 1 || len(payloads[0].Fragments) != 1 {
		t.Fatalf("got %d payloads, want 1 rich payload", len(payloads))
	}
	want := "hdr see [docs](https://example.com/docs)"
	if got := payloads[0].Fragments[0].Markdown(); got != want {
		t.Errorf("fragment markup = %q, want %q", got, want)
	}
}

func TestAssembleLongTextSplits(t *testing.T) {
	t.Parallel()
	limits := DefaultLimits()
	limits.MaxMessageChars = 50
	limits.MaxEmbedChars = 40
	a := testAssembler(limits)

	text := strings.TrimSpace(strings.Repeat("word ", 30)) // 149 chars
	payloads, err := a.Assemble(parsedText(text), "", nil, nil, "")
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if len(payloads) != 1 {
		t.Fatalf("got %d payloads, want 1", len(payloads))
	}
	frags := payloads[0].Fragments
	if len(frags) < 4 {
		t.Fatalf("got %d fragments, want at least 4", len(frags))
	}
	for i, f := range frags {
		if n := utf8.RuneCountInString(f.Markdown()); n > limits.MaxEmbedChars {
			t.Errorf("fragment %d renders %d chars, limit %d", i, n, limits.MaxEmbedChars)
		}
	}
}

func TestAssembleSpillover(t *testing.T) {
	t.Parallel()
	limits := DefaultLimits()
	limits.MaxMessageChars = 10
	limits.MaxEmbedChars = 20
	limits.MaxEmbedsPerPayload = 2
	limits.MaxTotalEmbedChars = 100
	limits.MaxPayloadsPerMessage = 8
	a := testAssembler(limits)

	text := strings.TrimSpace(strings.Repeat("abcdefghijklmnop ", 6))
	up := &Upload{Name: "f.txt", ContentType: "text/plain", Data: []byte("x")}
	payloads, err := a.Assemble(parsedText(text), "", []*Upload{up}, nil, "parent-1")
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	if len(payloads) < 2 {
		t.Fatalf("got %d payloads, want spillover", len(payloads))
	}
	for i, p := range payloads {
		if p.Empty() {
			t.Errorf("payload %d is empty", i)
		}
		if len(p.Fragments) > limits.MaxEmbedsPerPayload {
			t.Errorf("payload %d carries %d fragments, limit %d", i, len(p.Fragments), limits.MaxEmbedsPerPayload)
		}
	}
	if len(payloads[0].Uploads) != 1 {
		t.Error("uploads must ride on the first payload")
	}
	if payloads[0].ReplyTo != "parent-1" {
		t.Error("reply link must ride on the first payload")
	}
	for _, p := range payloads[1:] {
		if len(p.Uploads) != 0 || p.ReplyTo != "" {
			t.Error("continuation payloads must not repeat uploads or reply links")
		}
	}
}

func TestAssembleTotalEmbedCeiling(t *testing.T) {
	t.Parallel()
	limits := DefaultLimits()
	limits.MaxMessageChars = 10
	limits.MaxEmbedChars = 50
	limits.MaxEmbedsPerPayload = 10
	limits.MaxTotalEmbedChars = 80
	a := testAssembler(limits)

	text := strings.TrimSpace(strings.Repeat("0123456789 ", 20))
	payloads, err := a.Assemble(parsedText(text), "", nil, nil, "")
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	for i, p := range payloads {
		total := 0
		for _, f := range p.Fragments {
			total += utf8.RuneCountInString(f.Markdown())
		}
		if total > limits.MaxTotalEmbedChars {
			t.Errorf("payload %d renders %d combined chars, limit %d", i, total, limits.MaxTotalEmbedChars)
		}
	}
}

func TestAssembleCapacityExceeded(t *testing.T) {
	t.Parallel()
	limits := DefaultLimits()
	limits.MaxMessageChars = 10
	limits.MaxEmbedChars = 20
	limits.MaxEmbedsPerPayload = 1
	limits.MaxTotalEmbedChars = 20
	limits.MaxPayloadsPerMessage = 2
	a := testAssembler(limits)

	text := strings.TrimSpace(strings.Repeat("0123456789 ", 20))
	_, err := a.Assemble(parsedText(text), "", nil, nil, "")
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("err = %v, want ErrCapacityExceeded", err)
	}
}

func TestAssembleRenderedMarkupFitsBudget(t *testing.T) {
	t.Parallel()
	// Mention markup is longer than its display text; the rendered
	// fragment still has to fit the embed ceiling.
	limits := DefaultLimits()
	limits.MaxEmbedChars = 30
	a := testAssembler(limits)

	var spans []slackfmt.Span
	for i := 0; i < 10; i++ {
		spans = append(spans,
			slackfmt.Span{Kind: slackfmt.SpanUserMention, Text: "al", DestID: "123456789012345678"},
			slackfmt.Span{Kind: slackfmt.SpanText, Text: " hi "},
		)
	}
	parsed := &slackfmt.ParsedMessage{Spans: spans, Rich: true}
	payloads, err := a.Assemble(parsed, "", nil, nil, "")
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	for _, p := range payloads {
		for i, f := range p.Fragments {
			if n := utf8.RuneCountInString(f.Markdown()); n > limits.MaxEmbedChars {
				t.Errorf("fragment %d renders %d chars, limit %d", i, n, limits.MaxEmbedChars)
			}
		}
	}
}

func TestAssembleDistinctNonces(t *testing.T) {
	t.Parallel()
	limits := DefaultLimits()
	limits.MaxMessageChars = 10
	limits.MaxEmbedChars = 20
	limits.MaxEmbedsPerPayload = 1
	a := testAssembler(limits)

	text := strings.TrimSpace(strings.Repeat("0123456789 ", 8))
	payloads, err := a.Assemble(parsedText(text), "", nil, nil, "")
	if err != nil {
		t.Fatalf("Assemble error: %v", err)
	}
	seen := map[string]bool{}
	for _, p := range payloads {
		if p.Nonce == "" {
			t.Fatal("payload without nonce")
		}
		if seen[p.Nonce] {
			t.Fatalf("duplicate nonce %q", p.Nonce)
		}
		seen[p.Nonce] = true
	}
}
