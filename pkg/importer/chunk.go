// Copyright 2024-2026 Aiku AI

package importer

import (
	"fmt"
	"strings"

	"github.com/aiku/slack2discord/pkg/importer/slackfmt"
)

// Fragment is one size-bounded slice of spans, ready to become a single
// rich-text block or plain text body segment. Fragments come out of
// Chunk in source order and must stay in that order.
type Fragment struct {
	Spans []slackfmt.Span
}

// Text returns the fragment's canonical text.
func (f Fragment) Text() string {
	var sb strings.Builder
	for _, sp := range f.Spans {
		sb.WriteString(sp.Text)
	}
	return sb.String()
}

// Markdown renders the fragment as Discord markup.
func (f Fragment) Markdown() string {
	var sb strings.Builder
	for _, sp := range f.Spans {
		sb.WriteString(sp.Markdown())
	}
	return sb.String()
}

// Len returns the fragment's character count, counted over display
// text like the chunking budget.
func (f Fragment) Len() int {
	n := 0
	for _, sp := range f.Spans {
		n += sp.Len()
	}
	return n
}

// Chunk splits ordered spans into fragments of at most budget
// characters. Splits happen at the last line break within the budget,
// then the last whitespace, and only cut inside a token when a single
// plain-text token is itself longer than the budget. Link and mention
// spans are never split internally: a span that does not fit moves
// whole to the next fragment, and an atomic span longer than the budget
// is a capacity error.
func Chunk(spans []slackfmt.Span, budget int) ([]Fragment, error) {
	if budget <= 0 {
		return nil, fmt.Errorf("%w: fragment budget %d", ErrCapacityExceeded, budget)
	}

	var frags []Fragment
	var cur Fragment
	curLen := 0

	flush := func() {
		if len(cur.Spans) > 0 {
			frags = append(frags, cur)
			cur = Fragment{}
			curLen = 0
		}
	}

	pending := make([]slackfmt.Span, len(spans))
	copy(pending, spans)

	for i := 0; i < len(pending); i++ {
		sp := pending[i]
		n := sp.Len()
		if n == 0 {
			continue
		}

		if curLen+n <= budget {
			cur.Spans = append(cur.Spans, sp)
			curLen += n
			continue
		}

		if sp.Kind != slackfmt.SpanText {
			if curLen == 0 {
				// Atomic span alone exceeds the budget; its URL or
				// identity cannot be split across fragments.
				return nil, fmt.Errorf("%w: %d-char span does not fit fragment budget %d",
					ErrCapacityExceeded, n, budget)
			}
			flush()
			i--
			continue
		}

		head, tail, ok := splitPlain(sp.Text, budget-curLen, curLen == 0)
		if !ok {
			// No safe boundary inside the remaining room; the fragment
			// already holds content, so close it and retry the span
			// against a full budget.
			flush()
			i--
			continue
		}
		if head != "" {
			cur.Spans = append(cur.Spans, slackfmt.Span{Kind: slackfmt.SpanText, Text: head})
		}
		flush()
		if tail != "" {
			pending[i] = slackfmt.Span{Kind: slackfmt.SpanText, Text: tail}
			i--
		}
	}
	flush()

	return frags, nil
}

// splitPlain cuts text so that the head fits in room characters,
// preferring the last line break, then the last whitespace. When the
// text has no boundary within room, it reports ok=false unless
// hardCutAllowed (the fragment is otherwise empty and the token alone
// exceeds the whole budget), in which case it cuts mid-token.
func splitPlain(text string, room int, hardCutAllowed bool) (head, tail string, ok bool) {
	runes := []rune(text)
	if room >= len(runes) {
		return text, "", true
	}
	if room <= 0 {
		return "", "", false
	}

	// A boundary at offset 0 would produce an empty head; treat it as no
	// boundary so the caller moves the whole span instead.
	prefix := runes[:room]
	if idx := lastIndexRune(prefix, '\n'); idx > 0 {
		return string(runes[:idx]), string(runes[idx:]), true
	}
	if idx := lastWhitespace(prefix); idx > 0 {
		return string(runes[:idx]), string(runes[idx:]), true
	}
	if hardCutAllowed {
		return string(runes[:room]), string(runes[room:]), true
	}
	return "", "", false
}

func lastIndexRune(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}

func lastWhitespace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		switch runes[i] {
		case ' ', '\t', '\n':
			return i
		}
	}
	return -1
}
