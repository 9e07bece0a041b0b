// Copyright 2024-2026 Aiku AI

package importer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/util/exmime"
)

// AttachmentRef points at one file in the source export. Read once from
// the source message, consumed exactly once by the relocator.
type AttachmentRef struct {
	// URL is the authenticated download URL (Slack url_private).
	URL string
	// Name is the original filename.
	Name string
	// Title is the human-readable title, used for embed captions.
	Title string
	// MimeType is the declared MIME type.
	MimeType string
	// Size is the declared byte size, 0 when unknown.
	Size int64
}

// Upload is a fetched attachment re-packaged for destination upload.
type Upload struct {
	Name        string
	ContentType string
	Title       string
	Data        []byte
	// Inline reports whether the attachment renders inside a rich-text
	// block (images) rather than as a standalone file upload.
	Inline bool
}

// Relocator fetches attachment bytes from the source platform and
// classifies them for destination upload.
type Relocator struct {
	client   *http.Client
	token    string
	maxBytes int64
	log      zerolog.Logger
}

// NewRelocator creates a relocator. token, when non-empty, is sent as a
// bearer token on fetches (Slack url_private downloads require it for
// non-public exports). maxBytes caps one transfer; zero means no cap.
func NewRelocator(client *http.Client, token string, maxBytes int64, log zerolog.Logger) *Relocator {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Relocator{
		client:   client,
		token:    token,
		maxBytes: maxBytes,
		log:      log.With().Str("component", "relocator").Logger(),
	}
}

// Relocate fetches one attachment and re-packages it for upload. A
// fetch failure is reported per attachment; the caller sends the
// message with a placeholder instead of aborting it.
func (r *Relocator) Relocate(ctx context.Context, ref AttachmentRef) (*Upload, error) {
	if ref.URL == "" {
		return nil, fmt.Errorf("attachment %q has no download URL", ref.Name)
	}
	if r.maxBytes > 0 && ref.Size > r.maxBytes {
		return nil, fmt.Errorf("attachment %q is %d bytes, limit %d", ref.Name, ref.Size, r.maxBytes)
	}

	data, contentType, err := r.fetch(ctx, ref.URL)
	if err != nil {
		return nil, fmt.Errorf("fetching %q: %w", ref.Name, err)
	}

	mimeType := ref.MimeType
	if mimeType == "" {
		mimeType = contentType
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	name := repairFilename(ref.Name, mimeType)
	inline := strings.HasPrefix(mimeType, "image/")
	if !inline {
		// Anything that is not clearly image-renderable goes through
		// generic file handling; attachments are never silently skipped.
		r.log.Debug().Str("name", name).Str("mime_type", mimeType).Msg("Attachment classified as generic file")
	}

	return &Upload{
		Name:        name,
		ContentType: mimeType,
		Title:       ref.Title,
		Data:        data,
		Inline:      inline,
	}, nil
}

func (r *Relocator) fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("source returned HTTP %d", resp.StatusCode)
	}

	body := io.Reader(resp.Body)
	if r.maxBytes > 0 {
		body = io.LimitReader(resp.Body, r.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", err
	}
	if r.maxBytes > 0 && int64(len(data)) > r.maxBytes {
		return nil, "", fmt.Errorf("attachment exceeds %d byte limit", r.maxBytes)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// repairFilename makes sure the filename carries an extension matching
// its MIME type, so the destination renders it correctly.
func repairFilename(name, mimeType string) string {
	if name == "" {
		name = "attachment"
	}
	ext := exmime.ExtensionFromMimetype(mimeType)
	if ext == "" || strings.HasSuffix(strings.ToLower(name), ext) {
		return name
	}
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		// Keep a plausible existing extension rather than stacking two.
		return name
	}
	return name + ext
}
