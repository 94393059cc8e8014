package harvest

import (
	"context"
	"encoding/base64"
	"iter"
	"mime"
	"slices"
	"strings"
)

// DefaultExtensions are the file types kept when the PDF/image policy is active.
var DefaultExtensions = []string{"pdf", "png", "jpg", "jpeg"}

// Policy decides which candidate attachments are fetched and persisted.
type Policy struct {
	// OnlyPDFAndImages restricts harvesting to Extensions.
	OnlyPDFAndImages bool

	// Extensions overrides DefaultExtensions when non-empty.
	Extensions []string
}

// DefaultPolicy keeps PDFs and common image types only.
func DefaultPolicy() Policy {
	return Policy{OnlyPDFAndImages: true}
}

// Accepts reports whether filename passes the policy. Extensions are
// compared case-insensitively.
func (p Policy) Accepts(filename string) bool {
	if !p.OnlyPDFAndImages {
		return true
	}

	ext := extension(filename)
	if ext == "" {
		return false
	}

	allowed := p.Extensions
	if len(allowed) == 0 {
		allowed = DefaultExtensions
	}
	return slices.ContainsFunc(allowed, func(a string) bool {
		return strings.EqualFold(strings.TrimPrefix(strings.TrimSpace(a), "."), ext)
	})
}

// AcceptsPart is Accepts for a candidate part. A filename without an
// extension falls back to the part's content type, so an "application/pdf"
// part named "scan" passes the default policy.
func (p Policy) AcceptsPart(part *Part) bool {
	if !p.OnlyPDFAndImages {
		return true
	}
	if part == nil {
		return false
	}
	if extension(part.Filename) != "" {
		return p.Accepts(part.Filename)
	}
	return slices.ContainsFunc(typeExtensions(part.ContentType), func(ext string) bool {
		return p.Accepts("x" + ext)
	})
}

// typeExtensions returns the extensions registered for contentType, each
// with its leading dot.
func typeExtensions(contentType string) []string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil
	}
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil {
		return nil
	}
	return exts
}

// extension returns the lower-cased text after the last dot, ignoring any
// path separators a sender may have put in the name.
func extension(filename string) string {
	if i := strings.LastIndexAny(filename, `/\`); i >= 0 {
		filename = filename[i+1:]
	}
	i := strings.LastIndexByte(filename, '.')
	if i < 0 || i == len(filename)-1 {
		return ""
	}
	return strings.ToLower(filename[i+1:])
}

// SkipReason explains why a candidate produced no blob.
type SkipReason string

const (
	SkipRejected SkipReason = "rejected"
	SkipDataGap  SkipReason = "data_gap"
	SkipExisting SkipReason = "existing"
)

// FetchConfig controls Fetch.
type FetchConfig struct {
	Policy Policy

	// Exists reports attachments that are already persisted. They are
	// skipped without a fetch call. Optional.
	Exists func(part *Part) bool

	// OnSkip is called for every candidate that does not produce a blob. Optional.
	OnSkip func(part *Part, reason SkipReason)
}

func (c FetchConfig) skip(part *Part, reason SkipReason) {
	if c.OnSkip != nil {
		c.OnSkip(part, reason)
	}
}

// Fetch retrieves the payload of every accepted candidate of one message.
// Rejected candidates never cause a fetch. Missing or undecodable payloads
// are data gaps: they are reported through OnSkip and never yielded as
// errors. A failed fetch call is yielded as an error and ends the sequence.
func Fetch(ctx context.Context, svc AttachmentGetter, messageID string, candidates iter.Seq[*Part], cfg FetchConfig) iter.Seq2[AttachmentBlob, error] {
	return func(yield func(AttachmentBlob, error) bool) {
		for part := range candidates {
			if !cfg.Policy.AcceptsPart(part) {
				cfg.skip(part, SkipRejected)
				continue
			}
			if cfg.Exists != nil && cfg.Exists(part) {
				cfg.skip(part, SkipExisting)
				continue
			}

			encoded, err := svc.GetAttachment(ctx, messageID, part.AttachmentID)
			if err != nil {
				yield(AttachmentBlob{}, serviceError("get_attachment", err))
				return
			}

			data, err := decodePayload(encoded)
			if err != nil || len(data) == 0 {
				cfg.skip(part, SkipDataGap)
				continue
			}

			blob := AttachmentBlob{
				MessageID:   messageID,
				Filename:    part.Filename,
				ContentType: part.ContentType,
				Data:        data,
			}
			if !yield(blob, nil) {
				return
			}
		}
	}
}

// decodePayload decodes Gmail's base64url data. Gmail normally sends padded
// base64url, but unpadded and standard alphabets are accepted too.
func decodePayload(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, ErrDataGap
	}

	var firstErr error
	for _, enc := range []*base64.Encoding{
		base64.URLEncoding,
		base64.RawURLEncoding,
		base64.StdEncoding,
		base64.RawStdEncoding,
	} {
		data, err := enc.DecodeString(encoded)
		if err == nil {
			return data, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}
