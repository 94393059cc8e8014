package harvest

import "context"

// Lister pages through messages matching a search filter.
type Lister interface {
	// ListMessages returns one page of message IDs. An empty cursor requests
	// the first page; an empty Page.NextCursor means there are no more pages.
	ListMessages(ctx context.Context, filter string, pageSize int, cursor string) (Page, error)
}

// MessageGetter fetches a message's structure at full fidelity.
type MessageGetter interface {
	GetMessage(ctx context.Context, id string) (*Part, error)
}

// AttachmentGetter retrieves an attachment's encoded payload.
type AttachmentGetter interface {
	// GetAttachment returns the base64url-encoded data. An empty string means
	// the service returned no data.
	GetAttachment(ctx context.Context, messageID, attachmentID string) (string, error)
}

// MailService is the remote mail RPC boundary consumed by the pipeline.
// This interface enables testing without hitting the real API.
type MailService interface {
	Lister
	MessageGetter
	AttachmentGetter
}
