package harvest

// MessageRef identifies a remote message without its content.
type MessageRef struct {
	ID string
}

// PartKind tags a Part as structural or as an attachment candidate.
type PartKind int

const (
	// PartStructural parts (multipart containers, text bodies) are traversed but never harvested.
	PartStructural PartKind = iota
	// PartCandidate parts carry both a filename and an attachment reference.
	PartCandidate
)

func (k PartKind) String() string {
	if k == PartCandidate {
		return "candidate"
	}
	return "structural"
}

// Part is one node of a message's MIME structure, as returned by a
// full-fidelity message fetch.
type Part struct {
	PartID      string
	Filename    string
	ContentType string

	// AttachmentID references the payload for retrieval. Empty for inline bodies.
	AttachmentID string

	// Data holds the encoded inline body, if the service returned one.
	Data string

	Size     int64
	Children []*Part
}

// Kind reports whether p is an attachment candidate.
func (p *Part) Kind() PartKind {
	if p != nil && p.Filename != "" && p.AttachmentID != "" {
		return PartCandidate
	}
	return PartStructural
}

// IsCandidate is shorthand for p.Kind() == PartCandidate.
func (p *Part) IsCandidate() bool {
	return p.Kind() == PartCandidate
}

// AttachmentBlob is a fetched attachment on its way to storage.
type AttachmentBlob struct {
	MessageID   string
	Filename    string
	ContentType string
	Data        []byte
}

// Page is one page of a message listing.
type Page struct {
	IDs []string
	// NextCursor is empty on the last page.
	NextCursor string
}

// RunSummary reports the outcome of a completed run.
type RunSummary struct {
	MessagesMatched   int    `json:"messages_matched"`
	MessagesWithFiles int    `json:"messages_with_files"`
	FilesDownloaded   int    `json:"files_downloaded"`
	OutputRoot        string `json:"output_root"`

	// FilesSkipped counts files already on disk that were not fetched again.
	// They are included in FilesDownloaded.
	FilesSkipped        int   `json:"files_skipped"`
	AttachmentsRejected int   `json:"attachments_rejected"`
	DataGaps            int   `json:"data_gaps"`
	BytesWritten        int64 `json:"bytes_written"`
}

// LogAttrs returns the summary as slog key-value pairs.
func (s RunSummary) LogAttrs() []any {
	return []any{
		"messages_matched", s.MessagesMatched,
		"messages_with_files", s.MessagesWithFiles,
		"files_downloaded", s.FilesDownloaded,
		"files_skipped", s.FilesSkipped,
		"attachments_rejected", s.AttachmentsRejected,
		"data_gaps", s.DataGaps,
		"bytes_written", s.BytesWritten,
		"output_root", s.OutputRoot,
	}
}
