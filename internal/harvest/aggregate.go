package harvest

// MessageOutcome is what happened to one message's attachments.
type MessageOutcome struct {
	MessageID string
	Written   int
	Existing  int
	Rejected  int
	DataGaps  int
	Bytes     int64
}

// Files is the number of attachments present on disk for the message
// after processing.
func (o MessageOutcome) Files() int {
	return o.Written + o.Existing
}

// Aggregator accumulates per-message outcomes into a RunSummary.
type Aggregator struct {
	summary RunSummary
}

// NewAggregator starts an empty summary for outputRoot.
func NewAggregator(outputRoot string) *Aggregator {
	return &Aggregator{summary: RunSummary{OutputRoot: outputRoot}}
}

// Observe adds one message's outcome.
func (a *Aggregator) Observe(o MessageOutcome) {
	if o.Files() > 0 {
		a.summary.MessagesWithFiles++
	}
	a.summary.FilesDownloaded += o.Files()
	a.summary.FilesSkipped += o.Existing
	a.summary.AttachmentsRejected += o.Rejected
	a.summary.DataGaps += o.DataGaps
	a.summary.BytesWritten += o.Bytes
}

// Finish sets the matched count and returns the summary by value.
func (a *Aggregator) Finish(matched int) RunSummary {
	s := a.summary
	s.MessagesMatched = matched
	return s
}
