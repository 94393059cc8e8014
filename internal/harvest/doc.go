// Package harvest downloads mail attachments matching a search filter.
//
// A run builds a filter (package query), enumerates every matching message
// across all result pages, walks each message's part tree depth-first,
// selects attachment candidates by file extension, fetches and decodes their
// payloads and hands them to a storage.Writer:
//
//	h := harvest.New(client, storage.NewWriter("downloads"),
//	    harvest.WithLogger(logger))
//	summary, err := h.Run(ctx, query.DefaultOptions(), harvest.DefaultPolicy())
//
// The mail service is reached through the MailService interface. Failures
// are typed: *AuthError and *WriteError are fatal, *TransientServiceError may
// be retried by the caller (see Classify). Missing payloads are counted as
// data gaps and never fail a run.
package harvest
