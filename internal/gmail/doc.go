// Package gmail implements harvest.MailService on top of the Gmail API.
//
// The client lists message IDs for a search filter, fetches messages at full
// fidelity and converts their payload into a harvest.Part tree, and
// retrieves attachment payloads by ID. Every call runs in its own span and is
// counted in google_api_operations_total.
//
// Errors are classified at this boundary: 401 responses, 403 responses with
// an authorization reason and failed token refreshes become
// *harvest.AuthError; every other failure is a *harvest.TransientServiceError.
//
// Example usage:
//
//	session, err := google.ObtainSession(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	client, err := gmail.NewClient(ctx, session.HTTPClient())
//	if err != nil {
//	    return err
//	}
//	page, err := client.ListMessages(ctx, "has:attachment newer_than:30d", 500, "")
package gmail
