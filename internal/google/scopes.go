package google

import gmail "google.golang.org/api/gmail/v1"

// DefaultOAuthScopes are the scopes requested during authorization.
// Harvesting only reads mail, so nothing broader than gmail.readonly is asked for.
var DefaultOAuthScopes = []string{
	gmail.GmailReadonlyScope,
}
