// Package google obtains an authorized session for the Gmail API.
//
// A Session is built from an OAuth client secret (downloaded from the Google
// Cloud console) and a persisted token. Tokens live in a JSON file or in the
// operating system keyring (TokenStore). When no token is stored and the
// process runs on a terminal, ObtainSession walks the user through the
// authorization flow: it prints the consent URL and accepts either the code
// or the full redirect URL pasted back. Refreshed tokens are written back to
// the store.
//
// Only the gmail.readonly scope is requested.
//
// Sessions are values passed explicitly to the Gmail client; there is no
// package-level state.
package google
