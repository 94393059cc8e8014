package gmail

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/teemow/inboxharvest/internal/harvest"
)

// authReasons are 403 error reasons that mean the credential itself is
// unusable, as opposed to quota or rate limiting.
var authReasons = map[string]bool{
	"authError":                       true,
	"insufficientPermissions":         true,
	"ACCESS_TOKEN_SCOPE_INSUFFICIENT": true,
}

// classifyError maps an API error onto the harvest error types. Credential
// failures become *harvest.AuthError, cancellation passes through, anything
// else is a *harvest.TransientServiceError.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if isAuthError(err) {
		return &harvest.AuthError{Err: err}
	}
	return &harvest.TransientServiceError{Op: op, Err: err}
}

func isAuthError(err error) bool {
	// Token refresh failures surface from the transport.
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return true
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}

	switch apiErr.Code {
	case http.StatusUnauthorized:
		return true
	case http.StatusForbidden:
		for _, item := range apiErr.Errors {
			if authReasons[item.Reason] {
				return true
			}
		}
		for _, detail := range apiErr.Details {
			if m, ok := detail.(map[string]any); ok && authReasons[stringField(m, "reason")] {
				return true
			}
		}
	}
	return false
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
