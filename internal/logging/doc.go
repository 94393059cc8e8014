// Package logging provides structured logging utilities for inboxharvest.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Logger construction from level/format options (text or JSON)
//   - Consistent attribute naming (message_id, filename, path, filter, ...)
//   - PII sanitization (email anonymization, token masking)
//
// # Usage Patterns
//
// Build the process logger once and pass it down explicitly:
//
//	logger, err := logging.New(logging.Options{Level: "debug", Format: "json"})
//	if err != nil {
//	    return err
//	}
//	logging.WithMessage(logger, id).Info("attachment written",
//	    logging.Path(path))
//
// # Security Considerations
//
//   - User emails are hashed to prevent PII leakage while allowing correlation
//   - Tokens are never logged directly
package logging
