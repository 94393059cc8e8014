// Package cmd implements the command-line interface for inboxharvest.
//
// This package provides the following commands:
//   - harvest: Download invoice and receipt attachments from Gmail (default)
//   - auth: Authorize access to the mailbox and store the token
//   - query: Print the Gmail search filter a harvest would use
//   - serve: Start the MCP server on stdio
//   - version: Display version information
//
// The harvest command runs when no subcommand is given.
package cmd
