// Package harvest_tools exposes the attachment harvester as MCP tools.
//
// Tools:
//   - harvest_attachments: search the mailbox and save matching attachments
//     under the server's output directory, returning the run summary
//   - build_search_query: show the Gmail search filter a harvest would use,
//     without touching the mailbox
//   - list_message_attachments: show one message's attachments, whether the
//     policy keeps them and their target paths
//
// Only one harvest runs at a time; a second call while one is in flight
// returns an error result.
package harvest_tools
