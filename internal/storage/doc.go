// Package storage persists harvested attachments to a deterministic layout:
//
//	<output_root>/<message_id>/<safe_filename>
//
// Filenames are sanitized for common filesystems and bounded in length.
// Writes go through a temporary file and a rename, so re-running over an
// overlapping window replaces files in place and never leaves duplicates or
// half-written files behind. Content is not de-duplicated across messages.
package storage
