// Package ledger keeps a local SQLite history of harvested attachments and
// runs.
//
// Every written file is upserted by path together with its size and SHA-256,
// so repeated runs refresh rather than duplicate rows. Lookups by content
// hash report where identical bytes were saved before; nothing is
// de-duplicated on disk.
package ledger
