// Package fileengine provides a lending.SnapshotStore on the local file system.
//
// The snapshot lives in three JSON Lines files inside one directory:
//
//	works.jsonl      one WorkRecord per line, keyed by lower-cased "title|author"
//	borrowers.jsonl  one BorrowerRecord per line, keyed by ID
//	copies.jsonl     one CopyRecord per line, keyed by copy ID
//
// Files are only ever appended to. A line that cannot be decoded, for example one torn by a crash
// in the middle of a write, is skipped and logged on every read, the rest of the file stays usable.
package fileengine
