// Package audit persists candidate and failure sets as timestamped CSV
// snapshots for traceability, and reads candidate snapshots back as unlink
// input. Column order is fixed per schema and never reordered.
package audit
