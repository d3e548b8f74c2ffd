// Package assetdb provides read-only queries against the media server's
// Postgres asset table.
//
// It finds companion-video candidates and unlinked photo candidates by
// filename, owning the video-suffix and base-filename derivation rules used
// as the join key. All queries are parameterized; the package never mutates
// the database.
package assetdb
