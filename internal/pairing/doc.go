// Package pairing joins unlinked photo candidates to companion video
// candidates on base filename, applying the drop-unmatched policy and the
// optional duplicate and timestamp-tolerance filters.
package pairing
