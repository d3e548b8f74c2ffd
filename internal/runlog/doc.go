// Package runlog keeps a small SQLite ledger of past reconciliation runs so
// operators can see when links were applied and which audit files belong to
// which run. The ledger is informational; audit CSVs remain the source of
// truth for retries.
package runlog
