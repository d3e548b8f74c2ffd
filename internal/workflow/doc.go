// Package workflow drives complete reconciliation runs. A Runner walks the
// link flow (identify, preview, confirm, mutate, record) and the unlink flow
// (load CSV, confirm, mutate, record), holding a file lock so concurrent
// invocations cannot interleave mutations. Dry runs and cancelled runs are
// guaranteed to issue no mutations.
package workflow
