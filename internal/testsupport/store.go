package testsupport

import (
	"testing"

	"livelink/internal/runlog"
)

// MustOpenRunlog opens a run-history store in dir and registers cleanup.
func MustOpenRunlog(t testing.TB, dir string) *runlog.Store {
	t.Helper()

	store, err := runlog.Open(dir)
	if err != nil {
		t.Fatalf("runlog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
