// Package immich wraps the media server HTTP API operations livelink uses:
// liveness and credential checks, asset metadata fetch, and the live-photo
// link mutation. The HTTP client is injectable for tests.
package immich
