// Package session provides per-session concurrency control and the
// artifact registry.
//
// KeyedMutex serializes turns for one session while leaving different
// sessions fully concurrent. Coordinator wraps a whole turn (load state
// and history, run the pipeline, persist) inside the session's lock so
// two concurrent requests for the same session can never read stale state
// and clobber each other's writes.
//
// The registry helpers (RegisterArtifact, QueueForDisplay,
// RenderAvailableArtifacts) are pure functions over store.SessionState:
// they assign monotonically increasing handles, track what should be
// shown to the user this turn, and render the prompt section that tells
// the pipeline which artifacts it can reference without loading content.
package session
