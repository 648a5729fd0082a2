// ABOUTME: Artifact registry helpers operating on SessionState
// ABOUTME: Handle assignment, display queueing and the available-artifacts prompt section

package session

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dxtr-chat/dxtr/internal/store"
)

// RegisterArtifact assigns the next handle to a new artifact, records its
// metadata in the state's registry and advances the counter. Handles are
// strictly increasing within a session and never reused. Content is not
// touched here; the caller stores it under the same handle via the
// artifact content store.
func RegisterArtifact(state *store.SessionState, summary string, artifactType store.ArtifactType) int {
	handle := state.NextHandle
	state.Artifacts[handle] = store.ArtifactMeta{
		Summary:   summary,
		Type:      artifactType,
		CreatedAt: time.Now(),
	}
	state.NextHandle++
	return handle
}

// QueueForDisplay marks an artifact to be shown to the user this turn.
// Idempotent: queueing the same handle twice adds it once.
func QueueForDisplay(state *store.SessionState, handle int) {
	for _, h := range state.PendingDisplay {
		if h == handle {
			return
		}
	}
	state.PendingDisplay = append(state.PendingDisplay, handle)
}

// RenderAvailableArtifacts produces the system-prompt section listing what
// the pipeline can reference, sorted by handle. Returns the empty string
// when no artifacts exist.
func RenderAvailableArtifacts(state *store.SessionState) string {
	if len(state.Artifacts) == 0 {
		return ""
	}

	handles := make([]int, 0, len(state.Artifacts))
	for h := range state.Artifacts {
		handles = append(handles, h)
	}
	sort.Ints(handles)

	var b strings.Builder
	b.WriteString("# Available Artifacts\n")
	b.WriteString("Use display_artifact(handle) to show to user, read_artifact(handle) to load for discussion.\n\n")
	for _, h := range handles {
		fmt.Fprintf(&b, "%d: %s\n", h, state.Artifacts[h].Summary)
	}
	return b.String()
}
