// ABOUTME: JSON codec for SessionState blobs shared by the SQLite and memory stores
// ABOUTME: Decoding normalizes nil maps and the handle counter so callers never see a half-empty state

package store

import (
	"encoding/json"
	"fmt"
)

func encodeState(state *SessionState) ([]byte, error) {
	blob, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encoding session state: %w", err)
	}
	return blob, nil
}

func decodeState(blob []byte) (*SessionState, error) {
	state := NewSessionState()
	if err := json.Unmarshal(blob, state); err != nil {
		return nil, fmt.Errorf("decoding session state: %w", err)
	}
	if state.Artifacts == nil {
		state.Artifacts = make(map[int]ArtifactMeta)
	}
	if state.NextHandle < 1 {
		state.NextHandle = 1
	}
	return state, nil
}
