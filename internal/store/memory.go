// ABOUTME: In-memory Store implementation for testing and dev mode
// ABOUTME: Allows tests and local development to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memorySession struct {
	messages  []Message
	expiresAt time.Time
}

// MemoryStore is an in-memory Store implementation. It honors the same
// bounds (history limit, TTL) as SQLiteStore.
type MemoryStore struct {
	mu        sync.RWMutex
	opts      Options
	history   map[string]*memorySession       // keyed by SessionKey.String()
	state     map[string][]byte               // JSON-encoded SessionState
	artifacts map[string]map[int]Artifact     // session -> handle -> artifact
	rankings  []RankingRecord                 // additive, filtered at read time
	rankTTL   map[int]time.Time               // index into rankings -> expiry
	facts     map[string][]UserFact           // keyed by user ID
	nextFact  int64
	now       func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts Options) *MemoryStore {
	opts.applyDefaults()
	return &MemoryStore{
		opts:      opts,
		history:   make(map[string]*memorySession),
		state:     make(map[string][]byte),
		artifacts: make(map[string]map[int]Artifact),
		rankTTL:   make(map[int]time.Time),
		facts:     make(map[string][]UserFact),
		nextFact:  1,
		now:       time.Now,
	}
}

// GetHistory returns the session's messages in append order.
func (m *MemoryStore) GetHistory(ctx context.Context, key SessionKey) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.history[key.String()]
	if !ok || !m.now().Before(sess.expiresAt) {
		return []Message{}, nil
	}
	out := make([]Message, len(sess.messages))
	copy(out, sess.messages)
	return out, nil
}

// AppendHistory appends a batch, trims to the history limit and refreshes
// the TTL, all under one lock so the batch is all-or-nothing.
func (m *MemoryStore) AppendHistory(ctx context.Context, key SessionKey, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	sess, ok := m.history[key.String()]
	if !ok || !now.Before(sess.expiresAt) {
		sess = &memorySession{}
		m.history[key.String()] = sess
	}

	for _, msg := range msgs {
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}
		sess.messages = append(sess.messages, msg)
	}
	if over := len(sess.messages) - m.opts.HistoryLimit; over > 0 {
		sess.messages = sess.messages[over:]
	}
	sess.expiresAt = now.Add(m.opts.HistoryTTL)
	return nil
}

// ClearHistory deletes all history for a session.
func (m *MemoryStore) ClearHistory(ctx context.Context, key SessionKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.history, key.String())
	return nil
}

// GetState returns the stored session state or a fresh empty one.
func (m *MemoryStore) GetState(ctx context.Context, key SessionKey) (*SessionState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	blob, ok := m.state[key.String()]
	if !ok {
		return NewSessionState(), nil
	}
	return decodeState(blob)
}

// SaveState stores a snapshot of the session state.
func (m *MemoryStore) SaveState(ctx context.Context, key SessionKey, state *SessionState) error {
	blob, err := encodeState(state)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[key.String()] = blob
	return nil
}

// GetArtifact retrieves artifact content by handle.
func (m *MemoryStore) GetArtifact(ctx context.Context, key SessionKey, handle int) (*Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	arts, ok := m.artifacts[key.String()]
	if !ok {
		return nil, ErrNotFound
	}
	a, ok := arts[handle]
	if !ok {
		return nil, ErrNotFound
	}
	result := a
	return &result, nil
}

// SaveArtifact stores full artifact content under its handle.
func (m *MemoryStore) SaveArtifact(ctx context.Context, key SessionKey, artifact *Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	arts, ok := m.artifacts[key.String()]
	if !ok {
		arts = make(map[int]Artifact)
		m.artifacts[key.String()] = arts
	}
	arts[artifact.Handle] = *artifact
	return nil
}

// SaveRankings inserts rows, ignoring profile-type duplicates.
func (m *MemoryStore) SaveRankings(ctx context.Context, rows []RankingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, r := range rows {
		if r.CriteriaType == CriteriaProfile && m.hasProfileRowLocked(r) {
			continue
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		m.rankTTL[len(m.rankings)] = now.Add(m.opts.RankingsTTL)
		m.rankings = append(m.rankings, r)
	}
	return nil
}

func (m *MemoryStore) hasProfileRowLocked(r RankingRecord) bool {
	for i, existing := range m.rankings {
		if existing.CriteriaType == CriteriaProfile &&
			existing.UserID == r.UserID &&
			existing.ItemID == r.ItemID &&
			existing.BatchKey == r.BatchKey &&
			existing.CriteriaHash == r.CriteriaHash &&
			m.now().Before(m.rankTTL[i]) {
			return true
		}
	}
	return false
}

// GetRankingsByHash returns unexpired profile rows for the hash, score-desc.
func (m *MemoryStore) GetRankingsByHash(ctx context.Context, userID, batchKey, hash string) ([]RankingRecord, error) {
	return m.filterRankings(func(r RankingRecord) bool {
		return r.CriteriaType == CriteriaProfile &&
			r.UserID == userID && r.BatchKey == batchKey && r.CriteriaHash == hash
	}), nil
}

// GetRankingsByCriteria returns unexpired request rows for the exact
// criteria text, score-desc.
func (m *MemoryStore) GetRankingsByCriteria(ctx context.Context, userID, batchKey, criteria string) ([]RankingRecord, error) {
	return m.filterRankings(func(r RankingRecord) bool {
		return r.CriteriaType == CriteriaRequest &&
			r.UserID == userID && r.BatchKey == batchKey && r.CriteriaText == criteria
	}), nil
}

// ListRequestCriteria returns distinct free-text criteria, oldest first.
func (m *MemoryStore) ListRequestCriteria(ctx context.Context, userID, batchKey string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var criteria []string
	now := m.now()
	for i, r := range m.rankings {
		if r.CriteriaType != CriteriaRequest || r.UserID != userID || r.BatchKey != batchKey {
			continue
		}
		if !now.Before(m.rankTTL[i]) || seen[r.CriteriaText] {
			continue
		}
		seen[r.CriteriaText] = true
		criteria = append(criteria, r.CriteriaText)
	}
	return criteria, nil
}

// CleanupExpiredRankings drops expired rows, returning the count.
func (m *MemoryStore) CleanupExpiredRankings(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	kept := m.rankings[:0]
	keptTTL := make(map[int]time.Time)
	var deleted int64
	for i, r := range m.rankings {
		if now.Before(m.rankTTL[i]) {
			keptTTL[len(kept)] = m.rankTTL[i]
			kept = append(kept, r)
		} else {
			deleted++
		}
	}
	m.rankings = kept
	m.rankTTL = keptTTL
	return deleted, nil
}

func (m *MemoryStore) filterRankings(match func(RankingRecord) bool) []RankingRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []RankingRecord
	now := m.now()
	for i, r := range m.rankings {
		if match(r) && now.Before(m.rankTTL[i]) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ItemID < out[j].ItemID
	})
	return out
}

// AddUserFact stores a fact about a user.
func (m *MemoryStore) AddUserFact(ctx context.Context, userID, fact string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextFact
	m.nextFact++
	m.facts[userID] = append(m.facts[userID], UserFact{
		ID:        id,
		UserID:    userID,
		Fact:      fact,
		CreatedAt: m.now(),
	})
	return id, nil
}

// GetUserFacts returns all facts for a user in chronological order.
func (m *MemoryStore) GetUserFacts(ctx context.Context, userID string) ([]UserFact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]UserFact, len(m.facts[userID]))
	copy(out, m.facts[userID])
	return out, nil
}

// DeleteUserFacts deletes all facts for a user.
func (m *MemoryStore) DeleteUserFacts(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := int64(len(m.facts[userID]))
	delete(m.facts, userID)
	return deleted, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
