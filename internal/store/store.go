// ABOUTME: Store interface and data types for dxtr persistence
// ABOUTME: Defines SessionKey, Message, SessionState, Artifact, RankingRecord and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Default bounds for per-session conversation history and cached rankings.
const (
	DefaultHistoryLimit = 100
	DefaultHistoryTTL   = 24 * time.Hour
	DefaultRankingsTTL  = 24 * time.Hour
)

// SessionKey identifies one conversation: all per-session state is scoped
// to a (user, session) pair.
type SessionKey struct {
	UserID    string
	SessionID string
}

// String renders the key in "user:session" form for logging and map keys.
func (k SessionKey) String() string {
	return k.UserID + ":" + k.SessionID
}

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one element of a conversation turn. Messages are append-only:
// once stored they are never mutated, only trimmed from the head when the
// history exceeds its bound.
type Message struct {
	Role        string
	Content     string
	ToolName    string // for tool messages: name of the invoked tool
	ToolPayload string // for tool messages: structured call/result JSON
	CreatedAt   time.Time
}

// ArtifactType categorizes a computed result
type ArtifactType string

const (
	ArtifactRankings    ArtifactType = "rankings"
	ArtifactRepoSummary ArtifactType = "repository-summary"
	ArtifactProfile     ArtifactType = "profile"
)

// ArtifactMeta is the lightweight description kept in session state so the
// pipeline can list available artifacts without loading their content.
type ArtifactMeta struct {
	Summary   string       `json:"summary"`
	Type      ArtifactType `json:"type"`
	CreatedAt time.Time    `json:"created_at"`
}

// Artifact is a full computed result: content is stored separately from
// session state and fetched on demand by handle.
type Artifact struct {
	Handle  int
	Content string
	Meta    ArtifactMeta
}

// SessionState is the mutable per-session record loaded at the start of
// every turn and persisted at most once at turn end. The artifact map and
// handle counter implement the per-session artifact registry.
type SessionState struct {
	HasProfile     bool                 `json:"has_profile"`
	HasRepoSummary bool                 `json:"has_repo_summary"`
	ProfileContent string               `json:"profile_content,omitempty"`
	Artifacts      map[int]ArtifactMeta `json:"artifacts"`
	NextHandle     int                  `json:"next_handle"`
	PendingDisplay []int                `json:"pending_display,omitempty"`
}

// NewSessionState returns an empty state with the handle counter at 1.
func NewSessionState() *SessionState {
	return &SessionState{
		Artifacts:  make(map[int]ArtifactMeta),
		NextHandle: 1,
	}
}

// CriteriaType distinguishes how a ranking batch was keyed
type CriteriaType string

const (
	CriteriaProfile CriteriaType = "profile" // exact match on criteria hash
	CriteriaRequest CriteriaType = "request" // fuzzy match on criteria text
)

// RankingRecord is one cached relevance score for one item. Profile-type
// records are unique on (user, item, batch, type, hash); request-type
// records are additive history with fuzzy matching at read time.
type RankingRecord struct {
	UserID       string
	ItemID       string
	BatchKey     string // e.g. the paper date being ranked
	CriteriaType CriteriaType
	CriteriaText string
	CriteriaHash string // set only for profile-type records
	Score        int
	Reason       string
	CreatedAt    time.Time
}

// UserFact is one remembered fact about a user, feeding profile synthesis.
type UserFact struct {
	ID        int64
	UserID    string
	Fact      string
	CreatedAt time.Time
}

// HistoryStore holds bounded, expiring conversation history per session.
type HistoryStore interface {
	// GetHistory returns messages in append order. Unknown or expired
	// sessions yield an empty slice, not an error.
	GetHistory(ctx context.Context, key SessionKey) ([]Message, error)

	// AppendHistory appends a batch atomically, trims the stored sequence
	// to the history limit (oldest first) and refreshes the session TTL.
	// Appending an empty batch is a no-op.
	AppendHistory(ctx context.Context, key SessionKey, msgs []Message) error

	// ClearHistory deletes all history for a session.
	ClearHistory(ctx context.Context, key SessionKey) error
}

// StateStore holds session state and artifact content.
type StateStore interface {
	// GetState returns the session state, or a fresh empty state if the
	// session has none yet.
	GetState(ctx context.Context, key SessionKey) (*SessionState, error)
	SaveState(ctx context.Context, key SessionKey, state *SessionState) error

	// GetArtifact returns ErrNotFound if no content exists for the handle.
	GetArtifact(ctx context.Context, key SessionKey, handle int) (*Artifact, error)
	SaveArtifact(ctx context.Context, key SessionKey, artifact *Artifact) error
}

// RankingStore persists cached per-item relevance scores.
type RankingStore interface {
	// SaveRankings inserts one row per scored item. Profile-type rows use
	// insert-or-ignore semantics (no overwrite of a cached score);
	// request-type rows are plain inserts.
	SaveRankings(ctx context.Context, rows []RankingRecord) error

	// GetRankingsByHash returns unexpired profile-type rows for the exact
	// criteria hash, sorted by score descending.
	GetRankingsByHash(ctx context.Context, userID, batchKey, hash string) ([]RankingRecord, error)

	// GetRankingsByCriteria returns unexpired request-type rows stored
	// under the exact criteria text, sorted by score descending.
	GetRankingsByCriteria(ctx context.Context, userID, batchKey, criteria string) ([]RankingRecord, error)

	// ListRequestCriteria returns the distinct free-text criteria strings
	// previously used for (user, batch), oldest first.
	ListRequestCriteria(ctx context.Context, userID, batchKey string) ([]string, error)

	// CleanupExpiredRankings deletes expired rows, returning the count.
	CleanupExpiredRankings(ctx context.Context) (int64, error)
}

// FactStore holds per-user facts in chronological order.
type FactStore interface {
	AddUserFact(ctx context.Context, userID, fact string) (int64, error)
	GetUserFacts(ctx context.Context, userID string) ([]UserFact, error)
	DeleteUserFacts(ctx context.Context, userID string) (int64, error)
}

// Store combines all persistence used by the server. SQLiteStore and
// MemoryStore implement the full interface.
type Store interface {
	HistoryStore
	StateStore
	RankingStore
	FactStore

	// Close releases any resources held by the store
	Close() error
}
