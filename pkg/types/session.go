// Package types provides the core data types for the Claude Relay server.
package types

// SessionMetadata is the durable record kept by the persistent store.
// It is the cross-restart twin of the tracker's in-memory state and is
// allowed to drift from it: the tracker owns liveness policy, the store
// owns history.
type SessionMetadata struct {
	SessionID    string         `json:"sessionId"`
	ProjectPath  string         `json:"projectPath"`
	Model        string         `json:"model,omitempty"`
	CreatedAt    int64          `json:"createdAt"`
	LastActivity int64          `json:"lastActivity"`
	MessageCount int            `json:"messageCount"`
	IsActive     bool           `json:"isActive"`
	RetryCount   int            `json:"retryCount"`
	LastError    string         `json:"lastError,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	CustomData   map[string]any `json:"customData,omitempty"`
}

// SessionBackup is a timestamped snapshot of all active session
// metadata at backup time.
type SessionBackup struct {
	Timestamp    int64             `json:"timestamp"`
	SessionCount int               `json:"sessionCount"`
	Sessions     []SessionMetadata `json:"sessions"`
}

// SessionFilter selects sessions from the store. All set fields are
// combined with AND semantics.
type SessionFilter struct {
	// IsActive filters on the active flag when non-nil.
	IsActive *bool
	// ProjectPath filters on an exact project path match.
	ProjectPath string
	// Since keeps only sessions whose last activity is at or after this
	// timestamp (ms since epoch).
	Since int64
}

// StoreStats summarizes the persistent store's contents.
type StoreStats struct {
	TotalSessions       int     `json:"totalSessions"`
	ActiveSessions      int     `json:"activeSessions"`
	SessionsWithErrors  int     `json:"sessionsWithErrors"`
	AverageMessageCount float64 `json:"averageMessageCount"`
	OldestCreatedAt     int64   `json:"oldestCreatedAt"`
	NewestCreatedAt     int64   `json:"newestCreatedAt"`
}

// TrackerStats summarizes the in-memory tracker's view.
type TrackerStats struct {
	TotalSessions      int `json:"totalSessions"`
	ActiveSessions     int `json:"activeSessions"`
	InactiveSessions   int `json:"inactiveSessions"`
	SessionsWithErrors int `json:"sessionsWithErrors"`
}

// SessionHealth is a point-in-time health check result for a tracked
// session. The sub-facts are independent so callers can tell "gone"
// apart from "temporarily broken".
type SessionHealth struct {
	IsValid      bool   `json:"isValid"`
	Exists       bool   `json:"exists"`
	IsAccessible bool   `json:"isAccessible"`
	LastActivity int64  `json:"lastActivity"`
	Error        string `json:"error,omitempty"`
}

// ContinuationDecision is the tracker's verdict on whether a session
// may be resumed, retried, or must be replaced.
type ContinuationDecision struct {
	IsValid         bool   `json:"isValid"`
	CanContinue     bool   `json:"canContinue"`
	ShouldRetry     bool   `json:"shouldRetry"`
	ShouldCreateNew bool   `json:"shouldCreateNew"`
	Error           string `json:"error,omitempty"`
}
