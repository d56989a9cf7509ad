package types

// ErrorType categorizes a failure by its message text.
type ErrorType string

const (
	ErrorTypeNetwork ErrorType = "network"
	ErrorTypeSession ErrorType = "session"
	ErrorTypeSystem  ErrorType = "system"
	ErrorTypeUser    ErrorType = "user"
	ErrorTypeUnknown ErrorType = "unknown"
)

// Severity ranks how serious a classified error is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Strategy is the recovery engine's decision for a failure.
type Strategy string

const (
	StrategyRetry    Strategy = "retry"
	StrategyFallback Strategy = "fallback"
	StrategyAbort    Strategy = "abort"
	StrategyDefer    Strategy = "defer"
)

// OperationType identifies what the caller was doing when it failed.
type OperationType string

const (
	OperationChat         OperationType = "chat"
	OperationContinuation OperationType = "chat_continuation"
	OperationBackup       OperationType = "backup"
)

// ErrorClassification is the pure, stateless result of classifying an
// error's message text.
type ErrorClassification struct {
	Type        ErrorType `json:"type"`
	Severity    Severity  `json:"severity"`
	Recoverable bool      `json:"recoverable"`
	Retryable   bool      `json:"retryable"`
	Permanent   bool      `json:"permanent"`
}

// RecoveryContext carries the per-attempt inputs to the recovery
// engine. It is constructed fresh for every failure and never stored.
type RecoveryContext struct {
	SessionID        string
	OperationType    OperationType
	ErrorMessage     string
	OriginalError    error
	RetryCount       int
	MaxRetries       int
	WorkingDirectory string
	UserPrompt       string
}

// RecoveryResult is the engine's decision, consumed by the caller.
type RecoveryResult struct {
	Success      bool     `json:"success"`
	Strategy     Strategy `json:"strategy"`
	NewSessionID string   `json:"newSessionId,omitempty"`
	Error        string   `json:"error,omitempty"`
	// RetryAfter is the backoff delay in milliseconds when Strategy is
	// retry.
	RetryAfter int64 `json:"retryAfter,omitempty"`
}
