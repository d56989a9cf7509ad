package event

import "github.com/clauderelay/clauderelay/pkg/types"

// SessionRegisteredData accompanies SessionRegistered.
type SessionRegisteredData struct {
	SessionID   string `json:"sessionId"`
	ProjectPath string `json:"projectPath"`
	Model       string `json:"model,omitempty"`
}

// SessionActivityData accompanies SessionActivity.
type SessionActivityData struct {
	SessionID    string `json:"sessionId"`
	MessageCount int    `json:"messageCount"`
}

// SessionErrorData accompanies SessionError.
type SessionErrorData struct {
	SessionID  string `json:"sessionId"`
	Error      string `json:"error"`
	RetryCount int    `json:"retryCount"`
	IsActive   bool   `json:"isActive"`
}

// SessionTimeoutData accompanies SessionTimeout.
type SessionTimeoutData struct {
	SessionID    string `json:"sessionId"`
	LastActivity int64  `json:"lastActivity"`
}

// RecoveryStartedData accompanies RecoveryStarted.
type RecoveryStartedData struct {
	SessionID      string                    `json:"sessionId,omitempty"`
	OperationType  types.OperationType       `json:"operationType"`
	Classification types.ErrorClassification `json:"classification"`
	RetryCount     int                       `json:"retryCount"`
}

// RecoveryCompletedData accompanies RecoveryCompleted.
type RecoveryCompletedData struct {
	SessionID string               `json:"sessionId,omitempty"`
	Result    types.RecoveryResult `json:"result"`
}

// BackupCompletedData accompanies BackupCompleted.
type BackupCompletedData struct {
	File         string `json:"file"`
	SessionCount int    `json:"sessionCount"`
}

// BackupRestoredData accompanies BackupRestored.
type BackupRestoredData struct {
	File         string `json:"file"`
	SessionCount int    `json:"sessionCount"`
}

// ChatStartedData accompanies ChatStarted.
type ChatStartedData struct {
	SessionID   string `json:"sessionId,omitempty"`
	ProjectPath string `json:"projectPath"`
	Resumed     bool   `json:"resumed"`
}

// ChatCompletedData accompanies ChatCompleted.
type ChatCompletedData struct {
	SessionID string `json:"sessionId"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}
