package types

// ChatRequest is the body of POST /chat and POST /chat/stream.
type ChatRequest struct {
	// Prompt is the user message. Required.
	Prompt string `json:"prompt"`
	// SessionID resumes an existing session when set.
	SessionID string `json:"sessionId,omitempty"`
	// ProjectPath is the working directory for the invocation.
	ProjectPath string `json:"projectPath,omitempty"`
	// Model overrides the default model. Only meaningful for new
	// sessions; ignored on resume.
	Model string `json:"model,omitempty"`
}

// ChatResponse is the result of a synchronous chat execution.
type ChatResponse struct {
	SessionID string `json:"sessionId"`
	Result    string `json:"result"`
	// Resumed reports whether an existing session was continued.
	Resumed bool `json:"resumed"`
	// Recovery is set when the request only succeeded (or failed) after
	// the recovery engine intervened.
	Recovery *RecoveryResult `json:"recovery,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Healthy bool          `json:"healthy"`
	Tracker *TrackerStats `json:"tracker,omitempty"`
	Store   *StoreStats   `json:"store,omitempty"`
}
