package types

// Config is the application configuration. Zero values are replaced
// with defaults by the config loader.
type Config struct {
	// Port is the HTTP listen port.
	Port int `json:"port,omitempty"`
	// LogLevel is the minimum log level (DEBUG, INFO, WARN, ERROR).
	LogLevel string `json:"logLevel,omitempty"`
	// LogPretty enables human-readable console logging.
	LogPretty bool `json:"logPretty,omitempty"`

	Claude  ClaudeConfig  `json:"claude,omitempty"`
	Tracker TrackerConfig `json:"tracker,omitempty"`
	Store   StoreConfig   `json:"store,omitempty"`
}

// ClaudeConfig configures the external CLI invocation.
type ClaudeConfig struct {
	// Binary is the CLI executable name or path.
	Binary string `json:"binary,omitempty"`
	// SessionsDir is the root of the CLI's on-disk session tree
	// (one subdirectory per project, one JSONL file per session).
	SessionsDir string `json:"sessionsDir,omitempty"`
	// Model is the default model for new sessions.
	Model string `json:"model,omitempty"`
	// TimeoutSeconds bounds a single CLI invocation.
	TimeoutSeconds int `json:"timeoutSeconds,omitempty"`
}

// TrackerConfig configures the in-memory session state tracker.
type TrackerConfig struct {
	// InactivityTimeoutMinutes is how long a session may sit idle
	// before it is considered inactive.
	InactivityTimeoutMinutes int `json:"inactivityTimeoutMinutes,omitempty"`
	// MaxRetries is the consecutive error ceiling before a session is
	// deactivated.
	MaxRetries int `json:"maxRetries,omitempty"`
	// SweepIntervalMinutes is how often the inactivity sweep runs.
	// Zero disables it.
	SweepIntervalMinutes int `json:"sweepIntervalMinutes,omitempty"`
	// Watch enables the fsnotify watcher on the sessions directory.
	Watch bool `json:"watch,omitempty"`
}

// StoreConfig configures the persistent session store.
type StoreConfig struct {
	// Path is the metadata file. Defaults under the XDG data dir.
	Path string `json:"path,omitempty"`
	// BackupsDir holds timestamped backup snapshots.
	BackupsDir string `json:"backupsDir,omitempty"`
	// BackupIntervalMinutes is the periodic backup cadence. Zero
	// disables the timer.
	BackupIntervalMinutes int `json:"backupIntervalMinutes,omitempty"`
	// MaxBackups is how many snapshot files retention keeps.
	MaxBackups int `json:"maxBackups,omitempty"`
}
