// Package tracker maintains the in-memory view of Claude CLI sessions.
package tracker

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clauderelay/clauderelay/internal/event"
	"github.com/clauderelay/clauderelay/internal/logging"
	"github.com/clauderelay/clauderelay/pkg/types"
)

const (
	// MaxRetries is the consecutive error ceiling before a session is
	// deactivated. The persistent store enforces its own independent
	// ceiling; the two are separate policies that happen to agree.
	MaxRetries = 3
	// InactivityTimeout is how long a session may sit idle before it is
	// considered inactive.
	InactivityTimeout = 30 * time.Minute
)

// SessionState is the tracker's per-session record. The true
// conversation state lives in the external CLI's session file; this is
// the process-local belief about it.
type SessionState struct {
	SessionID    string `json:"sessionId"`
	ProjectPath  string `json:"projectPath"`
	IsActive     bool   `json:"isActive"`
	LastActivity int64  `json:"lastActivity"`
	CreatedAt    int64  `json:"createdAt"`
	MessageCount int    `json:"messageCount"`
	Model        string `json:"model,omitempty"`
	LastError    string `json:"lastError,omitempty"`
	RetryCount   int    `json:"retryCount"`

	// FilePath is the backing session file when known (populated by the
	// bootstrap scan; derived from ProjectPath otherwise).
	FilePath string `json:"-"`
}

// Options configures a Tracker.
type Options struct {
	// SessionsDir is the root of the external CLI's session tree.
	SessionsDir string
	// MaxRetries overrides the default error ceiling.
	MaxRetries int
	// InactivityTimeout overrides the default idle timeout.
	InactivityTimeout time.Duration
	// SweepInterval is the periodic inactivity sweep cadence. Zero
	// disables the timer.
	SweepInterval time.Duration
	// Clock overrides the time source (tests).
	Clock func() time.Time
	// Bus receives tracker events. The global bus is used when nil.
	Bus *event.Bus
}

// Tracker is the session state tracker. All methods are safe for
// concurrent use.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]*SessionState

	sessionsDir       string
	maxRetries        int
	inactivityTimeout time.Duration
	clock             func() time.Time
	bus               *event.Bus
	log               zerolog.Logger

	watcher *watcher

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// New creates a Tracker and bootstraps it from the on-disk session
// tree. A missing or partially unreadable tree is not an error; the
// returned BootstrapReport says what was skipped.
func New(opts Options) (*Tracker, *BootstrapReport) {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = MaxRetries
	}
	if opts.InactivityTimeout <= 0 {
		opts.InactivityTimeout = InactivityTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	t := &Tracker{
		sessions:          make(map[string]*SessionState),
		sessionsDir:       opts.SessionsDir,
		maxRetries:        opts.MaxRetries,
		inactivityTimeout: opts.InactivityTimeout,
		clock:             opts.Clock,
		bus:               opts.Bus,
		log:               logging.Component("tracker"),
		stopCh:            make(chan struct{}),
		doneCh:            make(chan struct{}),
	}

	report := t.bootstrap()

	if opts.SweepInterval > 0 {
		go t.sweepLoop(opts.SweepInterval)
	} else {
		close(t.doneCh)
	}

	return t, report
}

// now returns the current time in ms since epoch.
func (t *Tracker) now() int64 {
	return t.clock().UnixMilli()
}

func (t *Tracker) publish(e event.Event) {
	if t.bus != nil {
		t.bus.Publish(e)
		return
	}
	event.Publish(e)
}

// Register upserts a session. Registering an already-tracked id keeps
// its createdAt and messageCount but resets retryCount and reactivates
// it: a new request carrying this id means "trust it again".
func (t *Tracker) Register(sessionID, projectPath, model string) {
	now := t.now()

	t.mu.Lock()
	state, known := t.sessions[sessionID]
	if known {
		state.ProjectPath = projectPath
		state.IsActive = true
		state.LastActivity = now
		state.RetryCount = 0
		state.LastError = ""
		if model != "" {
			state.Model = model
		}
	} else {
		state = &SessionState{
			SessionID:    sessionID,
			ProjectPath:  projectPath,
			IsActive:     true,
			LastActivity: now,
			CreatedAt:    now,
			Model:        model,
		}
		t.sessions[sessionID] = state
	}
	t.mu.Unlock()

	t.log.Info().
		Str("sessionId", sessionID).
		Str("projectPath", projectPath).
		Bool("known", known).
		Msg("session registered")

	t.publish(event.Event{
		Type: event.SessionRegistered,
		Data: event.SessionRegisteredData{SessionID: sessionID, ProjectPath: projectPath, Model: model},
	})
}

// UpdateActivity records one successful turn. Unknown ids are ignored.
func (t *Tracker) UpdateActivity(sessionID string) {
	t.mu.Lock()
	state, ok := t.sessions[sessionID]
	if !ok {
		t.mu.Unlock()
		return
	}
	state.LastActivity = t.now()
	state.IsActive = true
	state.MessageCount++
	count := state.MessageCount
	t.mu.Unlock()

	t.log.Debug().
		Str("sessionId", sessionID).
		Int("messageCount", count).
		Msg("session activity")

	t.publish(event.Event{
		Type: event.SessionActivity,
		Data: event.SessionActivityData{SessionID: sessionID, MessageCount: count},
	})
}

// MarkError records a failure against a session. Once RetryCount
// reaches the ceiling the session is deactivated. Unknown ids are
// ignored.
func (t *Tracker) MarkError(sessionID, message string) {
	t.mu.Lock()
	state, ok := t.sessions[sessionID]
	if !ok {
		t.mu.Unlock()
		return
	}
	state.LastError = message
	state.RetryCount++
	state.IsActive = state.RetryCount < t.maxRetries
	retries := state.RetryCount
	active := state.IsActive
	t.mu.Unlock()

	t.log.Warn().
		Str("sessionId", sessionID).
		Str("error", message).
		Int("retryCount", retries).
		Bool("isActive", active).
		Msg("session error")

	t.publish(event.Event{
		Type: event.SessionError,
		Data: event.SessionErrorData{SessionID: sessionID, Error: message, RetryCount: retries, IsActive: active},
	})
}

// Get returns a copy of a tracked session's state.
func (t *Tracker) Get(sessionID string) (SessionState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, ok := t.sessions[sessionID]
	if !ok {
		return SessionState{}, false
	}
	return *state, true
}

// ActiveSessions returns all sessions that are active and not timed
// out, for diagnostics and listing.
func (t *Tracker) ActiveSessions() []SessionState {
	now := t.now()
	cutoff := now - t.inactivityTimeout.Milliseconds()

	t.mu.RLock()
	defer t.mu.RUnlock()

	var active []SessionState
	for _, state := range t.sessions {
		if state.IsActive && state.LastActivity >= cutoff {
			active = append(active, *state)
		}
	}
	return active
}

// CleanupInactive deactivates sessions idle past the timeout. Entries
// are kept for inspection, never deleted. Returns how many sessions
// were flipped.
func (t *Tracker) CleanupInactive() int {
	now := t.now()
	cutoff := now - t.inactivityTimeout.Milliseconds()

	var timedOut []SessionState

	t.mu.Lock()
	for _, state := range t.sessions {
		if state.IsActive && state.LastActivity < cutoff {
			state.IsActive = false
			timedOut = append(timedOut, *state)
		}
	}
	t.mu.Unlock()

	for _, state := range timedOut {
		t.log.Info().
			Str("sessionId", state.SessionID).
			Int64("lastActivity", state.LastActivity).
			Msg("session timed out")
		t.publish(event.Event{
			Type: event.SessionTimeout,
			Data: event.SessionTimeoutData{SessionID: state.SessionID, LastActivity: state.LastActivity},
		})
	}

	return len(timedOut)
}

// Stats aggregates the tracker's view.
func (t *Tracker) Stats() types.TrackerStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := types.TrackerStats{TotalSessions: len(t.sessions)}
	for _, state := range t.sessions {
		if state.IsActive {
			stats.ActiveSessions++
		} else {
			stats.InactiveSessions++
		}
		if state.LastError != "" {
			stats.SessionsWithErrors++
		}
	}
	return stats
}

// StartWatching begins watching the sessions directory for files
// written by the external CLI, so newly created sessions show up
// without a restart. Safe to call when the directory does not exist;
// watching is then disabled.
func (t *Tracker) StartWatching() error {
	w, err := newWatcher(t)
	if err != nil {
		return err
	}
	if w != nil {
		t.watcher = w
		w.start()
	}
	return nil
}

// sweepLoop runs periodic inactivity sweeps until Close, so idle
// sessions flip inactive on time rather than lazily on the next
// health check.
func (t *Tracker) sweepLoop(interval time.Duration) {
	defer close(t.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			if swept := t.CleanupInactive(); swept > 0 {
				t.log.Info().Int("sessions", swept).Msg("inactivity sweep")
			}
		}
	}
}

// Close stops the inactivity sweep and the directory watcher.
func (t *Tracker) Close() {
	t.closeOnce.Do(func() {
		close(t.stopCh)
		<-t.doneCh
		if t.watcher != nil {
			t.watcher.stop()
		}
	})
}
