package tracker

import (
	"errors"
	"os"

	"github.com/clauderelay/clauderelay/pkg/types"
)

var (
	errEmptySessionFile = errors.New("session file has no records")
	errMissingCWD       = errors.New("first record has no cwd")
)

// Health-check error strings. These are part of the API: callers
// branch on them to tell "gone" apart from "temporarily broken" from
// "rate-limited by our own policy".
const (
	errSessionNotFound  = "Session not found"
	errFileNotFound     = "Session file does not exist"
	errFileInaccessible = "Session file is not accessible"
	errInactiveTimeout  = "Session inactive due to timeout"
	errMarkedInactive   = "Session marked as inactive"
	errExceededRetries  = "Session exceeded max retries"
)

// CheckHealth combines three independent facts about a session: is it
// tracked, does its backing file exist, and is that file accessible.
// Filesystem errors never escape; they land in the Error field.
func (t *Tracker) CheckHealth(sessionID string) types.SessionHealth {
	t.mu.RLock()
	state, ok := t.sessions[sessionID]
	if !ok {
		t.mu.RUnlock()
		return types.SessionHealth{Error: errSessionNotFound}
	}
	snapshot := *state
	t.mu.RUnlock()

	health := types.SessionHealth{LastActivity: snapshot.LastActivity}

	path := t.sessionFilePath(&snapshot)
	if _, err := os.Stat(path); err != nil {
		health.Error = errFileNotFound
		return health
	}
	health.Exists = true

	if !fileAccessible(path) {
		health.Error = errFileInaccessible
		return health
	}
	health.IsAccessible = true

	cutoff := t.now() - t.inactivityTimeout.Milliseconds()
	switch {
	case snapshot.LastActivity < cutoff:
		health.Error = errInactiveTimeout
	case snapshot.RetryCount >= t.maxRetries:
		health.Error = errExceededRetries
	case !snapshot.IsActive:
		health.Error = errMarkedInactive
	default:
		health.IsValid = true
	}

	return health
}

// ValidateForContinuation is the single decision point callers must
// consult before resuming a session. A session this flags invalid must
// never be resumed.
func (t *Tracker) ValidateForContinuation(sessionID string) types.ContinuationDecision {
	health := t.CheckHealth(sessionID)

	t.mu.RLock()
	state, tracked := t.sessions[sessionID]
	var snapshot SessionState
	if tracked {
		snapshot = *state
	}
	t.mu.RUnlock()

	decision := types.ContinuationDecision{Error: health.Error}

	// Nothing to resume: unknown session or missing backing file.
	if !tracked || !health.Exists {
		decision.ShouldCreateNew = true
		return decision
	}

	if !health.IsAccessible {
		if snapshot.RetryCount < t.maxRetries {
			decision.ShouldRetry = true
		} else {
			decision.ShouldCreateNew = true
		}
		return decision
	}

	if !health.IsValid {
		if snapshot.IsActive && snapshot.RetryCount < t.maxRetries {
			decision.ShouldRetry = true
		} else {
			decision.ShouldCreateNew = true
		}
		return decision
	}

	decision.IsValid = true
	decision.CanContinue = true
	return decision
}

// fileAccessible reports whether the file can be opened for reading
// and writing.
func fileAccessible(path string) bool {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return false
	}
	f.Close()
	return true
}
