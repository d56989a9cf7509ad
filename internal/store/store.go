// Package store provides the durable session metadata store.
//
// The store is the cross-restart twin of the tracker's in-memory view:
// simpler, persistent, and deliberately allowed to drift from it. The
// whole metadata map is rewritten on every mutation; at the expected
// session volume (tens to low hundreds) that buys crash consistency
// for free and leaves no partial-record corruption path.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clauderelay/clauderelay/internal/event"
	"github.com/clauderelay/clauderelay/internal/logging"
	"github.com/clauderelay/clauderelay/pkg/types"
)

// maxRetries is the store's own error ceiling. It matches the
// tracker's today but is enforced independently; the two systems
// evolve their policy separately.
const maxRetries = 3

// Options configures a Store.
type Options struct {
	// Path is the metadata file.
	Path string
	// BackupsDir holds timestamped snapshots.
	BackupsDir string
	// BackupInterval is the periodic backup cadence. Zero disables the
	// timer.
	BackupInterval time.Duration
	// MaxBackups is how many snapshots retention keeps.
	MaxBackups int
	// Clock overrides the time source (tests).
	Clock func() time.Time
	// Bus receives store events. The global bus is used when nil.
	Bus *event.Bus
}

// Store is the persistent session store. All methods are safe for
// concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*types.SessionMetadata

	path       string
	backupsDir string
	maxBackups int
	clock      func() time.Time
	bus        *event.Bus
	log        zerolog.Logger

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// New creates a Store, loading any existing metadata file. A missing
// file is a fresh start; a malformed one is logged and ignored rather
// than blocking startup.
func New(opts Options) (*Store, error) {
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 10
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	s := &Store{
		sessions:   make(map[string]*types.SessionMetadata),
		path:       opts.Path,
		backupsDir: opts.BackupsDir,
		maxBackups: opts.MaxBackups,
		clock:      opts.Clock,
		bus:        opts.Bus,
		log:        logging.Component("store"),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	s.load()

	if opts.BackupInterval > 0 {
		go s.backupLoop(opts.BackupInterval)
	} else {
		close(s.doneCh)
	}

	return s, nil
}

// load reads the metadata file into memory.
func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("path", s.path).Msg("could not read session store")
		}
		return
	}

	var sessions map[string]*types.SessionMetadata
	if err := json.Unmarshal(data, &sessions); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("session store file is malformed, starting empty")
		return
	}

	s.sessions = sessions
	s.log.Info().Int("sessions", len(sessions)).Msg("session store loaded")
}

// now returns the current time in ms since epoch.
func (s *Store) now() int64 {
	return s.clock().UnixMilli()
}

func (s *Store) publish(e event.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
		return
	}
	event.Publish(e)
}

// persist writes the entire metadata map to disk atomically. Callers
// must hold the lock.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename store file: %w", err)
	}

	return nil
}

// Put upserts a session record and persists synchronously.
func (s *Store) Put(metadata types.SessionMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := metadata
	s.sessions[metadata.SessionID] = &copied
	return s.persist()
}

// Get returns a session record by id.
func (s *Store) Get(sessionID string) (types.SessionMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return types.SessionMetadata{}, false
	}
	return *session, true
}

// List returns sessions matching the filter, most recently active
// first. The ordering is a contract: listing callers rely on it.
func (s *Store) List(filter *types.SessionFilter) []types.SessionMetadata {
	s.mu.RLock()
	result := make([]types.SessionMetadata, 0, len(s.sessions))
	for _, session := range s.sessions {
		if filter != nil {
			if filter.IsActive != nil && session.IsActive != *filter.IsActive {
				continue
			}
			if filter.ProjectPath != "" && session.ProjectPath != filter.ProjectPath {
				continue
			}
			if filter.Since != 0 && session.LastActivity < filter.Since {
				continue
			}
		}
		result = append(result, *session)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].LastActivity != result[j].LastActivity {
			return result[i].LastActivity > result[j].LastActivity
		}
		return result[i].SessionID < result[j].SessionID
	})

	return result
}

// UpdateActivity bumps a session's last activity. increment controls
// whether the message counter moves too. Returns false for unknown
// ids.
func (s *Store) UpdateActivity(sessionID string, increment bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return false
	}

	session.LastActivity = s.now()
	session.IsActive = true
	if increment {
		session.MessageCount++
	}

	if err := s.persist(); err != nil {
		s.log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to persist activity update")
	}
	return true
}

// MarkError records a failure against the persisted copy, enforcing
// the store's own retry ceiling. Returns false for unknown ids.
func (s *Store) MarkError(sessionID, errMsg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return false
	}

	session.LastError = errMsg
	session.RetryCount++
	session.IsActive = session.RetryCount < maxRetries

	if err := s.persist(); err != nil {
		s.log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to persist error mark")
	}
	return true
}

// Delete removes a session record.
func (s *Store) Delete(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return false
	}
	delete(s.sessions, sessionID)

	if err := s.persist(); err != nil {
		s.log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to persist deletion")
	}
	return true
}

// Stats aggregates the store's contents.
func (s *Store) Stats() types.StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := types.StoreStats{TotalSessions: len(s.sessions)}
	if len(s.sessions) == 0 {
		return stats
	}

	totalMessages := 0
	for _, session := range s.sessions {
		if session.IsActive {
			stats.ActiveSessions++
		}
		if session.LastError != "" {
			stats.SessionsWithErrors++
		}
		totalMessages += session.MessageCount
		if stats.OldestCreatedAt == 0 || session.CreatedAt < stats.OldestCreatedAt {
			stats.OldestCreatedAt = session.CreatedAt
		}
		if session.CreatedAt > stats.NewestCreatedAt {
			stats.NewestCreatedAt = session.CreatedAt
		}
	}
	stats.AverageMessageCount = float64(totalMessages) / float64(len(s.sessions))

	return stats
}

// Export dumps all sessions as JSON or flattened CSV. The CSV is
// operator tooling with a fixed column order and plain comma joins,
// not a stable interchange format.
func (s *Store) Export(format string) ([]byte, error) {
	sessions := s.List(nil)

	switch strings.ToLower(format) {
	case "json":
		return json.MarshalIndent(sessions, "", "  ")
	case "csv":
		var b strings.Builder
		b.WriteString("sessionId,projectPath,model,createdAt,lastActivity,messageCount,isActive,retryCount,lastError\n")
		for _, session := range sessions {
			fmt.Fprintf(&b, "%s,%s,%s,%d,%d,%d,%t,%d,%s\n",
				session.SessionID,
				session.ProjectPath,
				session.Model,
				session.CreatedAt,
				session.LastActivity,
				session.MessageCount,
				session.IsActive,
				session.RetryCount,
				session.LastError,
			)
		}
		return []byte(b.String()), nil
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// backupLoop runs periodic backups until Close.
func (s *Store) backupLoop(interval time.Duration) {
	defer close(s.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.PerformBackup(); err != nil {
				s.log.Error().Err(err).Msg("periodic backup failed")
			}
		}
	}
}

// Close stops the backup timer and takes one final backup, so a clean
// shutdown never loses more than one interval of activity.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
		if _, err := s.PerformBackup(); err != nil {
			s.log.Error().Err(err).Msg("final backup failed")
		}
	})
}
