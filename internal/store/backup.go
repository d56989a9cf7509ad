package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/clauderelay/clauderelay/internal/event"
	"github.com/clauderelay/clauderelay/pkg/types"
)

const (
	backupPrefix = "sessions-"
	backupSuffix = ".json"
	// backupTimeFormat embeds a zero-padded timestamp in the filename so
	// lexicographic order equals chronological order. Retention and
	// restore rely on the embedded timestamp, not file mtime, which does
	// not survive file copies.
	backupTimeFormat = "20060102T150405.000"
)

// PerformBackup snapshots all active sessions into a timestamped file
// and prunes old snapshots. Zero active sessions is a logged no-op,
// not an error; the returned filename is empty in that case.
func (s *Store) PerformBackup() (string, error) {
	active := true
	sessions := s.List(&types.SessionFilter{IsActive: &active})

	if len(sessions) == 0 {
		s.log.Info().Msg("no active sessions, skipping backup")
		return "", nil
	}

	backup := types.SessionBackup{
		Timestamp:    s.now(),
		SessionCount: len(sessions),
		Sessions:     sessions,
	}

	if err := os.MkdirAll(s.backupsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backups directory: %w", err)
	}

	name := backupPrefix + s.clock().UTC().Format(backupTimeFormat) + backupSuffix
	path := filepath.Join(s.backupsDir, name)

	data, err := json.MarshalIndent(backup, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal backup: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	s.log.Info().Str("file", name).Int("sessions", len(sessions)).Msg("backup complete")
	s.publish(event.Event{
		Type: event.BackupCompleted,
		Data: event.BackupCompletedData{File: name, SessionCount: len(sessions)},
	})

	s.cleanupBackups()

	return name, nil
}

// ListBackups returns backup filenames, newest first.
func (s *Store) ListBackups() []string {
	names := s.backupNames()
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names
}

// backupNames returns all snapshot filenames in no particular order.
func (s *Store) backupNames() []string {
	entries, err := os.ReadDir(s.backupsDir)
	if err != nil {
		return nil
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
			continue
		}
		names = append(names, name)
	}
	return names
}

// cleanupBackups keeps only the maxBackups most recent snapshots,
// judged by the timestamp embedded in the filename.
func (s *Store) cleanupBackups() {
	names := s.ListBackups()
	if len(names) <= s.maxBackups {
		return
	}

	for _, name := range names[s.maxBackups:] {
		path := filepath.Join(s.backupsDir, name)
		if err := os.Remove(path); err != nil {
			s.log.Warn().Err(err).Str("file", name).Msg("failed to remove old backup")
			continue
		}
		s.log.Debug().Str("file", name).Msg("removed old backup")
	}
}

// RestoreFromBackup merges a snapshot into the live metadata map.
// With an empty filename the most recent snapshot is used (the
// lexicographically last name, which the filename format makes
// chronological). The merge is strictly additive: sessions absent
// from the snapshot are left untouched. Restore is best-effort; any
// failure returns false with the cause logged, never an error.
func (s *Store) RestoreFromBackup(file string) bool {
	if file == "" {
		names := s.backupNames()
		if len(names) == 0 {
			s.log.Warn().Str("dir", s.backupsDir).Msg("no backups to restore")
			return false
		}
		sort.Strings(names)
		file = names[len(names)-1]
	}

	path := file
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.backupsDir, file)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		s.log.Warn().Err(err).Str("file", file).Msg("failed to read backup")
		return false
	}

	var backup types.SessionBackup
	if err := json.Unmarshal(data, &backup); err != nil {
		s.log.Warn().Err(err).Str("file", file).Msg("failed to parse backup")
		return false
	}

	s.mu.Lock()
	for i := range backup.Sessions {
		session := backup.Sessions[i]
		s.sessions[session.SessionID] = &session
	}
	if err := s.persist(); err != nil {
		s.log.Error().Err(err).Msg("failed to persist restored sessions")
	}
	s.mu.Unlock()

	// Report the payload size, not the file header; the two can
	// disagree in a hand-edited or truncated snapshot.
	restored := len(backup.Sessions)
	s.log.Info().Str("file", file).Int("sessions", restored).Msg("backup restored")
	s.publish(event.Event{
		Type: event.BackupRestored,
		Data: event.BackupRestoredData{File: file, SessionCount: restored},
	})

	return true
}
