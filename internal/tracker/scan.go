package tracker

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// sessionFileExt is the extension the external CLI uses for its
// newline-delimited JSON session files.
const sessionFileExt = ".jsonl"

// BootstrapReport says what the startup scan found. Skips are expected:
// the external CLI adds and removes directories concurrently.
type BootstrapReport struct {
	Tracked int
	Skipped []SkippedEntry
}

// SkippedEntry names one session file the scan could not use and why.
type SkippedEntry struct {
	Path   string
	Reason string
}

// sessionFileHeader is the subset of the first record we care about:
// it embeds the original working directory.
type sessionFileHeader struct {
	CWD string `json:"cwd"`
}

// bootstrap scans the session tree and seeds the tracker. Liveness is
// judged from each file's mtime against the inactivity timeout.
func (t *Tracker) bootstrap() *BootstrapReport {
	report := &BootstrapReport{}

	if t.sessionsDir == "" {
		return report
	}
	if _, err := os.Stat(t.sessionsDir); err != nil {
		t.log.Warn().Str("dir", t.sessionsDir).Err(err).Msg("sessions directory not readable, starting empty")
		return report
	}

	matches, err := doublestar.Glob(os.DirFS(t.sessionsDir), "*/*"+sessionFileExt)
	if err != nil {
		t.log.Warn().Err(err).Msg("session scan failed, starting empty")
		return report
	}

	now := t.now()
	cutoff := now - t.inactivityTimeout.Milliseconds()

	for _, rel := range matches {
		path := filepath.Join(t.sessionsDir, filepath.FromSlash(rel))
		state, reason := t.scanSessionFile(path, cutoff)
		if state == nil {
			report.Skipped = append(report.Skipped, SkippedEntry{Path: path, Reason: reason})
			t.log.Warn().Str("file", path).Str("reason", reason).Msg("skipped session file")
			continue
		}

		t.mu.Lock()
		if _, exists := t.sessions[state.SessionID]; !exists {
			t.sessions[state.SessionID] = state
			report.Tracked++
		}
		t.mu.Unlock()
	}

	t.log.Info().
		Int("tracked", report.Tracked).
		Int("skipped", len(report.Skipped)).
		Str("dir", t.sessionsDir).
		Msg("session scan complete")

	return report
}

// scanSessionFile builds a SessionState from one on-disk session file,
// or returns a skip reason.
func (t *Tracker) scanSessionFile(path string, cutoff int64) (*SessionState, string) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, "stat failed: " + err.Error()
	}

	sessionID := strings.TrimSuffix(filepath.Base(path), sessionFileExt)
	if sessionID == "" {
		return nil, "empty session id"
	}

	projectPath, err := readProjectPath(path)
	if err != nil {
		return nil, "unreadable first record: " + err.Error()
	}

	mtime := info.ModTime().UnixMilli()
	return &SessionState{
		SessionID:    sessionID,
		ProjectPath:  projectPath,
		IsActive:     mtime >= cutoff,
		LastActivity: mtime,
		CreatedAt:    mtime,
		FilePath:     path,
	}, ""
}

// readProjectPath parses the first record of a session file and
// returns its cwd field, the authoritative project path.
func readProjectPath(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", errEmptySessionFile
	}

	var header sessionFileHeader
	if err := json.Unmarshal(scanner.Bytes(), &header); err != nil {
		return "", err
	}
	if header.CWD == "" {
		return "", errMissingCWD
	}
	return header.CWD, nil
}

// sessionFilePath returns the expected backing file for a session,
// preferring the path recorded at scan time.
func (t *Tracker) sessionFilePath(state *SessionState) string {
	if state.FilePath != "" {
		return state.FilePath
	}
	return filepath.Join(t.sessionsDir, encodeProjectPath(state.ProjectPath), state.SessionID+sessionFileExt)
}

// encodeProjectPath mirrors the external CLI's directory naming: path
// separators and dots become dashes. Reversible enough to be stable,
// not meant to be decoded.
func encodeProjectPath(projectPath string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '.', ':':
			return '-'
		}
		return r
	}, projectPath)
}
