package server

import (
	"encoding/json"
	"io"
	"net/http"
)

// listBackups handles GET /backup/.
func (s *Server) listBackups(w http.ResponseWriter, r *http.Request) {
	backups := s.store.ListBackups()
	writeJSON(w, http.StatusOK, map[string]any{
		"backups": backups,
		"count":   len(backups),
	})
}

// runBackup handles POST /backup. An empty file in the response means
// there was nothing to back up.
func (s *Server) runBackup(w http.ResponseWriter, r *http.Request) {
	file, err := s.store.PerformBackup()
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeBackupFailed, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"file":    file,
		"skipped": file == "",
	})
}

// restoreRequest is the body of POST /backup/restore.
type restoreRequest struct {
	// File names the snapshot to restore. Empty means most recent.
	File string `json:"file,omitempty"`
}

// restoreBackup handles POST /backup/restore. Restore is best-effort;
// failure detail is in the logs.
func (s *Server) restoreBackup(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}

	ok := s.store.RestoreFromBackup(req.File)

	status := http.StatusOK
	if !ok {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]bool{"success": ok})
}
