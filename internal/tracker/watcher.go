package tracker

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// watcher follows the external CLI's session tree so sessions created
// outside this process show up without a restart. It only ever adds to
// the tracker's belief; liveness policy stays with the tracker proper.
type watcher struct {
	tracker *Tracker
	fsw     *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	mu      sync.Mutex
}

// newWatcher creates a watcher over the sessions root and its project
// subdirectories. Returns nil if the root does not exist.
func newWatcher(t *Tracker) (*watcher, error) {
	if t.sessionsDir == "" {
		return nil, nil
	}
	if _, err := os.Stat(t.sessionsDir); err != nil {
		t.log.Debug().Str("dir", t.sessionsDir).Msg("sessions directory missing, watcher disabled")
		return nil, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fsw.Add(t.sessionsDir); err != nil {
		fsw.Close()
		return nil, err
	}

	// Watch existing project directories too; fsnotify is not recursive.
	entries, err := os.ReadDir(t.sessionsDir)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				_ = fsw.Add(filepath.Join(t.sessionsDir, entry.Name()))
			}
		}
	}

	return &watcher{
		tracker: t,
		fsw:     fsw,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

func (w *watcher) start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *watcher) run() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.handle(ev.Name, ev.Op)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.tracker.log.Error().Err(err).Msg("session watcher error")
		}
	}
}

// handle reacts to a created project directory or a written session
// file. Unknown session files get tracked; known ones are left alone
// (activity accounting belongs to completed turns, not file writes).
func (w *watcher) handle(path string, op fsnotify.Op) {
	if op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			_ = w.fsw.Add(path)
			return
		}
	}

	if !strings.HasSuffix(path, sessionFileExt) {
		return
	}

	sessionID := strings.TrimSuffix(filepath.Base(path), sessionFileExt)

	w.tracker.mu.RLock()
	_, known := w.tracker.sessions[sessionID]
	w.tracker.mu.RUnlock()
	if known {
		return
	}

	cutoff := w.tracker.now() - w.tracker.inactivityTimeout.Milliseconds()
	state, reason := w.tracker.scanSessionFile(path, cutoff)
	if state == nil {
		w.tracker.log.Debug().Str("file", path).Str("reason", reason).Msg("ignoring unparseable session file")
		return
	}

	w.tracker.mu.Lock()
	if _, exists := w.tracker.sessions[state.SessionID]; !exists {
		w.tracker.sessions[state.SessionID] = state
	}
	w.tracker.mu.Unlock()

	w.tracker.log.Info().
		Str("sessionId", state.SessionID).
		Str("projectPath", state.ProjectPath).
		Msg("discovered session from watcher")
}

func (w *watcher) stop() {
	close(w.stopCh)
	w.fsw.Close()
	<-w.doneCh
}
