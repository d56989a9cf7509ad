package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clauderelay/clauderelay/internal/event"
	"github.com/clauderelay/clauderelay/pkg/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	dir := t.TempDir()
	return newTestStoreAt(t, filepath.Join(dir, "sessions.json"), filepath.Join(dir, "backups"))
}

func newTestStoreAt(t *testing.T, path, backupsDir string) (*Store, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	bus := event.NewBus()
	t.Cleanup(func() { bus.Close() })

	s, err := New(Options{
		Path:       path,
		BackupsDir: backupsDir,
		MaxBackups: 3,
		Clock:      clock.Now,
		Bus:        bus,
	})
	require.NoError(t, err)
	return s, clock
}

func metadata(id string, active bool) types.SessionMetadata {
	return types.SessionMetadata{
		SessionID:    id,
		ProjectPath:  "/tmp/proj",
		CreatedAt:    time.Now().UnixMilli(),
		LastActivity: time.Now().UnixMilli(),
		IsActive:     active,
	}
}

func TestPutAndGet(t *testing.T) {
	s, _ := newTestStore(t)

	md := metadata("s1", true)
	md.Model = "sonnet"
	require.NoError(t, s.Put(md))

	got, ok := s.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "sonnet", got.Model)
	assert.Equal(t, "/tmp/proj", got.ProjectPath)
}

func TestPutPersistsSynchronously(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")
	s, _ := newTestStoreAt(t, path, filepath.Join(dir, "backups"))

	require.NoError(t, s.Put(metadata("s1", true)))

	// A second store over the same file sees the record.
	reopened, _ := newTestStoreAt(t, path, filepath.Join(dir, "backups"))
	got, ok := reopened.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "s1", got.SessionID)
}

func TestFilterCorrectness(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.Put(metadata("active-session", true)))
	require.NoError(t, s.Put(metadata("inactive-session", false)))

	active := true
	got := s.List(&types.SessionFilter{IsActive: &active})
	require.Len(t, got, 1)
	assert.Equal(t, "active-session", got[0].SessionID)

	inactive := false
	got = s.List(&types.SessionFilter{IsActive: &inactive})
	require.Len(t, got, 1)
	assert.Equal(t, "inactive-session", got[0].SessionID)
}

func TestFilterCombinesWithAND(t *testing.T) {
	s, _ := newTestStore(t)

	a := metadata("a", true)
	a.ProjectPath = "/tmp/one"
	a.LastActivity = 1000
	b := metadata("b", true)
	b.ProjectPath = "/tmp/two"
	b.LastActivity = 2000
	require.NoError(t, s.Put(a))
	require.NoError(t, s.Put(b))

	active := true
	got := s.List(&types.SessionFilter{IsActive: &active, ProjectPath: "/tmp/two", Since: 1500})
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].SessionID)

	got = s.List(&types.SessionFilter{ProjectPath: "/tmp/two", Since: 2500})
	assert.Empty(t, got)
}

func TestListSortsByLastActivityDescending(t *testing.T) {
	s, _ := newTestStore(t)

	for i, id := range []string{"oldest", "middle", "newest"} {
		md := metadata(id, true)
		md.LastActivity = int64((i + 1) * 1000)
		require.NoError(t, s.Put(md))
	}

	got := s.List(nil)
	require.Len(t, got, 3)
	assert.Equal(t, "newest", got[0].SessionID)
	assert.Equal(t, "middle", got[1].SessionID)
	assert.Equal(t, "oldest", got[2].SessionID)
}

func TestUpdateActivity(t *testing.T) {
	s, clock := newTestStore(t)

	md := metadata("s1", false)
	md.MessageCount = 2
	require.NoError(t, s.Put(md))

	clock.Advance(time.Minute)
	require.True(t, s.UpdateActivity("s1", true))

	got, _ := s.Get("s1")
	assert.Equal(t, 3, got.MessageCount)
	assert.True(t, got.IsActive)
	assert.Equal(t, clock.Now().UnixMilli(), got.LastActivity)

	// The increment knob can be off: touch lastActivity only.
	require.True(t, s.UpdateActivity("s1", false))
	got, _ = s.Get("s1")
	assert.Equal(t, 3, got.MessageCount)

	assert.False(t, s.UpdateActivity("ghost", true))
}

func TestMarkErrorEnforcesCeiling(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Put(metadata("s1", true)))

	for i := 1; i <= maxRetries; i++ {
		require.True(t, s.MarkError("s1", "boom"))
		got, _ := s.Get("s1")
		assert.Equal(t, i, got.RetryCount)
		assert.Equal(t, i < maxRetries, got.IsActive)
	}

	got, _ := s.Get("s1")
	assert.Equal(t, "boom", got.LastError)
	assert.False(t, got.IsActive)

	assert.False(t, s.MarkError("ghost", "boom"))
}

func TestStatsAggregation(t *testing.T) {
	s, _ := newTestStore(t)

	a := metadata("a", true)
	a.MessageCount = 5
	a.CreatedAt = 1000
	b := metadata("b", false)
	b.MessageCount = 3
	b.LastError = "broken"
	b.CreatedAt = 2000
	require.NoError(t, s.Put(a))
	require.NoError(t, s.Put(b))

	stats := s.Stats()
	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 1, stats.ActiveSessions)
	assert.Equal(t, 1, stats.SessionsWithErrors)
	assert.Equal(t, 4.0, stats.AverageMessageCount)
	assert.Equal(t, int64(1000), stats.OldestCreatedAt)
	assert.Equal(t, int64(2000), stats.NewestCreatedAt)
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	backups := filepath.Join(dir, "backups")
	s, _ := newTestStoreAt(t, filepath.Join(dir, "sessions.json"), backups)

	for _, id := range []string{"a", "b", "c"} {
		md := metadata(id, true)
		md.MessageCount = 7
		require.NoError(t, s.Put(md))
	}

	file, err := s.PerformBackup()
	require.NoError(t, err)
	require.NotEmpty(t, file)

	// A fresh store with an empty metadata file plays the part of a
	// process that lost its state.
	fresh, _ := newTestStoreAt(t, filepath.Join(dir, "restored.json"), backups)
	require.True(t, fresh.RestoreFromBackup(""))

	for _, id := range []string{"a", "b", "c"} {
		got, ok := fresh.Get(id)
		require.True(t, ok, "session %s should be restored", id)
		assert.Equal(t, 7, got.MessageCount)
	}

	// Restoring twice is idempotent.
	require.True(t, fresh.RestoreFromBackup(""))
	assert.Equal(t, 3, fresh.Stats().TotalSessions)
}

func TestBackupSkipsWhenNoActiveSessions(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Put(metadata("s1", false)))

	file, err := s.PerformBackup()
	require.NoError(t, err)
	assert.Empty(t, file, "backup with zero active sessions is a no-op")
}

func TestBackupExcludesInactiveSessions(t *testing.T) {
	dir := t.TempDir()
	backups := filepath.Join(dir, "backups")
	s, _ := newTestStoreAt(t, filepath.Join(dir, "sessions.json"), backups)

	require.NoError(t, s.Put(metadata("keep", true)))
	require.NoError(t, s.Put(metadata("drop", false)))

	_, err := s.PerformBackup()
	require.NoError(t, err)

	fresh, _ := newTestStoreAt(t, filepath.Join(dir, "restored.json"), backups)
	require.True(t, fresh.RestoreFromBackup(""))

	_, ok := fresh.Get("keep")
	assert.True(t, ok)
	_, ok = fresh.Get("drop")
	assert.False(t, ok)
}

func TestRestoreIsAdditive(t *testing.T) {
	dir := t.TempDir()
	backups := filepath.Join(dir, "backups")
	s, clock := newTestStoreAt(t, filepath.Join(dir, "sessions.json"), backups)

	require.NoError(t, s.Put(metadata("snapshotted", true)))
	_, err := s.PerformBackup()
	require.NoError(t, err)

	// A session created after the snapshot must survive the restore.
	clock.Advance(time.Second)
	survivor := metadata("survivor", true)
	survivor.MessageCount = 9
	require.NoError(t, s.Put(survivor))

	require.True(t, s.RestoreFromBackup(""))

	got, ok := s.Get("survivor")
	require.True(t, ok)
	assert.Equal(t, 9, got.MessageCount)

	_, ok = s.Get("snapshotted")
	assert.True(t, ok)
}

func TestRestoreFailuresReturnFalse(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestStoreAt(t, filepath.Join(dir, "sessions.json"), filepath.Join(dir, "missing-backups"))

	assert.False(t, s.RestoreFromBackup(""), "missing backups directory")
	assert.False(t, s.RestoreFromBackup("no-such-file.json"), "missing file")

	backups := filepath.Join(dir, "backups")
	require.NoError(t, os.MkdirAll(backups, 0755))
	bad := filepath.Join(backups, "sessions-garbage.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0644))
	assert.False(t, s.RestoreFromBackup(bad), "unparseable backup")
}

func TestRestoreReportsPayloadSessionCount(t *testing.T) {
	dir := t.TempDir()
	backups := filepath.Join(dir, "backups")
	require.NoError(t, os.MkdirAll(backups, 0755))

	// Snapshot whose header count disagrees with its payload.
	snapshot := types.SessionBackup{
		Timestamp:    time.Now().UnixMilli(),
		SessionCount: 99,
		Sessions:     []types.SessionMetadata{metadata("s1", true)},
	}
	data, err := json.Marshal(snapshot)
	require.NoError(t, err)
	file := backupPrefix + "20260101T000000.000" + backupSuffix
	require.NoError(t, os.WriteFile(filepath.Join(backups, file), data, 0644))

	bus := event.NewBus()
	t.Cleanup(func() { bus.Close() })
	restored := make(chan event.Event, 1)
	bus.Subscribe(event.BackupRestored, func(e event.Event) {
		restored <- e
	})

	clock := newFakeClock()
	s, err := New(Options{
		Path:       filepath.Join(dir, "sessions.json"),
		BackupsDir: backups,
		MaxBackups: 3,
		Clock:      clock.Now,
		Bus:        bus,
	})
	require.NoError(t, err)

	require.True(t, s.RestoreFromBackup(file))
	assert.Equal(t, 1, s.Stats().TotalSessions)

	select {
	case e := <-restored:
		payload, ok := e.Data.(event.BackupRestoredData)
		require.True(t, ok)
		assert.Equal(t, 1, payload.SessionCount, "event reports how many sessions were merged")
	case <-time.After(time.Second):
		t.Fatal("no restore event received")
	}
}

func TestRestorePicksMostRecentBackup(t *testing.T) {
	dir := t.TempDir()
	backups := filepath.Join(dir, "backups")
	s, clock := newTestStoreAt(t, filepath.Join(dir, "sessions.json"), backups)

	first := metadata("s1", true)
	first.MessageCount = 1
	require.NoError(t, s.Put(first))
	_, err := s.PerformBackup()
	require.NoError(t, err)

	clock.Advance(time.Second)
	second := metadata("s1", true)
	second.MessageCount = 2
	require.NoError(t, s.Put(second))
	_, err = s.PerformBackup()
	require.NoError(t, err)

	fresh, _ := newTestStoreAt(t, filepath.Join(dir, "restored.json"), backups)
	require.True(t, fresh.RestoreFromBackup(""))

	got, _ := fresh.Get("s1")
	assert.Equal(t, 2, got.MessageCount, "default restore takes the newest snapshot")
}

func TestRetentionKeepsMaxBackups(t *testing.T) {
	s, clock := newTestStore(t)
	require.NoError(t, s.Put(metadata("s1", true)))

	for i := 0; i < 5; i++ {
		_, err := s.PerformBackup()
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	names := s.ListBackups()
	assert.Len(t, names, 3, "retention keeps maxBackups snapshots")

	// Newest first, and the oldest two are gone.
	for i := 1; i < len(names); i++ {
		assert.Greater(t, names[i-1], names[i])
	}
}

func TestExportJSON(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Put(metadata("s1", true)))

	data, err := s.Export("json")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sessionId": "s1"`)
}

func TestExportCSV(t *testing.T) {
	s, _ := newTestStore(t)
	md := metadata("s1", true)
	md.MessageCount = 4
	require.NoError(t, s.Put(md))

	data, err := s.Export("csv")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "sessionId,projectPath,model,createdAt,lastActivity,messageCount,isActive,retryCount,lastError", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "s1,/tmp/proj,"))
}

func TestExportUnknownFormat(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Export("xml")
	assert.Error(t, err)
}

func TestCloseTakesFinalBackup(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Put(metadata("s1", true)))

	s.Close()

	assert.Len(t, s.ListBackups(), 1, "Close performs one final backup")
}
