package testutil

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/clauderelay/clauderelay/internal/event"
	"github.com/clauderelay/clauderelay/internal/recovery"
	"github.com/clauderelay/clauderelay/internal/server"
	"github.com/clauderelay/clauderelay/internal/store"
	"github.com/clauderelay/clauderelay/internal/tracker"
)

// TestServer wraps a running server instance for integration tests.
// The CLI is a StubCLI and the recovery engine's backoff sleeps are
// disabled, so failure scenarios run instantly.
type TestServer struct {
	Server      *server.Server
	BaseURL     string
	CLI         *StubCLI
	Tracker     *tracker.Tracker
	Store       *store.Store
	Bus         *event.Bus
	SessionsDir string
	TempDir     string
	port        int
}

// StartTestServer creates and starts a test server on a free port.
func StartTestServer() (*TestServer, error) {
	tempDir, err := os.MkdirTemp("", "clauderelay-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	sessionsDir := filepath.Join(tempDir, "sessions")
	if err := os.MkdirAll(sessionsDir, 0755); err != nil {
		os.RemoveAll(tempDir)
		return nil, err
	}

	port, err := findAvailablePort()
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to find available port: %w", err)
	}

	bus := event.NewBus()

	tr, _ := tracker.New(tracker.Options{SessionsDir: sessionsDir, Bus: bus})

	st, err := store.New(store.Options{
		Path:       filepath.Join(tempDir, "sessions.json"),
		BackupsDir: filepath.Join(tempDir, "backups"),
		Bus:        bus,
	})
	if err != nil {
		bus.Close()
		os.RemoveAll(tempDir)
		return nil, err
	}

	eng := recovery.New(recovery.Options{
		Tracker: tr,
		Store:   st,
		Bus:     bus,
		Sleep:   func(context.Context, time.Duration) error { return nil },
	})

	cli := NewStubCLI()

	srvConfig := server.DefaultConfig()
	srvConfig.Port = port

	srv := server.New(srvConfig, tr, st, eng, cli, bus)

	go func() {
		_ = srv.Start()
	}()

	baseURL := fmt.Sprintf("http://localhost:%d", port)
	if err := waitForServer(baseURL, 10*time.Second); err != nil {
		srv.Shutdown(context.Background())
		bus.Close()
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("server failed to start: %w", err)
	}

	return &TestServer{
		Server:      srv,
		BaseURL:     baseURL,
		CLI:         cli,
		Tracker:     tr,
		Store:       st,
		Bus:         bus,
		SessionsDir: sessionsDir,
		TempDir:     tempDir,
		port:        port,
	}, nil
}

// Stop shuts down the test server and cleans up.
func (ts *TestServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if ts.Server != nil {
		if err := ts.Server.Shutdown(ctx); err != nil {
			return err
		}
	}
	if ts.Tracker != nil {
		ts.Tracker.Close()
	}
	if ts.Bus != nil {
		ts.Bus.Close()
	}
	if ts.TempDir != "" {
		os.RemoveAll(ts.TempDir)
	}
	return nil
}

// Client returns a new test client for this server.
func (ts *TestServer) Client() *TestClient {
	return NewTestClient(ts.BaseURL)
}

// SSEClient returns a new SSE client for this server.
func (ts *TestServer) SSEClient() *SSEClient {
	return NewSSEClient(ts.BaseURL)
}

// WriteSessionFile lays a session file out the way the external CLI
// does, so continuation validation can pass for the given id.
func (ts *TestServer) WriteSessionFile(projectPath, sessionID string) error {
	encoded := encodePath(projectPath)
	dir := filepath.Join(ts.SessionsDir, encoded)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	content := fmt.Sprintf("{\"type\":\"summary\",\"cwd\":%q}\n", projectPath)
	return os.WriteFile(filepath.Join(dir, sessionID+".jsonl"), []byte(content), 0644)
}

func encodePath(path string) string {
	out := []rune(path)
	for i, r := range out {
		switch r {
		case '/', '\\', '.', ':':
			out[i] = '-'
		}
	}
	return string(out)
}

// findAvailablePort finds an available TCP port.
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// waitForServer polls until the server answers or the timeout passes.
func waitForServer(baseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: time.Second}

	for time.Now().Before(deadline) {
		resp, err := client.Get(baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("server did not become ready within %s", timeout)
}
