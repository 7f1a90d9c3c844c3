package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nodom/internal/session"
)

// syncBuffer is a bytes.Buffer safe for the serve goroutine and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var listeningRE = regexp.MustCompile(`Listening on (http://\S+)`)

// startServe runs serve on a free port and returns its base URL.
func startServe(t *testing.T, config string) string {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	out := &syncBuffer{}

	cmd := newServeCommand(&ServeOptions{
		RootOptions: &RootOptions{Format: "text"},
		IDs:         session.NewFixedGenerator("s-1", "s-2"),
	})
	cmd.SetArgs([]string{"--config", config, "--addr", "127.0.0.1:0"})
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetContext(ctx)

	done := make(chan error, 1)
	go func() {
		done <- cmd.Execute()
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("serve did not stop")
		}
	})

	var base string
	require.Eventually(t, func() bool {
		m := listeningRE.FindStringSubmatch(out.String())
		if m == nil {
			return false
		}
		base = m[1]
		return true
	}, 5*time.Second, 10*time.Millisecond, "output: %s", out.String())
	return base
}

func TestServeMissingConfigFlag(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewServeCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "config")
}

func TestServeInvalidConfig(t *testing.T) {
	dir := writeConfig(t, map[string]string{"bad.cue": "package bad\n\nservice: \"nonesuch\"\n"})

	cmd := NewServeCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", dir, "--addr", "127.0.0.1:0"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load service description")
}

func TestServeUnknownEngine(t *testing.T) {
	cmd := NewServeCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{
		"--config", filepath.Join("..", "..", "configs", "addition"),
		"--addr", "127.0.0.1:0",
		"--engine", "oracle",
	})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `unknown engine "oracle"`)
}

func TestServePostgresRequiresDSN(t *testing.T) {
	cmd := NewServeCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{
		"--config", filepath.Join("..", "..", "configs", "addition"),
		"--addr", "127.0.0.1:0",
		"--engine", "postgres",
	})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--dsn is required")
}

func TestServeEndToEnd(t *testing.T) {
	base := startServe(t, filepath.Join("..", "..", "configs", "addition"))

	// Snapshot through the CLI client.
	out := &bytes.Buffer{}
	snap := NewSnapshotCommand(&RootOptions{Format: "text"})
	snap.SetOut(out)
	snap.SetArgs([]string{"--server", base})
	require.NoError(t, snap.Execute())
	assert.Equal(t, `{"home_title":"Addition","op1":2,"op1_plus_op2":5,"op2":3}`+"\n", out.String())

	// One session runs a statement over the websocket.
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(base, "http")+"/api/websock", nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, hello, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"nd_type":"DuckInstance","uuid":"s-1"}`, string(hello))

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"nd_type":"Query","sql":"SELECT 1","query_id":"q"}`)))
	_, reply, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(reply), `"nd_type":"QueryResult"`)

	out.Reset()
	journal := NewJournalCommand(&RootOptions{Format: "text"})
	journal.SetOut(out)
	journal.SetArgs([]string{"--server", base, "s-1"})
	require.NoError(t, journal.Execute())
	assert.Equal(t, "SELECT 1\n", out.String())
}
