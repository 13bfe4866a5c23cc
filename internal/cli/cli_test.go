package cli

import (
	"bytes"
	"net"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/mmorpg-client/internal/bindings"
	"github.com/rickgao/mmorpg-client/internal/config"
	"github.com/rickgao/mmorpg-client/internal/stdb"
	"github.com/rickgao/mmorpg-client/internal/stdb/stdbtest"
)

type env struct {
	configPath string
	tokenPath  string
	net        *stdbtest.Network
}

func newEnv(t *testing.T, serverURI string, extraYAML ...string) *env {
	t.Helper()
	dir := t.TempDir()
	e := &env{
		configPath: filepath.Join(dir, "mmoclient.yaml"),
		tokenPath:  filepath.Join(dir, "token"),
		net:        stdbtest.NewNetwork(),
	}
	cfg := fmt.Sprintf(`connection:
  auto_start: true
  server_uri: %q
  module_name: mmorpg
  token_file_path: %q
  frame_interval: 1ms
log:
  level: error
`, serverURI, e.tokenPath) + strings.Join(extraYAML, "\n")
	require.NoError(t, os.WriteFile(e.configPath, []byte(cfg), 0o600))
	return e
}

// execute runs the root command with args and returns stdout.
func (e *env) execute(ctx context.Context, args ...string) (string, error) {
	out := &bytes.Buffer{}
	cmd := newRootCommand(&RootOptions{Transport: e.net.Factory()})
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func testIdentity(t *testing.T) stdb.Identity {
	t.Helper()
	id, err := stdb.ParseIdentity("c200000000000000000000000000000000000000000000000000000000000042")
	require.NoError(t, err)
	return id
}

// waitFor polls until fn returns true or a second passes. It is safe to call
// from helper goroutines.
func waitFor(fn func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if fn() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

func sentBody(tr *stdbtest.Transport, tag string) json.RawMessage {
	for _, msg := range tr.Sent() {
		if body, ok := msg[tag]; ok {
			return body
		}
	}
	return nil
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "mmoclient", cmd.Use)

	for _, path := range [][]string{
		{"run"}, {"ping"}, {"identity", "new"}, {"token", "show"}, {"token", "clear"}, {"enter-game"}, {"version"},
	} {
		t.Run(strings.Join(path, " "), func(t *testing.T) {
			sub, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], sub.Name())
		})
	}

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "false", verboseFlag.DefValue)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitCommandError, "bad"))))

	err := WrapExitError(ExitFailure, "enter game", errors.New("name taken"))
	assert.Equal(t, "enter game: name taken", err.Error())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, config.LogConfig{Level: "info", Format: "json"}, false).Info("hello", "k", 1)
	assert.True(t, strings.HasPrefix(buf.String(), "{"), "json handler: %s", buf.String())

	buf.Reset()
	logger := newLogger(&buf, config.LogConfig{Level: "warn", Format: "text"}, false)
	logger.Info("hidden")
	assert.Empty(t, buf.String())

	newLogger(&buf, config.LogConfig{Level: "warn", Format: "text"}, true).Debug("shown")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestVersionCommand(t *testing.T) {
	out := &bytes.Buffer{}
	cmd := NewVersionCommand()
	cmd.SetOut(out)
	require.NoError(t, cmd.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "mmoclient dev"), out.String())
}

func TestBadConfig(t *testing.T) {
	e := newEnv(t, "localhost:3000")
	require.NoError(t, os.WriteFile(e.configPath, []byte("log:\n  format: xml\n"), 0o600))

	_, err := e.execute(context.Background(), "token", "show")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTokenCommands(t *testing.T) {
	e := newEnv(t, "localhost:3000")
	ctx := context.Background()

	out, err := e.execute(ctx, "token", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "no token stored at "+e.tokenPath)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":          "player-1",
		"iss":          "localhost",
		"hex_identity": "c200abcd",
		"iat":          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
		"exp":          time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(e.tokenPath, []byte(signed+"\n"), 0o600))

	out, err = e.execute(ctx, "token", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "identity: c200abcd")
	assert.Contains(t, out, "subject:  player-1")
	assert.Contains(t, out, "issued:   2024-01-01T00:00:00Z")
	assert.Contains(t, out, "expires:  2025-01-01T00:00:00Z (expired)")

	out, err = e.execute(ctx, "token", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "removed")
	assert.NoFileExists(t, e.tokenPath)

	_, err = e.execute(ctx, "token", "clear")
	assert.NoError(t, err, "clearing twice is fine")
}

func TestTokenShow_Unreadable(t *testing.T) {
	e := newEnv(t, "localhost:3000")
	require.NoError(t, os.WriteFile(e.tokenPath, []byte("not-a-jwt"), 0o600))

	_, err := e.execute(context.Background(), "token", "show")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestIdentityNew(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/identity" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"identity":"c200beef","token":"minted"}`))
	}))
	defer server.Close()

	t.Run("prints token", func(t *testing.T) {
		e := newEnv(t, server.URL)
		out, err := e.execute(context.Background(), "identity", "new")
		require.NoError(t, err)
		assert.Contains(t, out, "identity: c200beef")
		assert.Contains(t, out, "token: minted")
		assert.NoFileExists(t, e.tokenPath)
	})

	t.Run("saves token", func(t *testing.T) {
		e := newEnv(t, server.URL)
		out, err := e.execute(context.Background(), "identity", "new", "--save")
		require.NoError(t, err)
		assert.Contains(t, out, "token saved to "+e.tokenPath)
		assert.NotContains(t, out, "minted")

		data, err := os.ReadFile(e.tokenPath)
		require.NoError(t, err)
		assert.Equal(t, "minted", string(data))
	})
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/ping":
		case "/v1/database/mmorpg":
			w.Write([]byte(`{"database_identity":"c200aa","owner_identity":"c200bb","host_type":"wasm"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	t.Run("module found", func(t *testing.T) {
		e := newEnv(t, server.URL)
		out, err := e.execute(context.Background(), "ping")
		require.NoError(t, err)
		assert.Contains(t, out, "is up")
		assert.Contains(t, out, "module mmorpg: identity c200aa, host wasm")
	})

	t.Run("module missing", func(t *testing.T) {
		e := newEnv(t, server.URL)
		cfg, err := os.ReadFile(e.configPath)
		require.NoError(t, err)
		cfg = bytes.Replace(cfg, []byte("module_name: mmorpg"), []byte("module_name: other"), 1)
		require.NoError(t, os.WriteFile(e.configPath, cfg, 0o600))

		_, err = e.execute(context.Background(), "ping")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `module "other" not found`)
		assert.Equal(t, ExitFailure, GetExitCode(err))
	})
}

// serveEnterGame plays the server side of one enter_game exchange.
func serveEnterGame(e *env, id stdb.Identity, failure string) {
	if !waitFor(func() bool { return e.net.Count() == 1 }) {
		return
	}
	tr := e.net.Last()
	tr.Push(stdbtest.IdentityToken(id, "fresh-token"))

	var body json.RawMessage
	if !waitFor(func() bool { body = sentBody(tr, "CallReducer"); return body != nil }) {
		return
	}
	var call stdb.CallReducerMsg
	if err := json.Unmarshal(body, &call); err != nil {
		return
	}
	if failure != "" {
		tr.Push(stdbtest.FailedCall(call.RequestID, call.Reducer, failure))
		return
	}
	tr.Push(stdbtest.CommittedCall(call.RequestID, call.Reducer, id,
		stdbtest.Inserts(bindings.TablePlayers, bindings.Player{Identity: id, PlayerID: 1, DisplayName: "ann"})))
}

func TestEnterGame(t *testing.T) {
	t.Run("committed", func(t *testing.T) {
		e := newEnv(t, "localhost:3000")
		id := testIdentity(t)
		go serveEnterGame(e, id, "")

		out, err := e.execute(context.Background(), "enter-game", "--name", " ann ")
		require.NoError(t, err)
		assert.Contains(t, out, `entered game as "ann"`)
		assert.Contains(t, out, id.String())

		data, err := os.ReadFile(e.tokenPath)
		require.NoError(t, err)
		assert.Equal(t, "fresh-token", string(data))

		var call stdb.CallReducerMsg
		require.NoError(t, json.Unmarshal(sentBody(e.net.Last(), "CallReducer"), &call))
		assert.Equal(t, bindings.ReducerEnterGame, call.Reducer)
		assert.Equal(t, `["ann"]`, call.Args)
		assert.True(t, e.net.Last().Closed())
	})

	t.Run("rejected", func(t *testing.T) {
		e := newEnv(t, "localhost:3000")
		go serveEnterGame(e, testIdentity(t), "name taken")

		_, err := e.execute(context.Background(), "enter-game", "--name", "ann")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "name taken")
		assert.Equal(t, ExitFailure, GetExitCode(err))
	})

	t.Run("connect error", func(t *testing.T) {
		e := newEnv(t, "localhost:3000")
		e.net.FailConnects(errors.New("connection refused"))

		_, err := e.execute(context.Background(), "enter-game", "--name", "ann")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("timeout", func(t *testing.T) {
		e := newEnv(t, "localhost:3000")
		_, err := e.execute(context.Background(), "enter-game", "--name", "ann", "--timeout", "50ms")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timed out")
	})

	t.Run("name required", func(t *testing.T) {
		e := newEnv(t, "localhost:3000")
		_, err := e.execute(context.Background(), "enter-game", "--name", "  ")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Equal(t, 0, e.net.Count())
	})
}

func TestRun(t *testing.T) {
	e := newEnv(t, "localhost:3000")
	id := testIdentity(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subscribed := make(chan []string, 1)
	go func() {
		defer cancel()
		if !waitFor(func() bool { return e.net.Count() == 1 }) {
			return
		}
		tr := e.net.Last()
		tr.Push(stdbtest.IdentityToken(id, "run-token"))

		var body json.RawMessage
		if !waitFor(func() bool { body = sentBody(tr, "Subscribe"); return body != nil }) {
			return
		}
		var sub stdb.SubscribeMsg
		if json.Unmarshal(body, &sub) == nil {
			subscribed <- sub.QueryStrings
		}
	}()

	_, err := e.execute(ctx, "run")
	require.NoError(t, err)

	select {
	case queries := <-subscribed:
		assert.Equal(t, []string{
			"SELECT * FROM entities",
			"SELECT * FROM player_characters",
			"SELECT * FROM players",
		}, queries)
	default:
		t.Fatal("client never subscribed")
	}

	data, err := os.ReadFile(e.tokenPath)
	require.NoError(t, err)
	assert.Equal(t, "run-token", string(data))
	assert.True(t, e.net.Last().Closed(), "shutdown disconnects")
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestRun_StatusEndpoint(t *testing.T) {
	service := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/ping":
		case "/v1/database/mmorpg":
			w.Write([]byte(`{"database_identity":"c200aa"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer service.Close()

	port := freePort(t)
	e := newEnv(t, service.URL, fmt.Sprintf("status:\n  enabled: true\n  port: %d\n  probe_interval: 1s\n", port))
	id := testIdentity(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := e.execute(ctx, "run")
		done <- err
	}()

	require.Eventually(t, func() bool { return e.net.Count() == 1 }, 2*time.Second, time.Millisecond)
	e.net.Last().Push(stdbtest.IdentityToken(id, "run-token"))

	healthURL := fmt.Sprintf("http://127.0.0.1:%d/healthz", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(healthURL)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var h struct {
			Status     string                     `json:"status"`
			Components map[string]json.RawMessage `json:"components"`
		}
		if json.NewDecoder(resp.Body).Decode(&h) != nil {
			return false
		}
		_, probed := h.Components["service"]
		return h.Status == "healthy" && probed
	}, 3*time.Second, 10*time.Millisecond)

	var st struct {
		State    string `json:"state"`
		Identity string `json:"identity"`
	}
	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/status", port))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return json.NewDecoder(resp.Body).Decode(&st) == nil && st.State == "connected"
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, id.String(), st.Identity)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
}
