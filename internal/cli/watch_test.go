package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vburojevic/hotswap/internal/domain"
	"github.com/vburojevic/hotswap/internal/filter"
	"github.com/vburojevic/hotswap/internal/loader"
	"github.com/vburojevic/hotswap/internal/output"
)

// Ensure embedded flag structs keep flag names/aliases working for agents.
func TestWatchFlagsParse(t *testing.T) {
	var c CLI
	parser, err := kong.New(&c, kong.Vars{"config_format": "ndjson"})
	require.NoError(t, err)

	_, err = parser.Parse([]string{
		"watch",
		"-S", "s1",
		"--strategy", "override",
		"--baseline", "app",
		"--where", "kind=screen_reloaded",
		"-w", "version>=2",
		"--dedupe",
		"--dedupe-window", "2s",
		"--on-reload", "make test",
		"--cooldown", "1s",
		"--record-dir", "records",
		"--follow",
	})
	require.NoError(t, err)

	require.Equal(t, "s1", c.Watch.SessionID)
	require.Equal(t, "override", c.Watch.Strategy)
	require.True(t, filepath.IsAbs(c.Watch.Baseline))
	require.Equal(t, []string{"kind=screen_reloaded", "version>=2"}, c.Watch.Where)
	require.True(t, c.Watch.Dedupe)
	require.Equal(t, "2s", c.Watch.DedupeWindow)
	require.Equal(t, "make test", c.Watch.OnReload)
	require.Equal(t, "1s", c.Watch.Cooldown)
	require.Equal(t, "30s", c.Watch.TriggerTimeout)
	require.Equal(t, "discard", c.Watch.TriggerOutput)
	require.Equal(t, 4, c.Watch.MaxParallelTriggers)
	require.True(t, c.Watch.Follow)
	require.Equal(t, "ndjson", c.Format)
}

func TestWatchDryRunJSON(t *testing.T) {
	globals, stdout, _ := testGlobals("ndjson")
	isolate(t, globals)

	cmd := &WatchCmd{
		previewFlags:        previewFlags{SessionID: "s1", Server: "http://localhost:4000"},
		Where:               []string{"kind=screen_reloaded"},
		DedupeWindow:        "0s",
		OnStub:              "notify-send stub",
		Cooldown:            "5s",
		TriggerTimeout:      "30s",
		MaxParallelTriggers: 5,
		TriggerOutput:       "discard",
		FollowInterval:      "2s",
		DryRunJSON:          true,
	}

	require.NoError(t, cmd.Run(globals))

	var out map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))

	require.Equal(t, "watch_plan", out["type"])
	require.Equal(t, "s1", out["session_id"])
	require.Equal(t, "bundle", out["strategy"])
	require.Equal(t, "ws://localhost:4000/ws?sessionId=s1", out["sync_url"])
	require.Equal(t, map[string]any{"stub": "notify-send stub"}, out["triggers"])
	require.Equal(t, "5s", out["cooldown"])
	require.Equal(t, "30s", out["trigger_timeout"])
	require.Equal(t, "discard", out["trigger_output"])
}

func TestWatchCmd_RejectsBadInput(t *testing.T) {
	base := func() *WatchCmd {
		return &WatchCmd{
			previewFlags:        previewFlags{SessionID: "s1"},
			DedupeWindow:        "0s",
			Cooldown:            "5s",
			TriggerTimeout:      "30s",
			MaxParallelTriggers: 1,
			FollowInterval:      "2s",
		}
	}
	tests := []struct {
		name   string
		mutate func(c *WatchCmd)
		code   string
	}{
		{"duration", func(c *WatchCmd) { c.Cooldown = "soon" }, "INVALID_DURATION"},
		{"where", func(c *WatchCmd) { c.Where = []string{"nonsense"} }, "INVALID_WHERE"},
		{"strategy", func(c *WatchCmd) { c.Strategy = "magic" }, "INVALID_FLAGS"},
		{"parallel", func(c *WatchCmd) { c.MaxParallelTriggers = 0 }, "INVALID_FLAGS"},
		{"dry run with tmux", func(c *WatchCmd) { c.DryRunJSON, c.Tmux = true, true }, "INVALID_FLAGS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			globals, stdout, _ := testGlobals("ndjson")
			isolate(t, globals)
			cmd := base()
			tt.mutate(cmd)

			require.Error(t, cmd.Run(globals))
			recs := decodeLines(t, stdout.Bytes())
			require.NotEmpty(t, recs)
			assert.Equal(t, tt.code, recs[0]["code"])
		})
	}
}

// lockedBuffer collects output written from several goroutines
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) records(t *testing.T) []map[string]interface{} {
	b.mu.Lock()
	raw := append([]byte(nil), b.buf.Bytes()...)
	b.mu.Unlock()
	return decodeLines(t, raw)
}

func (b *lockedBuffer) has(t *testing.T, match func(map[string]interface{}) bool) bool {
	for _, r := range b.records(t) {
		if match(r) {
			return true
		}
	}
	return false
}

// liveServer is an authoring server whose home screen can be edited and
// whose /ws endpoint pushes frames sent on push
type liveServer struct {
	*httptest.Server
	mu       sync.Mutex
	homeCode string
	modified int64
	push     chan []byte
	hold     *heldFetch
}

// heldFetch parks one home screen response after its body was read
type heldFetch struct {
	entered chan struct{}
	release chan struct{}
}

// holdNextHome parks the next fetch of the home screen until release closes
func (ls *liveServer) holdNextHome() *heldFetch {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.hold = &heldFetch{entered: make(chan struct{}), release: make(chan struct{})}
	return ls.hold
}

func newLiveServer(t *testing.T) *liveServer {
	t.Helper()
	ls := &liveServer{homeCode: homeSource, modified: modifiedSec, push: make(chan []byte, 8)}
	upgrader := websocket.Upgrader{}
	writeJSON := func(w http.ResponseWriter, v interface{}) {
		_ = json.NewEncoder(w).Encode(v)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/session/s1/app-bundle", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(appSource))
	})
	mux.HandleFunc("/session/s1/navigation", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, domain.NavigationWire{})
	})
	mux.HandleFunc("/session/s1/screens", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"screens": []domain.ScreenInfo{{ID: "home", Name: "Home", LastModified: modifiedSec}}})
	})
	mux.HandleFunc("/session/s1/screen/home", func(w http.ResponseWriter, r *http.Request) {
		ls.mu.Lock()
		src := domain.ScreenSource{ID: "home", Name: "Home", Code: ls.homeCode, LastModified: ls.modified}
		held := ls.hold
		ls.hold = nil
		ls.mu.Unlock()
		if held != nil {
			close(held.entered)
			<-held.release
		}
		writeJSON(w, src)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			select {
			case msg := <-ls.push:
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			case <-r.Context().Done():
				return
			}
		}
	})
	ls.Server = httptest.NewServer(mux)
	t.Cleanup(ls.Close)
	return ls
}

func (ls *liveServer) edit(t *testing.T, code string) {
	t.Helper()
	ls.mu.Lock()
	ls.homeCode = code
	ls.modified += 1000
	ls.mu.Unlock()

	payload, err := json.Marshal(domain.ScreenUpdatePayload{ScreenID: "home", ChangeType: domain.ChangeModified})
	require.NoError(t, err)
	frame, err := json.Marshal(domain.Message{
		Type:      domain.MessageScreenUpdate,
		Payload:   payload,
		SessionID: "s1",
		Timestamp: time.Now().UnixMilli(),
	})
	require.NoError(t, err)
	ls.push <- frame
}

func TestWatcher_HotReloadRunsTrigger(t *testing.T) {
	srv := newLiveServer(t)
	globals, _, _ := testGlobals("ndjson")
	dir := isolate(t, globals)
	marker := filepath.Join(dir, "reloaded")

	cmd := &WatchCmd{
		previewFlags:        previewFlags{SessionID: "s1", Server: srv.URL},
		OnReload:            `echo "$HOTSWAP_SCREEN_ID $HOTSWAP_CHANGE" > ` + marker,
		MaxParallelTriggers: 2,
		TriggerOutput:       "discard",
		RecordDir:           filepath.Join(dir, "records"),
	}
	client, err := newAPIClient(globals, srv.URL)
	require.NoError(t, err)
	w := cmd.newWatcher(globals, client, watchDurations{triggerTimeout: 10 * time.Second}, nil)
	out := &lockedBuffer{}
	w.out = output.NewNDJSONWriter(out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.start(ctx, "s1"))

	require.Eventually(t, func() bool {
		return out.has(t, func(r map[string]interface{}) bool {
			return r["type"] == "status" && r["status"] == string(domain.StatusConnected)
		})
	}, 5*time.Second, 10*time.Millisecond)

	srv.edit(t, `module.exports = function Home() { return React.createElement(Text, null, "edited"); };`)

	require.Eventually(t, func() bool {
		return out.has(t, func(r map[string]interface{}) bool {
			return r["type"] == "change" && r["kind"] == string(loader.ChangeScreenReloaded) && r["screen_id"] == "home"
		})
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		b, err := os.ReadFile(marker)
		return err == nil && strings.TrimSpace(string(b)) == "home screen_reloaded"
	}, 5*time.Second, 10*time.Millisecond)

	w.stop()

	recs := out.records(t)
	last := recs[len(recs)-1]
	assert.Equal(t, "session_end", last["type"])
	assert.EqualValues(t, 1, last["reloads"])

	b, err := os.ReadFile(filepath.Join(dir, "records", "s1.ndjson"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"screen_reloaded"`)
}

func TestWatcher_EditDuringLoadIsKept(t *testing.T) {
	srv := newLiveServer(t)
	held := srv.holdNextHome()
	globals, _, _ := testGlobals("ndjson")
	isolate(t, globals)

	cmd := &WatchCmd{
		previewFlags:        previewFlags{SessionID: "s1", Server: srv.URL},
		MaxParallelTriggers: 1,
	}
	client, err := newAPIClient(globals, srv.URL)
	require.NoError(t, err)
	w := cmd.newWatcher(globals, client, watchDurations{}, nil)
	out := &lockedBuffer{}
	w.out = output.NewNDJSONWriter(out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	started := make(chan error, 1)
	go func() { started <- w.start(ctx, "s1") }()
	<-held.entered

	// the channel is up while the first home fetch is still in flight
	require.Eventually(t, func() bool {
		return out.has(t, func(r map[string]interface{}) bool {
			return r["type"] == "status" && r["status"] == string(domain.StatusConnected)
		})
	}, 5*time.Second, 10*time.Millisecond)

	srv.edit(t, `module.exports = function Home() { return React.createElement(Text, null, "edited during load"); };`)
	require.Eventually(t, func() bool {
		return out.has(t, func(r map[string]interface{}) bool {
			return r["type"] == "change" && r["kind"] == string(loader.ChangeScreenReloaded) && r["screen_id"] == "home"
		})
	}, 5*time.Second, 10*time.Millisecond)

	close(held.release)
	require.NoError(t, <-started)
	defer w.stop()

	w.mu.Lock()
	p := w.current.preview
	w.mu.Unlock()
	c, _, ok := p.Resolve("home")
	require.True(t, ok)
	node, err := c.Render(map[string]interface{}{})
	require.NoError(t, err)
	assert.Contains(t, output.FormatTree(node), "edited during load")
}

func TestWatcher_EmitEventFilters(t *testing.T) {
	globals, _, _ := testGlobals("ndjson")
	where, err := filter.NewWhereFilter([]string{"type=change"})
	require.NoError(t, err)

	cmd := &WatchCmd{Dedupe: true, MaxParallelTriggers: 1}
	w := cmd.newWatcher(globals, nil, watchDurations{}, where)
	out := &lockedBuffer{}
	w.out = output.NewNDJSONWriter(out)

	reload := loader.Change{Kind: loader.ChangeScreenReloaded, SessionID: "s1", ScreenID: "home", Version: 2}
	w.emitEvent(changeRecord(reload))
	w.emitEvent(changeRecord(reload))
	w.emitEvent(statusRecord(domain.StatusConnected, 0))
	w.emit(statusRecord(domain.StatusConnected, 0))

	recs := out.records(t)
	require.Len(t, recs, 2)
	assert.Equal(t, "change", recs[0]["type"])
	assert.Equal(t, "status", recs[1]["type"])
}

func TestWatcher_TriggerCooldown(t *testing.T) {
	globals, _, _ := testGlobals("ndjson")
	dir := t.TempDir()
	marker := filepath.Join(dir, "count")

	cmd := &WatchCmd{OnStub: "echo x >> " + marker, MaxParallelTriggers: 1, TriggerOutput: "discard"}
	w := cmd.newWatcher(globals, nil, watchDurations{cooldown: time.Hour}, nil)
	out := &lockedBuffer{}
	w.out = output.NewNDJSONWriter(out)

	stub := loader.Change{Kind: loader.ChangeScreenReloaded, ScreenID: "home", Stub: true, Err: "boom"}
	w.onChange(stub)
	w.onChange(stub)

	require.Eventually(t, func() bool {
		b, err := os.ReadFile(marker)
		return err == nil && strings.Count(string(b), "x") == 1
	}, 5*time.Second, 10*time.Millisecond)

	triggers := 0
	for _, r := range out.records(t) {
		if r["type"] == "trigger" {
			triggers++
			assert.Equal(t, "stub", r["trigger"])
		}
	}
	assert.Equal(t, 1, triggers)
}
