package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FlowRegSuite/flowreg-session-gui/internal/journal"
	"github.com/FlowRegSuite/flowreg-session-gui/internal/runner"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func workerCommand(t *testing.T, body string) []string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return []string{"/bin/sh", path}
}

type fixture struct {
	server *Server
	http   *httptest.Server
	store  *journal.Store
	path   string
}

func newFixture(t *testing.T, script string) fixture {
	t.Helper()

	r, err := runner.New(workerCommand(t, script), testLogger())
	require.NoError(t, err)
	t.Cleanup(r.Close)

	store, err := journal.New(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := session.Default()
	cfg.Root = filepath.Join(t.TempDir(), "session-01")
	configPath := filepath.Join(t.TempDir(), "session.yaml")

	srv, err := New(Options{
		Addr:       "127.0.0.1:0",
		ConfigPath: configPath,
		Config:     cfg,
		Runner:     r,
		Journal:    store,
		LogsDir:    filepath.Join(t.TempDir(), "logs"),
		Logger:     testLogger(),
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return fixture{server: srv, http: ts, store: store, path: configPath}
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return resp, decoded
}

func TestHealth(t *testing.T) {
	fx := newFixture(t, "exit 0")
	resp, err := http.Get(fx.http.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestIndexRendersForm(t *testing.T) {
	fx := newFixture(t, "exit 0")
	resp, err := http.Get(fx.http.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	page := string(body)
	assert.Contains(t, page, "FlowReg Session")
	assert.Contains(t, page, `name="root"`)
	assert.Contains(t, page, "sf-field")
}

func TestConfigRoundTrip(t *testing.T) {
	fx := newFixture(t, "exit 0")

	var values map[string]any
	resp := getJSON(t, fx.http.URL+"/api/config", &values)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ".tif", values["file_extension"])

	values["bin_size"] = 4
	values["notes"] = "batch 12"
	resp, decoded := postJSON(t, fx.http.URL+"/api/config", values)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decoded["saved"])

	loaded, err := session.Load(fx.path)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.BinSize)
	require.NotNil(t, loaded.Notes)
	assert.Equal(t, "batch 12", *loaded.Notes)

	var updated map[string]any
	getJSON(t, fx.http.URL+"/api/config", &updated)
	assert.Equal(t, float64(4), updated["bin_size"])
}

func TestConfigRejectsInvalidValues(t *testing.T) {
	fx := newFixture(t, "exit 0")

	var values map[string]any
	getJSON(t, fx.http.URL+"/api/config", &values)
	values["bin_size"] = 0

	resp, decoded := postJSON(t, fx.http.URL+"/api/config", values)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, decoded["error"], "bin_size")
}

func TestStartRunRejectsConcurrentAndBadModes(t *testing.T) {
	fx := newFixture(t, "sleep 10")

	resp, decoded := postJSON(t, fx.http.URL+"/api/runs", map[string]string{"mode": "stage9"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decoded["error"], "unknown mode")

	resp, decoded = postJSON(t, fx.http.URL+"/api/runs", map[string]string{"mode": "all"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	runID, _ := decoded["run_id"].(string)
	require.NotEmpty(t, runID)

	resp, decoded = postJSON(t, fx.http.URL+"/api/runs", map[string]string{"mode": "stage1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, decoded["error"], "already in progress")

	// Journal has the start record.
	records, err := fx.store.Recent(5)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, runID, records[0].ID)
	assert.Equal(t, "all", records[0].Mode)

	// Kill it and wait for the slot to free.
	resp, _ = postJSON(t, fx.http.URL+"/api/runs/"+runID+"/kill", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Eventually(t, func() bool {
		return fx.server.runner.Active() == nil
	}, 5*time.Second, 50*time.Millisecond)
}

func TestKillUnknownRun(t *testing.T) {
	fx := newFixture(t, "exit 0")
	resp, decoded := postJSON(t, fx.http.URL+"/api/runs/nope/kill", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, decoded["error"], "no such active run")
}

func TestRunStreamDeliversEvents(t *testing.T) {
	fx := newFixture(t, `sleep 1
echo "stage1: compensating"
echo "done" 1>&2`)

	resp, decoded := postJSON(t, fx.http.URL+"/api/runs", map[string]string{"mode": "stage1"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	runID := decoded["run_id"].(string)

	streamResp, err := http.Get(fx.http.URL + "/api/runs/" + runID + "/stream")
	require.NoError(t, err)
	defer streamResp.Body.Close()
	assert.Contains(t, streamResp.Header.Get("Content-Type"), "text/event-stream")

	var events []runner.Event
	scanner := bufio.NewScanner(streamResp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt runner.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt))
		events = append(events, evt)
	}
	require.NoError(t, scanner.Err())
	require.NotEmpty(t, events, "stream should carry events until the run finishes")

	last := events[len(events)-1]
	assert.Equal(t, runner.EventFinished, last.Kind)
	assert.Equal(t, 0, last.ExitCode)

	var sawLog bool
	for _, evt := range events {
		if evt.Kind == runner.EventLog && evt.Line == "stage1: compensating" {
			sawLog = true
		}
	}
	assert.True(t, sawLog, "expected the worker's stdout line, got %+v", events)
}

func TestRunSocketDeliversEvents(t *testing.T) {
	fx := newFixture(t, `sleep 1
echo "stage2: masks"`)

	resp, decoded := postJSON(t, fx.http.URL+"/api/runs", map[string]string{"mode": "stage2"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	runID := decoded["run_id"].(string)

	wsURL := strings.Replace(fx.http.URL, "http://", "ws://", 1) + "/ws/runs/" + runID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	deadline := time.Now().Add(10 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))

	var sawLog, sawFinished bool
	for !sawFinished {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var evt runner.Event
		require.NoError(t, json.Unmarshal(payload, &evt))
		if evt.Kind == runner.EventLog && evt.Line == "stage2: masks" {
			sawLog = true
		}
		if evt.Kind == runner.EventFinished {
			sawFinished = true
		}
	}
	assert.True(t, sawLog, "expected the worker's log line over the socket")
	assert.True(t, sawFinished, "expected a finished event over the socket")
}

func TestListRuns(t *testing.T) {
	fx := newFixture(t, "exit 0")

	var records []journal.Record
	resp := getJSON(t, fx.http.URL+"/api/runs", &records)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, records)

	resp, _ = postJSON(t, fx.http.URL+"/api/runs", map[string]string{"mode": "all"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		var recs []journal.Record
		getJSON(t, fx.http.URL+"/api/runs", &recs)
		return len(recs) == 1
	}, 5*time.Second, 50*time.Millisecond)

	resp, err := http.Get(fx.http.URL + "/api/runs?limit=zero")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSchemaEndpoint(t *testing.T) {
	fx := newFixture(t, "exit 0")

	resp, err := http.Get(fx.http.URL + "/api/schema")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
	assert.Contains(t, string(body), `"openapi"`)
	assert.Contains(t, string(body), "Session")

	resp, err = http.Get(fx.http.URL + "/api/schema?format=yaml")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/yaml")
	assert.Contains(t, string(body), "openapi: 3.0.3")
}

func TestStartRunDefaultsToAllMode(t *testing.T) {
	fx := newFixture(t, "echo mode is $2\nexit 0")

	resp, decoded := postJSON(t, fx.http.URL+"/api/runs", map[string]string{})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "all", decoded["mode"])
}
