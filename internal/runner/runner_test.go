package runner

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FlowRegSuite/flowreg-session-gui/pkg/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) session.Config {
	t.Helper()
	cfg := session.Default()
	cfg.Root = filepath.Join(t.TempDir(), "session-01")
	return cfg
}

// workerScript writes a shell script and returns the worker command that runs
// it. The runner appends the config path and mode as $1 and $2.
func workerScript(t *testing.T, body string) []string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return []string{"/bin/sh", path}
}

// collect drains events until the terminal kind arrives.
func collect(t *testing.T, events <-chan Event, until EventKind) []Event {
	t.Helper()
	deadline := time.After(10 * time.Second)
	var got []Event
	for {
		select {
		case evt, ok := <-events:
			require.True(t, ok, "event stream closed before %s", until)
			got = append(got, evt)
			if evt.Kind == until {
				return got
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event, saw %d events", until, len(got))
		}
	}
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, 0, len(events))
	for _, evt := range events {
		out = append(out, evt.Kind)
	}
	return out
}

func lines(events []Event) []string {
	var out []string
	for _, evt := range events {
		if evt.Kind == EventLog {
			out = append(out, evt.Line)
		}
	}
	return out
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	for raw, want := range map[string]Mode{
		"all":     ModeAll,
		"stage1":  ModeStage1,
		" Stage2": ModeStage2,
		"STAGE3":  ModeStage3,
	} {
		mode, err := ParseMode(raw)
		require.NoError(t, err)
		assert.Equal(t, want, mode)
	}

	_, err := ParseMode("stage4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestNewRejectsEmptyCommand(t *testing.T) {
	t.Parallel()

	_, err := New(nil, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker command is empty")
}

func TestStartStreamsWorkerOutput(t *testing.T) {
	t.Parallel()

	command := workerScript(t, `echo "loading config: $1"
echo "mode: $2"
echo "watch your step" 1>&2`)
	r, err := New(command, testLogger())
	require.NoError(t, err)
	defer r.Close()

	events, cancel := r.Subscribe()
	defer cancel()

	run, err := r.Start(context.Background(), testConfig(t), ModeStage1)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, ModeStage1, run.Mode)
	assert.Equal(t, "session_config.yaml", filepath.Base(run.ConfigPath))

	got := collect(t, events, EventFinished)
	require.Equal(t, EventStarted, got[0].Kind)
	assert.Equal(t, run.ID, got[0].RunID)

	logged := lines(got)
	assert.Contains(t, logged, "loading config: "+run.ConfigPath)
	assert.Contains(t, logged, "mode: stage1")
	assert.Contains(t, logged, "[stderr] watch your step")

	last := got[len(got)-1]
	assert.Equal(t, 0, last.ExitCode)
	assert.NotContains(t, kinds(got), EventFailed)

	assert.Equal(t, 0, run.Wait())
	_, statErr := os.Stat(run.ConfigPath)
	assert.ErrorIs(t, statErr, os.ErrNotExist, "staging directory should be cleaned up")
}

func TestStartStagesConfigForWorker(t *testing.T) {
	t.Parallel()

	// The worker reads the staged YAML back, proving it exists while the
	// run is alive.
	command := workerScript(t, `cat "$1"`)
	r, err := New(command, testLogger())
	require.NoError(t, err)
	defer r.Close()

	events, cancel := r.Subscribe()
	defer cancel()

	cfg := testConfig(t)
	cfg.BinSize = 4
	_, err = r.Start(context.Background(), cfg, ModeAll)
	require.NoError(t, err)

	got := collect(t, events, EventFinished)
	logged := lines(got)
	assert.Contains(t, logged, "bin_size: 4")
	assert.Contains(t, logged, "root: "+cfg.Root)
}

func TestFailureEmitsFailedThenFinished(t *testing.T) {
	t.Parallel()

	command := workerScript(t, `echo "stage1 exploded" 1>&2
exit 3`)
	r, err := New(command, testLogger())
	require.NoError(t, err)
	defer r.Close()

	events, cancel := r.Subscribe()
	defer cancel()

	run, err := r.Start(context.Background(), testConfig(t), ModeAll)
	require.NoError(t, err)

	got := collect(t, events, EventFinished)
	assert.Equal(t, 3, run.Wait())

	var failed *Event
	for i := range got {
		if got[i].Kind == EventFailed {
			failed = &got[i]
			break
		}
	}
	require.NotNil(t, failed, "expected a failed event, saw %v", kinds(got))
	assert.Equal(t, "local run failed with exit code 3", failed.Line)
	assert.Equal(t, 3, failed.ExitCode)
	assert.Equal(t, EventFinished, got[len(got)-1].Kind)
	assert.Equal(t, 3, got[len(got)-1].ExitCode)
}

func TestStartRejectsSecondRun(t *testing.T) {
	t.Parallel()

	command := workerScript(t, `sleep 10`)
	r, err := New(command, testLogger())
	require.NoError(t, err)
	defer r.Close()

	run, err := r.Start(context.Background(), testConfig(t), ModeAll)
	require.NoError(t, err)
	require.NotNil(t, r.Active())

	_, err = r.Start(context.Background(), testConfig(t), ModeAll)
	assert.ErrorIs(t, err, ErrRunInProgress)

	run.Kill()
	assert.Equal(t, -1, run.Wait(), "killed workers have no exit code")
	assert.Nil(t, r.Active())

	// The slot frees up once the previous run ends.
	quick := workerScript(t, `exit 0`)
	r2, err := New(quick, testLogger())
	require.NoError(t, err)
	defer r2.Close()
	next, err := r2.Start(context.Background(), testConfig(t), ModeStage2)
	require.NoError(t, err)
	assert.Equal(t, 0, next.Wait())
}

func TestKillStopsSpawnedChildren(t *testing.T) {
	t.Parallel()

	// The worker forks a long-lived child that inherits the log pipes. Kill
	// must end the run anyway; a surviving child would hold the pipes open
	// and stall the stream readers forever.
	command := workerScript(t, `sleep 30 &
echo "child up"
sleep 30`)
	r, err := New(command, testLogger())
	require.NoError(t, err)
	defer r.Close()

	events, cancel := r.Subscribe()
	defer cancel()

	run, err := r.Start(context.Background(), testConfig(t), ModeAll)
	require.NoError(t, err)

	collect(t, events, EventLog) // child is running
	run.Kill()

	done := make(chan int, 1)
	go func() { done <- run.Wait() }()
	select {
	case code := <-done:
		assert.Equal(t, -1, code)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not end after Kill; a worker child kept the pipes open")
	}
	assert.Nil(t, r.Active())
}

func TestContextCancelKillsWorker(t *testing.T) {
	t.Parallel()

	command := workerScript(t, `sleep 10`)
	r, err := New(command, testLogger())
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	run, err := r.Start(ctx, testConfig(t), ModeAll)
	require.NoError(t, err)

	cancel()
	assert.Equal(t, -1, run.Wait())
}

func TestUnknownModeRejected(t *testing.T) {
	t.Parallel()

	r, err := New([]string{"/bin/true"}, testLogger())
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Start(context.Background(), testConfig(t), Mode("stage9"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestHubDropsForStalledSubscribers(t *testing.T) {
	t.Parallel()

	hub := NewHub(testLogger())
	defer hub.Close()

	events, cancel := hub.Subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer+8; i++ {
		hub.Publish(Event{RunID: "run", Kind: EventLog, Line: "tick"})
	}

	var received int
drain:
	for {
		select {
		case <-events:
			received++
		default:
			break drain
		}
	}
	assert.Equal(t, subscriberBuffer, received)
}

func TestSubscribeAfterCloseYieldsClosedChannel(t *testing.T) {
	t.Parallel()

	hub := NewHub(testLogger())
	hub.Close()

	events, cancel := hub.Subscribe()
	defer cancel()

	_, ok := <-events
	assert.False(t, ok)
}
