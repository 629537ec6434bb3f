package runview

import (
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FlowRegSuite/flowreg-session-gui/internal/runner"
)

func testRun() *runner.Run {
	return &runner.Run{
		ID:        "0123456789abcdef",
		Mode:      runner.ModeStage1,
		StartedAt: time.Now().Add(-65 * time.Second),
	}
}

func apply(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok, "Update must return a runview Model")
	return model, cmd
}

func keyQ() tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}
}

func TestViewShowsHeaderAndFooter(t *testing.T) {
	t.Parallel()

	m := New(testRun(), nil)
	view := m.View()
	assert.Contains(t, view, "01234567", "run id is shortened")
	assert.Contains(t, view, "mode stage1")
	assert.Contains(t, view, "elapsed 01:0")
	assert.Contains(t, view, "press q to kill and quit")
}

func TestUpdateAppendsLogLines(t *testing.T) {
	t.Parallel()

	run := testRun()
	m := New(run, nil)
	m, cmd := apply(t, m, eventMsg(runner.Event{RunID: run.ID, Kind: runner.EventLog, Line: "loading frames"}))
	assert.NotNil(t, cmd, "keeps waiting for events")
	m, _ = apply(t, m, eventMsg(runner.Event{RunID: run.ID, Kind: runner.EventLog, Line: "[stderr] low contrast"}))

	view := m.View()
	assert.Contains(t, view, "loading frames")
	assert.Contains(t, view, "[stderr] low contrast")
}

func TestUpdateIgnoresOtherRuns(t *testing.T) {
	t.Parallel()

	m := New(testRun(), nil)
	m, cmd := apply(t, m, eventMsg(runner.Event{RunID: "someone-else", Kind: runner.EventLog, Line: "not mine"}))
	assert.NotNil(t, cmd)
	assert.NotContains(t, m.View(), "not mine")
}

func TestFinishShowsExitSummary(t *testing.T) {
	t.Parallel()

	run := testRun()
	m := New(run, nil)
	m, _ = apply(t, m, eventMsg(runner.Event{RunID: run.ID, Kind: runner.EventFailed, Line: "local run failed with exit code 3", ExitCode: 3}))
	m, cmd := apply(t, m, eventMsg(runner.Event{RunID: run.ID, Kind: runner.EventFinished, ExitCode: 3}))
	assert.Nil(t, cmd, "stays open so the tail can be read")

	view := m.View()
	assert.Contains(t, view, "local run failed with exit code 3")
	assert.Contains(t, view, "worker exited with code 3")
	assert.Contains(t, view, "press q to quit")

	// The clock stops with the run.
	_, cmd = apply(t, m, tickMsg(time.Now()))
	assert.Nil(t, cmd)

	// q now quits.
	_, cmd = apply(t, m, keyQ())
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestQuitWhileRunningKillsFirst(t *testing.T) {
	t.Parallel()

	run := testRun()
	m := New(run, nil)
	m, cmd := apply(t, m, keyQ())
	assert.Nil(t, cmd, "waits for the finished event before quitting")
	assert.Contains(t, m.View(), "killing worker...")

	_, cmd = apply(t, m, eventMsg(runner.Event{RunID: run.ID, Kind: runner.EventFinished, ExitCode: -1}))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestStreamClosedUnblocksQuit(t *testing.T) {
	t.Parallel()

	m := New(testRun(), nil)
	m, _ = apply(t, m, streamClosedMsg{})
	assert.Contains(t, m.View(), "event stream closed")

	_, cmd := apply(t, m, keyQ())
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestTailFitsWindowHeight(t *testing.T) {
	t.Parallel()

	run := testRun()
	m := New(run, nil)
	m, _ = apply(t, m, tea.WindowSizeMsg{Width: 80, Height: 10})
	for i := 0; i < 50; i++ {
		m, _ = apply(t, m, eventMsg(runner.Event{RunID: run.ID, Kind: runner.EventLog, Line: fmt.Sprintf("line %02d", i)}))
	}

	view := m.View()
	assert.Contains(t, view, "line 49")
	assert.NotContains(t, view, "line 00")
}

func TestFormatElapsed(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "00:00", formatElapsed(0))
	assert.Equal(t, "01:05", formatElapsed(65*time.Second))
	assert.Equal(t, "1:01:40", formatElapsed(3700*time.Second))
}
