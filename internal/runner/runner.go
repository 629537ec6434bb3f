// Package runner launches the motion-compensation worker as a subprocess.
//
// Each run stages the session configuration as a YAML file in a throwaway
// directory, hands the worker the config path and the requested mode, and
// streams the worker's output as events until it exits. Stderr lines are
// tagged so log consumers can tell the two streams apart.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/FlowRegSuite/flowreg-session-gui/pkg/session"
)

// Mode selects which pipeline stages the worker executes.
type Mode string

const (
	// ModeAll runs stages 1 through 3 in order.
	ModeAll Mode = "all"
	// ModeStage1 runs motion compensation only.
	ModeStage1 Mode = "stage1"
	// ModeStage2 runs segmentation on existing compensated output.
	ModeStage2 Mode = "stage2"
	// ModeStage3 runs trace extraction. The worker re-runs stage 2 first so
	// traces always come from fresh segmentation masks.
	ModeStage3 Mode = "stage3"
)

// ParseMode normalizes a user-supplied mode string.
func ParseMode(raw string) (Mode, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(raw)))
	switch mode {
	case ModeAll, ModeStage1, ModeStage2, ModeStage3:
		return mode, nil
	}
	return "", fmt.Errorf("runner: unknown mode %q (want all, stage1, stage2, or stage3)", raw)
}

// EventKind labels a run event.
type EventKind string

const (
	EventStarted  EventKind = "started"
	EventLog      EventKind = "log"
	EventFailed   EventKind = "failed"
	EventFinished EventKind = "finished"
)

// Event is one observable moment in a run's life. Log events carry a Line;
// finished and failed events carry the worker's exit code.
type Event struct {
	RunID    string    `json:"run_id"`
	Kind     EventKind `json:"kind"`
	Line     string    `json:"line,omitempty"`
	ExitCode int       `json:"exit_code,omitempty"`
	Time     time.Time `json:"time"`
}

// stderrPrefix tags worker stderr lines in the merged log stream.
const stderrPrefix = "[stderr] "

// maxLogLine caps a single scanned worker line. Progress meters that rewrite
// one long line can exceed bufio's default.
const maxLogLine = 1024 * 1024

// ErrRunInProgress is returned by Start while another run is active.
var ErrRunInProgress = errors.New("runner: a local run is already in progress")

// Run is a single worker invocation.
type Run struct {
	ID         string
	Mode       Mode
	ConfigPath string
	StartedAt  time.Time

	cmd  *exec.Cmd
	done chan struct{}
	exit int
}

// Kill terminates the worker and everything it spawned. Safe to call after
// exit.
func (run *Run) Kill() {
	if run.cmd != nil {
		_ = killGroup(run.cmd.Process)
	}
}

// killGroup signals the worker's whole process group. Children inherit the
// log pipes; a survivor would hold them open and stall the run past EOF.
func killGroup(p *os.Process) error {
	if p == nil {
		return nil
	}
	if err := syscall.Kill(-p.Pid, syscall.SIGKILL); err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return p.Kill()
}

// Wait blocks until the run ends and returns the worker's exit code.
// Killed workers report -1.
func (run *Run) Wait() int {
	<-run.done
	return run.exit
}

// Done is closed once the run has ended and its staging directory is gone.
func (run *Run) Done() <-chan struct{} {
	return run.done
}

func (run *Run) finish(code int) {
	run.exit = code
	close(run.done)
}

// Runner launches worker subprocesses, one at a time.
type Runner struct {
	command []string
	hub     *Hub
	logger  *slog.Logger

	mu     sync.Mutex
	active *Run
}

// New creates a runner for the given worker command. The staged config path
// and the mode are appended to the command's arguments on each start.
func New(command []string, logger *slog.Logger) (*Runner, error) {
	if len(command) == 0 {
		return nil, errors.New("runner: worker command is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		command: append([]string(nil), command...),
		hub:     NewHub(logger),
		logger:  logger,
	}, nil
}

// Subscribe returns a stream of events for all runs started by this runner.
func (r *Runner) Subscribe() (<-chan Event, func()) {
	return r.hub.Subscribe()
}

// Active returns the in-flight run, or nil when the runner is idle.
func (r *Runner) Active() *Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return nil
	}
	select {
	case <-r.active.done:
		return nil
	default:
		return r.active
	}
}

// Close shuts down the event hub. In-flight runs keep running.
func (r *Runner) Close() {
	r.hub.Close()
}

// Start stages cfg to disk and launches the worker. Only one run may be
// active at a time; a second Start returns ErrRunInProgress. Cancelling ctx
// kills the worker.
func (r *Runner) Start(ctx context.Context, cfg session.Config, mode Mode) (*Run, error) {
	mode, err := ParseMode(string(mode))
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		select {
		case <-r.active.done:
		default:
			return nil, ErrRunInProgress
		}
	}

	tmpDir, err := os.MkdirTemp("", "flowreg-session-*")
	if err != nil {
		return nil, fmt.Errorf("runner: create staging directory: %w", err)
	}
	configPath := filepath.Join(tmpDir, "session_config.yaml")
	if err := session.Save(cfg, configPath); err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("runner: stage config: %w", err)
	}

	args := append(append([]string(nil), r.command[1:]...), configPath, string(mode))
	cmd := exec.CommandContext(ctx, r.command[0], args...)
	// Run the worker in its own process group so Kill and context
	// cancellation take out any stage subprocesses it forks.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return killGroup(cmd.Process)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("runner: attach stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("runner: attach stderr: %w", err)
	}

	run := &Run{
		ID:         uuid.NewString(),
		Mode:       mode,
		ConfigPath: configPath,
		StartedAt:  time.Now(),
		cmd:        cmd,
		done:       make(chan struct{}),
	}
	if err := cmd.Start(); err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("runner: failed to start local worker subprocess: %w", err)
	}
	r.active = run
	r.logger.Info("worker started", "run_id", run.ID, "mode", mode, "config", configPath)
	r.hub.Publish(Event{RunID: run.ID, Kind: EventStarted, Line: "worker started", Time: time.Now()})

	var readers sync.WaitGroup
	readers.Add(2)
	go r.stream(run, stdout, "", &readers)
	go r.stream(run, stderr, stderrPrefix, &readers)
	go r.supervise(run, tmpDir, &readers)

	return run, nil
}

func (r *Runner) stream(run *Run, pipe io.Reader, prefix string, readers *sync.WaitGroup) {
	defer readers.Done()
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLine)
	for scanner.Scan() {
		r.hub.Publish(Event{RunID: run.ID, Kind: EventLog, Line: prefix + scanner.Text(), Time: time.Now()})
	}
}

// supervise waits for the worker to exit, reports the outcome, and removes
// the staging directory. Readers must drain before Wait closes the pipes.
func (r *Runner) supervise(run *Run, tmpDir string, readers *sync.WaitGroup) {
	readers.Wait()
	code := exitCode(run.cmd, run.cmd.Wait())
	if code != 0 {
		r.hub.Publish(Event{
			RunID:    run.ID,
			Kind:     EventFailed,
			Line:     fmt.Sprintf("local run failed with exit code %d", code),
			ExitCode: code,
			Time:     time.Now(),
		})
	}
	r.hub.Publish(Event{RunID: run.ID, Kind: EventFinished, ExitCode: code, Time: time.Now()})

	if err := os.RemoveAll(tmpDir); err != nil {
		r.logger.Warn("failed to remove staging directory", "dir", tmpDir, "error", err)
	}
	run.finish(code)

	r.mu.Lock()
	if r.active == run {
		r.active = nil
	}
	r.mu.Unlock()
	r.logger.Info("worker exited", "run_id", run.ID, "exit_code", code)
}

func exitCode(cmd *exec.Cmd, err error) int {
	if err == nil {
		return 0
	}
	if state := cmd.ProcessState; state != nil {
		return state.ExitCode()
	}
	return -1
}
