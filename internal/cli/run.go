package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/FlowRegSuite/flowreg-session-gui/internal/journal"
	"github.com/FlowRegSuite/flowreg-session-gui/internal/runner"
	"github.com/FlowRegSuite/flowreg-session-gui/internal/runview"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/session"
)

func newRunCmd(root *Root) *cobra.Command {
	var (
		mode   string
		follow bool
	)

	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Launch the pipeline worker for a session",
		Long: `Run stages the session configuration for the worker and launches it.
Worker output streams to stdout and is copied into the run journal; the
command's exit code mirrors the worker's. Ctrl+C terminates the worker.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := sessionPath(args)
			cfg, err := session.Load(path)
			if err != nil {
				return err
			}
			return root.runWorker(cmd.Context(), cmd.OutOrStdout(), cfg, path, mode, follow)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(runner.ModeAll), "stages to run: all, stage1, stage2, or stage3")
	cmd.Flags().BoolVar(&follow, "follow", false, "watch the run in a full-screen view instead of plain streaming")
	return cmd
}

// runWorker launches one pipeline run and blocks until it finishes. Events
// stream to out and are copied into the journal and per-run log.
func (r *Root) runWorker(ctx context.Context, out io.Writer, cfg session.Config, configPath, modeRaw string, follow bool) error {
	if err := r.setupFileLogging(); err != nil {
		return err
	}

	mode, err := runner.ParseMode(modeRaw)
	if err != nil {
		return err
	}

	store, err := journal.New(r.cfg.JournalPath())
	if err != nil {
		return err
	}
	defer store.Close()

	worker, err := runner.New(r.cfg.WorkerCommand, r.logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Subscriptions are taken before Start so the started event is never
	// missed. The runner closing its hub ends both streams.
	teeEvents, cancelTee := worker.Subscribe()
	uiEvents, cancelUI := worker.Subscribe()
	teeDone := journal.Tee(store, teeEvents, r.cfg.LogsDir(), r.logger)

	run, err := worker.Start(ctx, cfg, mode)
	if err != nil {
		cancelUI()
		cancelTee()
		<-teeDone
		return err
	}

	if err := store.RecordStart(journal.Record{
		ID:         run.ID,
		Mode:       string(run.Mode),
		ConfigPath: configPath,
		LogPath:    journal.LogPath(r.cfg.LogsDir(), run.ID),
		StartedAt:  run.StartedAt,
	}); err != nil {
		r.logger.Warn("record run start", "error", err)
	}

	if follow {
		if err := runview.Follow(run, uiEvents); err != nil {
			run.Kill()
			r.logger.Warn("run view closed early", "error", err)
		}
	} else {
		streamRun(out, run.ID, uiEvents)
	}

	code := run.Wait()
	worker.Close()
	<-teeDone

	if code != 0 {
		if code < 0 {
			return &exitError{code: 1, message: "worker terminated before reporting an exit code"}
		}
		return &exitError{code: code, message: fmt.Sprintf("worker exited with code %d", code)}
	}
	return nil
}

// streamRun prints worker log lines until the run finishes or the event
// stream closes.
func streamRun(w io.Writer, runID string, events <-chan runner.Event) {
	for evt := range events {
		if evt.RunID != runID {
			continue
		}
		switch evt.Kind {
		case runner.EventLog, runner.EventFailed:
			if evt.Line != "" {
				fmt.Fprintln(w, evt.Line)
			}
		case runner.EventFinished:
			return
		}
	}
}
