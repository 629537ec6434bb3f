package journal

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/FlowRegSuite/flowreg-session-gui/internal/runner"
)

// Tee mirrors runner events into the journal: every run gets a log file
// under logsDir and a finish record when it ends. Start records are written
// by the caller, which holds the run's metadata. The returned channel closes
// once the event stream ends.
func Tee(store *Store, events <-chan runner.Event, logsDir string, logger *slog.Logger) <-chan struct{} {
	if logger == nil {
		logger = slog.Default()
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		files := make(map[string]*os.File)
		defer func() {
			for _, f := range files {
				f.Close()
			}
		}()

		for evt := range events {
			switch evt.Kind {
			case runner.EventStarted:
				f, err := OpenLog(logsDir, evt.RunID)
				if err != nil {
					logger.Warn("open run log", "run_id", evt.RunID, "error", err)
					continue
				}
				files[evt.RunID] = f
			case runner.EventLog, runner.EventFailed:
				if f := files[evt.RunID]; f != nil && evt.Line != "" {
					fmt.Fprintln(f, evt.Line)
				}
			case runner.EventFinished:
				if f := files[evt.RunID]; f != nil {
					f.Close()
					delete(files, evt.RunID)
				}
				if err := store.RecordFinish(evt.RunID, evt.ExitCode); err != nil {
					logger.Warn("record run finish", "run_id", evt.RunID, "error", err)
				}
			}
		}
	}()
	return done
}
