package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/FlowRegSuite/flowreg-session-gui/internal/journal"
	"github.com/FlowRegSuite/flowreg-session-gui/internal/runner"
	"github.com/FlowRegSuite/flowreg-session-gui/internal/server"
)

func newServeCmd(root *Root) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve [file]",
		Short: "Serve the web editor and run API",
		Long: `Serve hosts the session form in a browser, exposes the run API, and
streams worker output over SSE and websockets. A missing session file
starts from worker defaults and is created on first save.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.setupFileLogging(); err != nil {
				return err
			}

			path := sessionPath(args)
			cfg, err := loadSession(path, true)
			if err != nil {
				return err
			}

			store, err := journal.New(root.cfg.JournalPath())
			if err != nil {
				return err
			}
			defer store.Close()

			worker, err := runner.New(root.cfg.WorkerCommand, root.logger)
			if err != nil {
				return err
			}

			// The tee finalizes journal entries and writes per-run logs for
			// runs started over the API.
			teeEvents, _ := worker.Subscribe()
			teeDone := journal.Tee(store, teeEvents, root.cfg.LogsDir(), root.logger)

			listen := addr
			if listen == "" {
				listen = root.cfg.ListenAddr
			}

			srv, err := server.New(server.Options{
				Addr:       listen,
				ConfigPath: path,
				Config:     cfg,
				Runner:     worker,
				Journal:    store,
				LogsDir:    root.cfg.LogsDir(),
				Theme:      root.cfg.ThemeName,
				Variant:    root.cfg.ThemeVariant,
				Logger:     root.logger,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			root.logger.Info("serving session editor", "addr", listen, "session", path)
			err = srv.Start(ctx)
			worker.Close()
			<-teeDone
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from the application config)")
	return cmd
}
