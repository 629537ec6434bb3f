package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/FlowRegSuite/flowreg-session-gui/internal/watcher"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/session"
)

func newWatchCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [file]",
		Short: "Watch session output directories for new artifacts",
		Long: `Watch follows the session's output directories and reports files the
pipeline writes, classified by stage. Missing directories are created so
watching can start before the first run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := session.Load(sessionPath(args))
			if err != nil {
				return err
			}

			dirs := watchDirs(cfg)
			if len(dirs) == 0 {
				return errors.New("session has no output directories to watch")
			}
			for _, dir := range dirs {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create %s: %w", dir, err)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			events, err := watcher.Watch(ctx, dirs...)
			if err != nil {
				return err
			}

			root.logger.Info("watching for artifacts", "dirs", strings.Join(dirs, ", "))
			for evt := range events {
				cmd.Printf("%s  %-8s  %-7s  %s\n", evt.Time.Format("15:04:05"), evt.Op, evt.Stage, evt.Path)
			}
			return nil
		},
	}
}

// watchDirs resolves the session's output directories against its root.
func watchDirs(cfg session.Config) []string {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(cfg.Root, p)
	}

	var dirs []string
	seen := make(map[string]struct{})
	for _, dir := range []string{resolve(cfg.OutputRoot), resolve(cfg.FinalResults)} {
		if dir == "" {
			continue
		}
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}
	return dirs
}
