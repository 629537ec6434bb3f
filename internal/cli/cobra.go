package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	sessiongui "github.com/FlowRegSuite/flowreg-session-gui"
	"github.com/FlowRegSuite/flowreg-session-gui/internal/config"
	"github.com/FlowRegSuite/flowreg-session-gui/internal/journal"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/schema"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/session"
)

// NewRootCmd builds the flowreg-session command tree.
func NewRootCmd() *cobra.Command {
	root := &Root{}

	cmd := &cobra.Command{
		Use:   "flowreg-session",
		Short: "Edit and run FlowReg motion-compensation sessions",
		Long: `flowreg-session edits the YAML session configuration consumed by the
FlowReg pipeline worker and launches compensation runs against it.

Session files default to session.yaml in the working directory; every
command also accepts an explicit path.`,
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return root.init()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&root.configPath, "config", "", "application config file (default ~/.config/flowreg-session/config.json)")
	flags.StringVar(&root.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	flags.StringVar(&root.logFormat, "log-format", "", "override the configured log format (text, json)")

	cmd.AddCommand(
		newEditCmd(root),
		newNewCmd(root),
		newShowCmd(root),
		newValidateCmd(root),
		newRunCmd(root),
		newRunsCmd(root),
		newSchemaCmd(root),
		newServeCmd(root),
		newWatchCmd(root),
		newConfigCmd(root),
	)
	return cmd
}

func newNewCmd(root *Root) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "new [file]",
		Short: "Write a session configuration with worker defaults",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := sessionPath(args)
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				}
			}
			if err := session.Save(session.Default(), path, root.saveOptions()...); err != nil {
				return err
			}
			cmd.Println(path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newShowCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "show [file]",
		Short: "Print a session configuration as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := session.Load(sessionPath(args))
			if err != nil {
				return err
			}
			raw, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			cmd.Print(string(raw))
			return nil
		},
	}
}

func newValidateCmd(root *Root) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a session configuration",
		Long: `Validate checks required fields, enum membership, and numeric ranges.
With --strict the values are additionally checked against the exported
OpenAPI schema.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := sessionPath(args)
			cfg, err := session.Load(path)
			if err != nil {
				return err
			}
			if strict {
				form, err := sessiongui.SessionForm(cfg)
				if err != nil {
					return err
				}
				doc, err := schema.Export(form, schema.Info{
					Title:       sessiongui.FormTitle,
					Version:     schemaVersion,
					Description: sessiongui.FormDescription,
				})
				if err != nil {
					return err
				}
				if err := schema.ValidateValues(doc, cfg.Values()); err != nil {
					return err
				}
			}
			cmd.Printf("%s is valid\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "also check values against the exported schema")
	return cmd
}

func newRunsCmd(root *Root) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded pipeline runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := journal.New(root.cfg.JournalPath())
			if err != nil {
				return err
			}
			defer store.Close()

			recs, err := store.Recent(limit)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				cmd.Println("no runs recorded")
				return nil
			}
			for _, rec := range recs {
				cmd.Printf("%s  %-7s  %s  %-10s  %s\n",
					rec.ID, rec.Mode, rec.StartedAt.Local().Format("2006-01-02 15:04:05"), runStatus(rec), rec.ConfigPath)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	return cmd
}

// runStatus renders the journal state of a run for listings.
func runStatus(rec journal.Record) string {
	if rec.FinishedAt == nil {
		return "running"
	}
	if rec.Failed {
		if rec.ExitCode != nil {
			return fmt.Sprintf("failed(%d)", *rec.ExitCode)
		}
		return "failed"
	}
	return "ok"
}

func newSchemaCmd(root *Root) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Export the session schema as an OpenAPI document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			form, err := sessiongui.SessionForm(session.Default())
			if err != nil {
				return err
			}
			doc, err := schema.Export(form, schema.Info{
				Title:       sessiongui.FormTitle,
				Version:     schemaVersion,
				Description: sessiongui.FormDescription,
			})
			if err != nil {
				return err
			}

			var payload []byte
			switch strings.ToLower(format) {
			case "yaml":
				payload, err = schema.MarshalYAML(doc)
			case "json":
				payload, err = schema.MarshalJSON(doc)
			default:
				return fmt.Errorf("unknown schema format %q (want yaml or json)", format)
			}
			if err != nil {
				return err
			}
			cmd.Println(strings.TrimRight(string(payload), "\n"))
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "yaml", "output format: yaml or json")
	return cmd
}

func newConfigCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the application configuration",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default application configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := config.Path(root.configPath)
			if err != nil {
				return err
			}
			if !force {
				if _, err := os.Stat(resolved); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", resolved)
				}
			}
			written, err := config.Save(config.Default(), root.configPath)
			if err != nil {
				return err
			}
			cmd.Println(written)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective application configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := json.MarshalIndent(root.cfg, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(payload))
			return nil
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
