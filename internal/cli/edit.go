package cli

import (
	"errors"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	sessiongui "github.com/FlowRegSuite/flowreg-session-gui"
	"github.com/FlowRegSuite/flowreg-session-gui/internal/runner"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/session"
)

func newEditCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "edit [file]",
		Short: "Edit a session configuration in the terminal",
		Long: `Edit opens the session form in the terminal, prompting field by field
with current values prefilled. Missing files start from worker defaults.
After saving, the pipeline can be launched against the edited session
without leaving the command.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := sessionPath(args)
			cfg, err := loadSession(path, true)
			if err != nil {
				return err
			}

			edited, err := sessiongui.EditConfig(cmd.Context(), cfg)
			if errors.Is(err, sessiongui.ErrAborted) {
				cmd.Println("aborted, nothing saved")
				return nil
			}
			if err != nil {
				return err
			}

			target, err := askSaveTarget(path)
			if err != nil {
				return err
			}
			if err := session.Save(edited, target, root.saveOptions()...); err != nil {
				return err
			}
			root.logger.Info("session saved", "path", target)

			runNow, mode, err := askRunNow()
			if err != nil {
				return err
			}
			if !runNow {
				return nil
			}
			return root.runWorker(cmd.Context(), cmd.OutOrStdout(), edited, target, mode, false)
		},
	}
}

// askSaveTarget prompts for the output path, defaulting to the file the
// session was opened from.
func askSaveTarget(def string) (string, error) {
	target := def
	err := survey.AskOne(
		&survey.Input{Message: "Save to", Default: def},
		&target,
		survey.WithValidator(survey.Required),
	)
	if err != nil {
		return "", err
	}
	return target, nil
}

// askRunNow offers an immediate pipeline run against the saved session.
func askRunNow() (bool, string, error) {
	runNow := false
	if err := survey.AskOne(&survey.Confirm{Message: "Run the pipeline now?"}, &runNow); err != nil {
		return false, "", err
	}
	if !runNow {
		return false, "", nil
	}

	mode := string(runner.ModeAll)
	prompt := &survey.Select{
		Message: "Run mode",
		Options: []string{
			string(runner.ModeAll),
			string(runner.ModeStage1),
			string(runner.ModeStage2),
			string(runner.ModeStage3),
		},
		Default: string(runner.ModeAll),
	}
	if err := survey.AskOne(prompt, &mode); err != nil {
		return false, "", err
	}
	return true, mode, nil
}
