package testsupport

import (
	"context"
	"fmt"

	"github.com/FlowRegSuite/flowreg-session-gui/pkg/renderers/tui"
)

// ScriptedDriver implements tui.PromptDriver with canned answers so editor
// flows can be exercised without a terminal. Answers are consumed in order;
// running out of script fails the prompt with a descriptive error.
type ScriptedDriver struct {
	Inputs       []string
	Confirms     []bool
	Selects      []int
	MultiSelects [][]int
	TextAreas    []string

	// Call records, appended in prompt order for assertions.
	InputCalls    []tui.InputConfig
	ConfirmCalls  []tui.ConfirmConfig
	SelectCalls   []tui.SelectConfig
	MultiCalls    []tui.SelectConfig
	TextAreaCalls []tui.TextAreaConfig
	Infos         []string

	nextInput    int
	nextConfirm  int
	nextSelect   int
	nextMulti    int
	nextTextArea int
}

func (d *ScriptedDriver) Input(_ context.Context, cfg tui.InputConfig) (string, error) {
	d.InputCalls = append(d.InputCalls, cfg)
	if d.nextInput >= len(d.Inputs) {
		return "", fmt.Errorf("testsupport: no input scripted for %q", cfg.Message)
	}
	v := d.Inputs[d.nextInput]
	d.nextInput++
	return v, nil
}

func (d *ScriptedDriver) Confirm(_ context.Context, cfg tui.ConfirmConfig) (bool, error) {
	d.ConfirmCalls = append(d.ConfirmCalls, cfg)
	if d.nextConfirm >= len(d.Confirms) {
		return false, fmt.Errorf("testsupport: no confirm scripted for %q", cfg.Message)
	}
	v := d.Confirms[d.nextConfirm]
	d.nextConfirm++
	return v, nil
}

func (d *ScriptedDriver) Select(_ context.Context, cfg tui.SelectConfig) (int, error) {
	d.SelectCalls = append(d.SelectCalls, cfg)
	if d.nextSelect >= len(d.Selects) {
		return 0, fmt.Errorf("testsupport: no select scripted for %q", cfg.Message)
	}
	v := d.Selects[d.nextSelect]
	d.nextSelect++
	return v, nil
}

func (d *ScriptedDriver) MultiSelect(_ context.Context, cfg tui.SelectConfig) ([]int, error) {
	d.MultiCalls = append(d.MultiCalls, cfg)
	if d.nextMulti >= len(d.MultiSelects) {
		return nil, fmt.Errorf("testsupport: no multi-select scripted for %q", cfg.Message)
	}
	v := d.MultiSelects[d.nextMulti]
	d.nextMulti++
	return v, nil
}

func (d *ScriptedDriver) TextArea(_ context.Context, cfg tui.TextAreaConfig) (string, error) {
	d.TextAreaCalls = append(d.TextAreaCalls, cfg)
	if d.nextTextArea >= len(d.TextAreas) {
		return "", fmt.Errorf("testsupport: no text area scripted for %q", cfg.Message)
	}
	v := d.TextAreas[d.nextTextArea]
	d.nextTextArea++
	return v, nil
}

func (d *ScriptedDriver) Info(_ context.Context, msg string) error {
	d.Infos = append(d.Infos, msg)
	return nil
}
