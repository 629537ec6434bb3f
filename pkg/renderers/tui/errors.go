package tui

import "errors"

// ErrAborted signals the user aborted input (e.g., Ctrl+C or declining the
// final save confirmation).
var ErrAborted = errors.New("tui: aborted")
