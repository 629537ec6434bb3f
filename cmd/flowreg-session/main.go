// Command flowreg-session edits FlowReg session configurations and launches
// motion-compensation runs against them.
package main

import (
	"os"

	"github.com/FlowRegSuite/flowreg-session-gui/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
