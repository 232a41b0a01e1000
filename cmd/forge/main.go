// Command forge is the operator-facing CLI over the agent lifecycle and
// workflow orchestration core, grounded on the teacher's cmd/conductor/main.go:
// a thin main that builds the root cobra command and hands control to it.
package main

import (
	"github.com/tombee/forge/internal/cli"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	cli.SetVersion(version, commit)

	root := cli.NewRootCommand()
	if err := root.Execute(); err != nil {
		cli.HandleExitError(err)
	}
}
