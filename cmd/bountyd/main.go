// Command bountyd runs the bounty lifecycle engine.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/bountyboard/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
