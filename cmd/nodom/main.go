// Command nodom serves CUE service descriptions to thin websocket clients.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/nodom/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
