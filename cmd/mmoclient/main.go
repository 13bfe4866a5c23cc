// Command mmoclient is a headless client for the mmorpg database module.
package main

import (
	"fmt"
	"os"

	"github.com/rickgao/mmorpg-client/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
