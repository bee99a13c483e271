// Command stockctl manages a stockcore catalog from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"stockcore/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := cli.NewRootCommand().ExecuteContext(ctx)
	code := cli.GetExitCode(err)
	// Negative outcomes were already reported by the command.
	if err != nil && code != cli.ExitFailure {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	stop()
	os.Exit(code)
}
