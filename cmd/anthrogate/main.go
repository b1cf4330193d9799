// Command anthrogate runs the reverse proxy described in the root
// package: terminate the Anthropic Messages API, route each request to
// a configured downstream, and translate at the edges when the
// downstream doesn't natively speak that surface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nilsecker/anthrogate/cmd/anthrogate/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.Execute(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
