// Command deadnet drives the simulated mail system from a terminal.
package main

import (
	"fmt"
	"os"

	"github.com/ryandotelliott/dead-internet/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "deadnet:", err)
		os.Exit(1)
	}
}
