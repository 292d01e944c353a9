// Command l0csim is a pointer to the simulator CLI in cmd/l0csim, which
// holds the run and config commands.
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Fprintln(os.Stderr,
		"l0csim: use 'go run ./cmd/l0csim --help' to list the commands")
	os.Exit(2)
}
