// Package main provides the l0csim command, which runs a randomized
// testbench against the L0 cache model.
package main

import "github.com/tebeka/atexit"

func main() {
	atexit.Exit(Execute())
}
