// Package main is the entry point for the hoststack IPv4 host stack.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/hoststack/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
