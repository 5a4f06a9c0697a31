// Package main provides the entry point for stpctl.
package main

import (
	"fmt"
	"os"

	"github.com/dmirchev92/stp/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
