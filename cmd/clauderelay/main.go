// Package main provides the entry point for the clauderelay CLI.
package main

import (
	"fmt"
	"os"

	"github.com/clauderelay/clauderelay/cmd/clauderelay/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
