// ABOUTME: Entry point for the visualization daemon
// ABOUTME: Builds the cobra command tree and exits non-zero on failure
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
