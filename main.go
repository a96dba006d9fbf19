// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

// Command-line entrypoint for credvault.
//
// Usage:
//
//	go run . [flags]
//	./credvault [flags]
//
// See --help for the available commands.
package main

import (
	"fmt"
	"os"

	"github.com/toeirei/credvault/ui/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
