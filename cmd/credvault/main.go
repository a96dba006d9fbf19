// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

// Command credvault manages encrypted device credentials and their keys.
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
