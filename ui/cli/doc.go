// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.
//
// Package cli implements the credvault command-line interface using Cobra.
// It loads configuration, opens the application through internal/app and
// delegates every operation to the key registry or the credential store.
// CLI code stays thin: it parses flags, prompts, prints and maps errors to
// translated messages.
package cli
