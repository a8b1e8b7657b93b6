// Copyright 2026 The Wormhole Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cmd implements the CLI front-end of spec.md §6: a cobra command
// tree whose leaves encode the local-IPC Command vocabulary and talk to a
// running Service over its Unix domain socket. Commands that have no
// running Service to dial (notably "service", which *is* the Service) are
// the only ones that construct one directly. Grounded on the teacher's
// cmd/root.go (rootCmd + Execute + PersistentFlags idiom) and
// original_source/src/ipc/command.rs for the vocabulary itself.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// defaultSocketPath is the platform default named local socket spec.md §6
// calls for ("platform default or user-specified"), mirroring the
// teacher's own XDG-style default for its config/cache directories.
func defaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir + "/wormhole.sock"
	}
	return "/tmp/wormhole.sock"
}

var socketPath string

var rootCmd = &cobra.Command{
	Use:   "wormhole",
	Short: "Control and run a Wormhole peer-to-peer distributed filesystem node",
	Long: `Wormhole is a peer-to-peer distributed filesystem. "wormhole service"
runs the long-lived daemon that hosts one or more Pods; every other
subcommand is a thin client that sends one Command to a running service
over its local socket and prints the resulting Answer.`,
	SilenceUsage: true,
}

// Execute runs the command tree, printing any error to stderr and exiting
// non-zero, matching the teacher's own Execute().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", defaultSocketPath(),
		"path to the wormhole service's local IPC socket")
}
