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

package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agartha-software/wormhole/internal/service"
)

func TestRootCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{
		"new", "remove", "freeze", "unfreeze", "restart", "inspect", "tree",
		"get-hosts", "status", "list-pods", "generate-config", "show-config",
		"check-config", "apply-config", "service",
	} {
		assert.True(t, names[want], "expected subcommand %q to be registered", want)
	}
}

func TestDefaultSocketPath(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")
	assert.Equal(t, "/tmp/wormhole.sock", defaultSocketPath())

	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	assert.Equal(t, "/run/user/1000/wormhole.sock", defaultSocketPath())
}

func TestSendCommandFailsWithoutAService(t *testing.T) {
	old := socketPath
	defer func() { socketPath = old }()
	socketPath = t.TempDir() + "/no-such-service.sock"

	_, err := sendCommand(service.Command{Kind: service.CmdListPods})
	require.Error(t, err)
}
