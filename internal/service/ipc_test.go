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

package service_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agartha-software/wormhole/internal/service"
)

func TestListenServeRoundTrip(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "wormhole.sock")

	svc := service.New(prometheus.NewRegistry())
	ln, err := service.Listen(sockPath, svc)
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ln.Serve(ctx)
	time.Sleep(20 * time.Millisecond)

	conn, err := service.Dial(sockPath)
	require.NoError(t, err)
	defer conn.Close()

	answer, err := service.Call(conn, service.Command{Kind: service.CmdGenerateConfig, PodName: "alpha"})
	require.NoError(t, err)
	assert.Equal(t, service.AnsConfigDocument, answer.Kind)
	assert.NotEmpty(t, answer.ConfigBody)
}

func TestListenSucceedsAgainAfterClose(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "wormhole.sock")

	svc := service.New(prometheus.NewRegistry())
	first, err := service.Listen(sockPath, svc)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := service.Listen(sockPath, svc)
	require.NoError(t, err)
	defer second.Close()
}
