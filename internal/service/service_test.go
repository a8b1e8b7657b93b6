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
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agartha-software/wormhole/internal/service"
)

func TestNewThenListPods(t *testing.T) {
	svc := service.New(prometheus.NewRegistry())
	ctx := context.Background()

	answer := svc.Handle(ctx, service.Command{Kind: service.CmdNew, PodName: "alpha"})
	require.Equal(t, service.AnsOK, answer.Kind, answer.Error)

	list := svc.Handle(ctx, service.Command{Kind: service.CmdListPods})
	require.Equal(t, service.AnsPodList, list.Kind)
	require.Len(t, list.Pods, 1)
	assert.Equal(t, "alpha", list.Pods[0].Name)
	assert.False(t, list.Pods[0].Frozen)
}

func TestNewDuplicateNameErrors(t *testing.T) {
	svc := service.New(prometheus.NewRegistry())
	ctx := context.Background()

	require.Equal(t, service.AnsOK, svc.Handle(ctx, service.Command{Kind: service.CmdNew, PodName: "alpha"}).Kind)

	answer := svc.Handle(ctx, service.Command{Kind: service.CmdNew, PodName: "alpha"})
	assert.Equal(t, service.AnsError, answer.Kind)
	assert.NotEmpty(t, answer.Error)
}

func TestFreezeAndUnfreezeTogglesSummary(t *testing.T) {
	svc := service.New(prometheus.NewRegistry())
	ctx := context.Background()
	require.Equal(t, service.AnsOK, svc.Handle(ctx, service.Command{Kind: service.CmdNew, PodName: "alpha"}).Kind)

	require.Equal(t, service.AnsOK, svc.Handle(ctx, service.Command{Kind: service.CmdFreeze, PodName: "alpha"}).Kind)
	status := svc.Handle(ctx, service.Command{Kind: service.CmdStatus, PodName: "alpha"})
	require.Equal(t, service.AnsStatus, status.Kind)
	assert.True(t, status.Status.Summary.Frozen)

	require.Equal(t, service.AnsOK, svc.Handle(ctx, service.Command{Kind: service.CmdUnfreeze, PodName: "alpha"}).Kind)
	status = svc.Handle(ctx, service.Command{Kind: service.CmdStatus, PodName: "alpha"})
	assert.False(t, status.Status.Summary.Frozen)
}

func TestOperationsOnUnknownPodError(t *testing.T) {
	svc := service.New(prometheus.NewRegistry())
	ctx := context.Background()

	for _, kind := range []service.CommandKind{
		service.CmdRemove, service.CmdFreeze, service.CmdUnfreeze,
		service.CmdInspect, service.CmdTree, service.CmdGetHosts,
		service.CmdStatus, service.CmdRestart, service.CmdShowConfig,
		service.CmdApplyConfig,
	} {
		answer := svc.Handle(ctx, service.Command{Kind: kind, PodName: "ghost"})
		assert.Equal(t, service.AnsError, answer.Kind, kind.String())
	}
}

func TestGenerateConfigProducesApplicableDocument(t *testing.T) {
	svc := service.New(prometheus.NewRegistry())
	ctx := context.Background()

	gen := svc.Handle(ctx, service.Command{Kind: service.CmdGenerateConfig, PodName: "alpha", Redundancy: 3})
	require.Equal(t, service.AnsConfigDocument, gen.Kind)
	require.NotEmpty(t, gen.ConfigBody)

	check := svc.Handle(ctx, service.Command{Kind: service.CmdCheckConfig, ConfigBody: gen.ConfigBody})
	assert.Equal(t, service.AnsOK, check.Kind, check.Error)
}

func TestCheckConfigRejectsGarbage(t *testing.T) {
	svc := service.New(prometheus.NewRegistry())
	ctx := context.Background()

	answer := svc.Handle(ctx, service.Command{Kind: service.CmdCheckConfig, ConfigBody: []byte("not = [valid toml")})
	assert.Equal(t, service.AnsError, answer.Kind)
}

func TestUnknownCommandKindErrors(t *testing.T) {
	svc := service.New(prometheus.NewRegistry())
	answer := svc.Handle(context.Background(), service.Command{Kind: service.CommandKind(999)})
	assert.Equal(t, service.AnsError, answer.Kind)
}

func TestCommandKindStringNamesEveryVariant(t *testing.T) {
	for k := service.CmdNew; k <= service.CmdApplyConfig; k++ {
		assert.NotEqual(t, "Unknown", k.String())
	}
}
