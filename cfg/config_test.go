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

package cfg_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agartha-software/wormhole/cfg"
)

func TestDefaultGlobalConfigSeedsRedundancy(t *testing.T) {
	g := cfg.DefaultGlobalConfig("mynet")
	assert.Equal(t, "mynet", g.General.Name)
	assert.Equal(t, cfg.DefaultRedundancy, g.Redundancy.Number)
}

func TestGlobalConfigRoundTripsThroughTOML(t *testing.T) {
	want := cfg.GlobalConfig{
		General: cfg.GlobalGeneral{
			Name:        "mynet",
			Entrypoints: []string{"http://a", "http://b"},
			Hosts:       []string{"peerA", "peerB"},
		},
		Redundancy: cfg.Redundancy{Number: 3},
	}

	data, err := cfg.WriteGlobal(want)
	require.NoError(t, err)

	got, err := cfg.ReadGlobal(data)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLocalConfigRoundTripsThroughTOML(t *testing.T) {
	want := cfg.LocalConfig{General: cfg.LocalGeneral{
		Hostname:  "host1",
		PublicURL: "http://host1:4242",
		Restart:   true,
	}}

	data, err := cfg.WriteLocal(want)
	require.NoError(t, err)

	got, err := cfg.ReadLocal(data)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestGlobalGuardGetSetRoundTrips(t *testing.T) {
	g := cfg.NewGlobalGuard(cfg.DefaultGlobalConfig("a"))
	updated := cfg.DefaultGlobalConfig("b")
	require.NoError(t, g.Set(updated))

	got, err := g.Get()
	require.NoError(t, err)
	assert.Equal(t, "b", got.General.Name)
}

func TestLocalGuardGetSetRoundTrips(t *testing.T) {
	g := cfg.NewLocalGuard(cfg.LocalConfig{})
	want := cfg.LocalConfig{General: cfg.LocalGeneral{Hostname: "h"}}
	require.NoError(t, g.Set(want))

	got, err := g.Get()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLocalGuardRejectsHostnameChangeOnceEstablished(t *testing.T) {
	g := cfg.NewLocalGuard(cfg.LocalConfig{General: cfg.LocalGeneral{Hostname: "h1"}})

	err := g.Set(cfg.LocalConfig{General: cfg.LocalGeneral{Hostname: "h2"}})
	require.Error(t, err)

	// Everything but the hostname stays mutable.
	require.NoError(t, g.Set(cfg.LocalConfig{General: cfg.LocalGeneral{Hostname: "h1", PublicURL: "http://h1:4242"}}))
}
