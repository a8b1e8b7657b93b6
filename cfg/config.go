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

// Package cfg holds the two persisted-config schemas spec.md §4.4.1
// describes: the replicated GlobalConfig (".global_config.toml", Ino 2) and
// the per-host, non-replicated LocalConfig (".local_config.toml", Ino 3).
// Both are TOML documents read and written through spf13/viper, matching
// the teacher's cfg package in everything but the file format — this repo's
// config lives inside the replicated filesystem itself, not a CLI flag set,
// so there is no pflag/cobra binding here.
package cfg

// GlobalConfig is the network-wide configuration every peer replicates
// verbatim, per spec.md's ".global_config.toml (Ino 2, replicated)".
type GlobalConfig struct {
	General    GlobalGeneral `mapstructure:"general" toml:"general"`
	Redundancy Redundancy    `mapstructure:"redundancy" toml:"redundancy"`
}

// GlobalGeneral is the "[general]" table of GlobalConfig.
type GlobalGeneral struct {
	Name        string   `mapstructure:"name" toml:"name"`
	Entrypoints []string `mapstructure:"entrypoints" toml:"entrypoints"`
	Hosts       []string `mapstructure:"hosts" toml:"hosts"`
}

// Redundancy is the "[redundancy]" table of GlobalConfig.
type Redundancy struct {
	Number int `mapstructure:"number" toml:"number"`
}

// LocalConfig is the per-host configuration spec.md keeps out of
// replication ("NOT replicated"): a host's own advertised identity.
type LocalConfig struct {
	General LocalGeneral `mapstructure:"general" toml:"general"`
}

// LocalGeneral is the "[general]" table of LocalConfig.
type LocalGeneral struct {
	Hostname  string `mapstructure:"hostname" toml:"hostname"`
	PublicURL string `mapstructure:"public_url" toml:"public_url"`
	Restart   bool   `mapstructure:"restart" toml:"restart"`
}

// DefaultRedundancy is the replica count new networks are seeded with when
// no operator value was supplied at "New" time.
const DefaultRedundancy = 2

// DefaultGlobalConfig returns the GlobalConfig a freshly created network
// starts from, mirroring the teacher's GetDefaultLoggingConfig shape: a
// pure function of the network name, used both by generate-config and by
// the scratch-start path of Pod creation.
func DefaultGlobalConfig(name string) GlobalConfig {
	return GlobalConfig{
		General:    GlobalGeneral{Name: name},
		Redundancy: Redundancy{Number: DefaultRedundancy},
	}
}
