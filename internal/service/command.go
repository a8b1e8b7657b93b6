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

// Package service implements the multi-Pod host process of spec.md §4.8-
// §9 ("Service", "Global mutable state") and its CLI local IPC schema of
// spec.md §6: a Command/Answer vocabulary framed with a 4-byte big-endian
// length prefix over a gob encoding, exchanged one command/one answer per
// accepted connection on a local socket — grounded on
// original_source/src/service.rs and src/ipc/{command,answer}.rs for the
// vocabulary, and on the teacher's cmd/root.go for the "one process, many
// mounts" shape (gcsfuse mounts one bucket per process; Service
// generalizes that to the map[string]*Pod spec.md §9 calls for).
package service

import "github.com/agartha-software/wormhole/internal/pod"

// CommandKind discriminates Command, the Go counterpart of the original's
// Command enum (src/ipc/command.rs).
type CommandKind int

const (
	CmdNew CommandKind = iota
	CmdRemove
	CmdFreeze
	CmdUnfreeze
	CmdRestart
	CmdInspect
	CmdTree
	CmdGetHosts
	CmdStatus
	CmdListPods
	CmdGenerateConfig
	CmdShowConfig
	CmdCheckConfig
	CmdApplyConfig
)

func (k CommandKind) String() string {
	names := [...]string{
		"New", "Remove", "Freeze", "Unfreeze", "Restart", "Inspect", "Tree",
		"GetHosts", "Status", "ListPods", "GenerateConfig", "ShowConfig",
		"CheckConfig", "ApplyConfig",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// Command is the single envelope every CLI-to-Service request travels in,
// matching spec.md §6's "Commands: New, Remove, Freeze, ..." list. Only the
// fields relevant to Kind are populated, the same flattened-enum approach
// internal/network.Message takes for the peer wire protocol.
type Command struct {
	Kind CommandKind

	PodName     string
	MountPoint  string
	Entrypoints []string
	Hostname    string
	PublicURL   string
	Redundancy  int

	Path string // Tree/Inspect's optional subtree root, "" means mount root

	ConfigPath string // GenerateConfig/ShowConfig/CheckConfig/ApplyConfig target
	ConfigBody []byte // ApplyConfig's new document
}

// AnswerKind discriminates Answer, the Go counterpart of the original's
// Answer enum (src/ipc/answer.rs). Every Command has a matching success
// variant and an Error variant carrying a human-readable reason, per
// spec.md §6's "Each has a matching answer variant enumerating success and
// every failure reason."
type AnswerKind int

const (
	AnsOK AnswerKind = iota
	AnsError
	AnsPodList
	AnsTree
	AnsHosts
	AnsStatus
	AnsConfigDocument
)

// Answer is the Service's single reply envelope.
type Answer struct {
	Kind AnswerKind

	Error string

	Pods       []PodSummary
	TreeJSON   []byte
	Hosts      []string
	Status     PodStatus
	ConfigBody []byte
}

// PodSummary is one row of a ListPods/Status reply.
type PodSummary struct {
	Name       string
	Frozen     bool
	Peers      int
	Mount      string
	Redundancy int
}

// PodStatus is Inspect/Status's detailed per-Pod reply.
type PodStatus struct {
	Summary PodSummary
	Peers   []pod.PeerInfo
}

func okAnswer() Answer           { return Answer{Kind: AnsOK} }
func errAnswer(err error) Answer { return Answer{Kind: AnsError, Error: err.Error()} }
