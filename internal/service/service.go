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

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agartha-software/wormhole/cfg"
	"github.com/agartha-software/wormhole/internal/itree"
	"github.com/agartha-software/wormhole/internal/logger"
	"github.com/agartha-software/wormhole/internal/pod"
)

// Service is the multi-Pod host process of spec.md §9's "Global mutable
// state": a single owned map[string]*Pod plus a frozen set, mutated only
// from the command handlers below (never exposed as a process-wide
// global, exactly as the spec requires).
type Service struct {
	Registry prometheus.Registerer

	mu     sync.Mutex
	pods   map[string]*pod.Pod
	frozen map[string]bool
}

// New returns an empty Service.
func New(reg prometheus.Registerer) *Service {
	return &Service{Registry: reg, pods: map[string]*pod.Pod{}, frozen: map[string]bool{}}
}

// Handle dispatches one Command to the matching handler and returns its
// Answer, the single entry point the IPC accept loop calls per connection.
func (s *Service) Handle(ctx context.Context, cmd Command) Answer {
	switch cmd.Kind {
	case CmdNew:
		return s.handleNew(ctx, cmd)
	case CmdRemove:
		return s.handleRemove(ctx, cmd)
	case CmdFreeze:
		return s.handleFreeze(cmd, true)
	case CmdUnfreeze:
		return s.handleFreeze(cmd, false)
	case CmdRestart:
		return s.handleRestart(ctx, cmd)
	case CmdInspect:
		return s.handleInspect(cmd)
	case CmdTree:
		return s.handleTree(cmd)
	case CmdGetHosts:
		return s.handleGetHosts(cmd)
	case CmdStatus:
		return s.handleStatus(cmd)
	case CmdListPods:
		return s.handleListPods()
	case CmdGenerateConfig:
		return s.handleGenerateConfig(cmd)
	case CmdShowConfig:
		return s.handleShowConfig(cmd)
	case CmdCheckConfig:
		return s.handleCheckConfig(cmd)
	case CmdApplyConfig:
		return s.handleApplyConfig(cmd)
	default:
		return errAnswer(fmt.Errorf("service: unknown command %v", cmd.Kind))
	}
}

func (s *Service) handleNew(ctx context.Context, cmd Command) Answer {
	s.mu.Lock()
	if _, exists := s.pods[cmd.PodName]; exists {
		s.mu.Unlock()
		return errAnswer(fmt.Errorf("pod %q already exists", cmd.PodName))
	}
	s.mu.Unlock()

	opts := pod.Options{
		Name:        cmd.PodName,
		MountPoint:  cmd.MountPoint,
		Hostname:    itree.PeerID(cmd.Hostname),
		PublicURL:   cmd.PublicURL,
		Entrypoints: cmd.Entrypoints,
		Registry:    s.Registry,
		MountFS:     true,
	}

	var (
		p   *pod.Pod
		err error
	)
	if len(cmd.Entrypoints) > 0 {
		p, err = pod.Join(ctx, opts)
	} else {
		p, err = pod.NewFromScratch(ctx, opts)
	}
	if err != nil {
		return errAnswer(fmt.Errorf("starting pod %q: %w", cmd.PodName, err))
	}

	s.mu.Lock()
	s.pods[cmd.PodName] = p
	s.mu.Unlock()

	logger.Infof("service: pod %q started at %s", cmd.PodName, cmd.MountPoint)
	return okAnswer()
}

func (s *Service) handleRemove(ctx context.Context, cmd Command) Answer {
	p, err := s.takePod(cmd.PodName)
	if err != nil {
		return errAnswer(err)
	}
	if err := p.Stop(ctx); err != nil {
		return errAnswer(fmt.Errorf("stopping pod %q: %w", cmd.PodName, err))
	}
	s.mu.Lock()
	delete(s.frozen, cmd.PodName)
	s.mu.Unlock()
	return okAnswer()
}

func (s *Service) takePod(name string) (*pod.Pod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pods[name]
	if !ok {
		return nil, fmt.Errorf("no such pod %q", name)
	}
	delete(s.pods, name)
	return p, nil
}

func (s *Service) getPod(name string) (*pod.Pod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pods[name]
	if !ok {
		return nil, fmt.Errorf("no such pod %q", name)
	}
	return p, nil
}

// handleFreeze toggles the frozen set only; nothing outside Service reads
// that set, so freezing a pod changes no FsInterface or RedundancyWorker
// behavior and is visible only as PodSummary.Frozen, mirroring the
// original's FrozenPodsMap being a plain membership set rather than a
// behavior-bearing type.
func (s *Service) handleFreeze(cmd Command, frozen bool) Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pods[cmd.PodName]; !ok {
		return errAnswer(fmt.Errorf("no such pod %q", cmd.PodName))
	}
	if frozen {
		s.frozen[cmd.PodName] = true
	} else {
		delete(s.frozen, cmd.PodName)
	}
	return okAnswer()
}

func (s *Service) handleRestart(ctx context.Context, cmd Command) Answer {
	p, err := s.takePod(cmd.PodName)
	if err != nil {
		return errAnswer(err)
	}
	global, _ := p.GlobalCfg.Get()
	local, _ := p.LocalCfg.Get()
	mountPoint := cmd.MountPoint
	if mountPoint == "" {
		mountPoint = p.MountPoint
	}
	if err := p.Stop(ctx); err != nil {
		logger.Warnf("service: restart stop of %q: %v", cmd.PodName, err)
	}

	opts := pod.Options{
		Name: cmd.PodName, MountPoint: mountPoint,
		Hostname: itree.PeerID(local.General.Hostname), PublicURL: local.General.PublicURL,
		Registry: s.Registry, MountFS: true,
	}
	newPod, err := pod.NewFromScratch(ctx, opts)
	if err != nil {
		return errAnswer(fmt.Errorf("restarting pod %q: %w", cmd.PodName, err))
	}
	_ = newPod.GlobalCfg.Set(global)

	s.mu.Lock()
	s.pods[cmd.PodName] = newPod
	s.mu.Unlock()
	return okAnswer()
}

func (s *Service) handleInspect(cmd Command) Answer {
	p, err := s.getPod(cmd.PodName)
	if err != nil {
		return errAnswer(err)
	}
	return Answer{Kind: AnsStatus, Status: PodStatus{
		Summary: s.summaryOf(cmd.PodName, p),
		Peers:   p.Peers(),
	}}
}

func (s *Service) handleStatus(cmd Command) Answer {
	if cmd.PodName == "" {
		return s.handleListPods()
	}
	return s.handleInspect(cmd)
}

func (s *Service) handleListPods() Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PodSummary, 0, len(s.pods))
	for name, p := range s.pods {
		out = append(out, s.summaryOfLocked(name, p))
	}
	return Answer{Kind: AnsPodList, Pods: out}
}

func (s *Service) summaryOf(name string, p *pod.Pod) PodSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryOfLocked(name, p)
}

func (s *Service) summaryOfLocked(name string, p *pod.Pod) PodSummary {
	global, _ := p.GlobalCfg.Get()
	peers, _ := p.Net.Peers()
	return PodSummary{
		Name: name, Frozen: s.frozen[name], Peers: len(peers),
		Mount: p.MountPoint, Redundancy: global.Redundancy.Number,
	}
}

// treeNode is the JSON shape handleTree renders a subtree into for the
// CLI's Tree command, spec.md §6.
type treeNode struct {
	Name     string     `json:"name"`
	Ino      uint64     `json:"ino"`
	Kind     string     `json:"kind"`
	Children []treeNode `json:"children,omitempty"`
}

func (s *Service) handleTree(cmd Command) Answer {
	p, err := s.getPod(cmd.PodName)
	if err != nil {
		return errAnswer(err)
	}
	root := cmd.Path
	if root == "" {
		root = "/"
	}
	in, err := p.Tree.GetInodeFromPath(root)
	if err != nil {
		return errAnswer(err)
	}
	node, err := s.buildTree(p, in)
	if err != nil {
		return errAnswer(err)
	}
	data, err := json.Marshal(node)
	if err != nil {
		return errAnswer(err)
	}
	return Answer{Kind: AnsTree, TreeJSON: data}
}

func (s *Service) buildTree(p *pod.Pod, in itree.Inode) (treeNode, error) {
	node := treeNode{Name: string(in.Name), Ino: uint64(in.ID), Kind: kindName(in.Entry.Kind())}
	if in.Entry.Kind() != itree.EntryDirectory {
		return node, nil
	}
	for _, childID := range in.Entry.Children() {
		child, err := p.Tree.GetInode(childID)
		if err != nil {
			continue
		}
		childNode, err := s.buildTree(p, child)
		if err != nil {
			continue
		}
		node.Children = append(node.Children, childNode)
	}
	return node, nil
}

func kindName(k itree.EntryKind) string {
	switch k {
	case itree.EntryDirectory:
		return "directory"
	case itree.EntrySymlink:
		return "symlink"
	default:
		return "file"
	}
}

func (s *Service) handleGetHosts(cmd Command) Answer {
	p, err := s.getPod(cmd.PodName)
	if err != nil {
		return errAnswer(err)
	}
	in, err := p.Tree.GetInodeFromPath(cmd.Path)
	if err != nil {
		return errAnswer(err)
	}
	hosts, err := p.FS.HostsOf(in.ID)
	if err != nil {
		return errAnswer(err)
	}
	out := make([]string, len(hosts))
	for i, h := range hosts {
		out[i] = string(h)
	}
	return Answer{Kind: AnsHosts, Hosts: out}
}

func (s *Service) handleGenerateConfig(cmd Command) Answer {
	global := cfg.DefaultGlobalConfig(cmd.PodName)
	if cmd.Redundancy > 0 {
		global.Redundancy.Number = cmd.Redundancy
	}
	global.General.Entrypoints = cmd.Entrypoints
	body, err := cfg.WriteGlobal(global)
	if err != nil {
		return errAnswer(err)
	}
	return Answer{Kind: AnsConfigDocument, ConfigBody: body}
}

func (s *Service) handleShowConfig(cmd Command) Answer {
	p, err := s.getPod(cmd.PodName)
	if err != nil {
		return errAnswer(err)
	}
	global, err := p.GlobalCfg.Get()
	if err != nil {
		return errAnswer(err)
	}
	body, err := cfg.WriteGlobal(global)
	if err != nil {
		return errAnswer(err)
	}
	return Answer{Kind: AnsConfigDocument, ConfigBody: body}
}

func (s *Service) handleCheckConfig(cmd Command) Answer {
	if _, err := cfg.ReadGlobal(cmd.ConfigBody); err != nil {
		return errAnswer(fmt.Errorf("invalid config: %w", err))
	}
	return okAnswer()
}

func (s *Service) handleApplyConfig(cmd Command) Answer {
	p, err := s.getPod(cmd.PodName)
	if err != nil {
		return errAnswer(err)
	}
	global, err := cfg.ReadGlobal(cmd.ConfigBody)
	if err != nil {
		return errAnswer(fmt.Errorf("invalid config: %w", err))
	}
	if err := p.GlobalCfg.Set(global); err != nil {
		return errAnswer(err)
	}
	return okAnswer()
}

// StopAll stops every running Pod, used by the Service process's own
// shutdown path (signal handling is out of scope per spec.md §1).
func (s *Service) StopAll(ctx context.Context) {
	s.mu.Lock()
	pods := make(map[string]*pod.Pod, len(s.pods))
	for k, v := range s.pods {
		pods[k] = v
	}
	s.pods = map[string]*pod.Pod{}
	s.mu.Unlock()

	for name, p := range pods {
		if err := p.Stop(ctx); err != nil {
			logger.Warnf("service: stopping pod %q during shutdown: %v", name, err)
		}
	}
}
