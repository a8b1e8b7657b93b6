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
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agartha-software/wormhole/internal/service"
)

var (
	newMountPoint  string
	newEntrypoints string
	newHostname    string
	newPublicURL   string
	newRedundancy  int
)

var newCmd = &cobra.Command{
	Use:   "new <pod-name>",
	Short: "Start a new Pod, either from scratch or by joining an existing network",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		cmd := service.Command{
			Kind:        service.CmdNew,
			PodName:     args[0],
			MountPoint:  newMountPoint,
			Hostname:    newHostname,
			PublicURL:   newPublicURL,
			Redundancy:  newRedundancy,
			Entrypoints: splitNonEmpty(newEntrypoints),
		}
		_, err := sendCommand(cmd)
		return err
	},
}

func init() {
	newCmd.Flags().StringVar(&newMountPoint, "mount", "", "directory to mount this pod at")
	newCmd.Flags().StringVar(&newEntrypoints, "entrypoints", "", "comma-separated peer URLs to join through; empty starts a fresh network")
	newCmd.Flags().StringVar(&newHostname, "hostname", "", "this host's advertised nickname")
	newCmd.Flags().StringVar(&newPublicURL, "public-url", "", "this host's dial URL for other peers")
	newCmd.Flags().IntVar(&newRedundancy, "redundancy", 0, "replica target for a freshly started network (0 keeps the default)")
	rootCmd.AddCommand(newCmd)
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var removeCmd = &cobra.Command{
	Use:   "remove <pod-name>",
	Short: "Stop a Pod, pushing a last replica of any solely-hosted files first",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		_, err := sendCommand(service.Command{Kind: service.CmdRemove, PodName: args[0]})
		return err
	},
}

var freezeCmd = &cobra.Command{
	Use:   "freeze <pod-name>",
	Short: "Mark a Pod frozen",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		_, err := sendCommand(service.Command{Kind: service.CmdFreeze, PodName: args[0]})
		return err
	},
}

var unfreezeCmd = &cobra.Command{
	Use:   "unfreeze <pod-name>",
	Short: "Clear a Pod's frozen mark",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		_, err := sendCommand(service.Command{Kind: service.CmdUnfreeze, PodName: args[0]})
		return err
	},
}

var restartMountPoint string

var restartCmd = &cobra.Command{
	Use:   "restart <pod-name>",
	Short: "Stop and restart a Pod in place, preserving its global config",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		_, err := sendCommand(service.Command{Kind: service.CmdRestart, PodName: args[0], MountPoint: restartMountPoint})
		return err
	},
}

func init() {
	restartCmd.Flags().StringVar(&restartMountPoint, "mount", "", "mount directory to restart at (defaults to the pod's current one)")
	rootCmd.AddCommand(removeCmd, freezeCmd, unfreezeCmd, restartCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <pod-name>",
	Short: "Show a Pod's peers and redundancy status",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		answer, err := sendCommand(service.Command{Kind: service.CmdInspect, PodName: args[0]})
		if err != nil {
			return err
		}
		printStatus(answer.Status)
		return nil
	},
}

func printStatus(st service.PodStatus) {
	fmt.Printf("%-20s frozen=%-5v peers=%-3d redundancy=%d mount=%s\n",
		st.Summary.Name, st.Summary.Frozen, st.Summary.Peers, st.Summary.Redundancy, st.Summary.Mount)
	for _, p := range st.Peers {
		fmt.Printf("  peer %-20s %s\n", p.PeerID, p.DialURL)
	}
}

var statusCmd = &cobra.Command{
	Use:   "status [pod-name]",
	Short: "Show Pod status: every pod, or one pod's detail",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		var podName string
		if len(args) == 1 {
			podName = args[0]
		}
		answer, err := sendCommand(service.Command{Kind: service.CmdStatus, PodName: podName})
		if err != nil {
			return err
		}
		switch answer.Kind {
		case service.AnsStatus:
			printStatus(answer.Status)
		case service.AnsPodList:
			printPodList(answer.Pods)
		}
		return nil
	},
}

var listPodsCmd = &cobra.Command{
	Use:   "list-pods",
	Short: "List every Pod this service hosts",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		answer, err := sendCommand(service.Command{Kind: service.CmdListPods})
		if err != nil {
			return err
		}
		printPodList(answer.Pods)
		return nil
	},
}

func printPodList(pods []service.PodSummary) {
	for _, p := range pods {
		fmt.Printf("%-20s frozen=%-5v peers=%-3d redundancy=%d mount=%s\n",
			p.Name, p.Frozen, p.Peers, p.Redundancy, p.Mount)
	}
}

var treePath string

var treeCmd = &cobra.Command{
	Use:   "tree <pod-name>",
	Short: "Print a Pod's inode tree (or a subtree) as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		answer, err := sendCommand(service.Command{Kind: service.CmdTree, PodName: args[0], Path: treePath})
		if err != nil {
			return err
		}
		fmt.Println(string(answer.TreeJSON))
		return nil
	},
}

func init() {
	treeCmd.Flags().StringVar(&treePath, "path", "", "subtree root; defaults to the mount root")
	rootCmd.AddCommand(inspectCmd, statusCmd, listPodsCmd, treeCmd)
}

var hostsPath string

var getHostsCmd = &cobra.Command{
	Use:   "get-hosts <pod-name>",
	Short: "List the peers currently storing a file's bytes",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		answer, err := sendCommand(service.Command{Kind: service.CmdGetHosts, PodName: args[0], Path: hostsPath})
		if err != nil {
			return err
		}
		for _, h := range answer.Hosts {
			fmt.Println(h)
		}
		return nil
	},
}

func init() {
	getHostsCmd.Flags().StringVar(&hostsPath, "path", "/", "path of the file to query, relative to the mount root")
	rootCmd.AddCommand(getHostsCmd)
}
