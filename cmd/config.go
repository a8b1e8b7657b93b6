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
	"os"

	"github.com/spf13/cobra"

	"github.com/agartha-software/wormhole/internal/service"
)

var (
	genConfigName        string
	genConfigEntrypoints string
	genConfigRedundancy  int
)

var generateConfigCmd = &cobra.Command{
	Use:   "generate-config",
	Short: "Print a fresh .global_config.toml document for a new network",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		answer, err := sendCommand(service.Command{
			Kind:        service.CmdGenerateConfig,
			PodName:     genConfigName,
			Entrypoints: splitNonEmpty(genConfigEntrypoints),
			Redundancy:  genConfigRedundancy,
		})
		if err != nil {
			return err
		}
		fmt.Print(string(answer.ConfigBody))
		return nil
	},
}

var showConfigCmd = &cobra.Command{
	Use:   "show-config <pod-name>",
	Short: "Print a running Pod's current global config",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		answer, err := sendCommand(service.Command{Kind: service.CmdShowConfig, PodName: args[0]})
		if err != nil {
			return err
		}
		fmt.Print(string(answer.ConfigBody))
		return nil
	},
}

var checkConfigFile string

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate a .global_config.toml document without applying it",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		body, err := os.ReadFile(checkConfigFile)
		if err != nil {
			return fmt.Errorf("reading %s: %w", checkConfigFile, err)
		}
		_, err = sendCommand(service.Command{Kind: service.CmdCheckConfig, ConfigBody: body})
		if err != nil {
			return err
		}
		fmt.Println("config OK")
		return nil
	},
}

var applyConfigFile string

var applyConfigCmd = &cobra.Command{
	Use:   "apply-config <pod-name>",
	Short: "Replace a running Pod's global config and broadcast the change",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		body, err := os.ReadFile(applyConfigFile)
		if err != nil {
			return fmt.Errorf("reading %s: %w", applyConfigFile, err)
		}
		_, err = sendCommand(service.Command{Kind: service.CmdApplyConfig, PodName: args[0], ConfigBody: body})
		return err
	},
}

func init() {
	generateConfigCmd.Flags().StringVar(&genConfigName, "name", "wormhole", "network name")
	generateConfigCmd.Flags().StringVar(&genConfigEntrypoints, "entrypoints", "", "comma-separated entrypoint URLs")
	generateConfigCmd.Flags().IntVar(&genConfigRedundancy, "redundancy", 0, "replica target (0 keeps the default)")

	checkConfigCmd.Flags().StringVar(&checkConfigFile, "file", "", "path to the .global_config.toml document to validate")
	_ = checkConfigCmd.MarkFlagRequired("file")

	applyConfigCmd.Flags().StringVar(&applyConfigFile, "file", "", "path to the replacement .global_config.toml document")
	_ = applyConfigCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(generateConfigCmd, showConfigCmd, checkConfigCmd, applyConfigCmd)
}
