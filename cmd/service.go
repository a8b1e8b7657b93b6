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
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/agartha-software/wormhole/internal/logger"
	"github.com/agartha-software/wormhole/internal/service"
)

var (
	serviceLogLevel  string
	serviceLogFormat string
	serviceLogFile   string
)

// serviceCmd is the long-lived daemon process of spec.md §4.8/§9: it
// builds an empty Service (spec.md §9's owned pod-name -> Pod map), starts
// accepting CLI commands on the local socket, and blocks until signaled.
// Grounded on the teacher's legacy_main.go registerSIGINTHandler idiom,
// generalized from "unmount one fuse mount on SIGINT" to "stop every Pod
// on SIGINT/SIGTERM" since a Service may host several Pods at once.
var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Run the wormhole service daemon, hosting zero or more Pods",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		logger.SetFormat(serviceLogFormat)
		logger.SetLevel(logger.Severity(serviceLogLevel))
		if serviceLogFile != "" {
			if err := logger.InitLogFile(serviceLogFile, logger.DefaultRotateConfig()); err != nil {
				return err
			}
		}

		svc := service.New(prometheus.DefaultRegisterer)
		listener, err := service.Listen(socketPath, svc)
		if err != nil {
			return err
		}
		defer listener.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigChan
			logger.Infof("service: received shutdown signal, stopping every pod")
			svc.StopAll(ctx)
			cancel()
		}()

		logger.Infof("service: listening on %s", listener.Addr())
		return listener.Serve(ctx)
	},
}

func init() {
	serviceCmd.Flags().StringVar(&serviceLogLevel, "log-level", "INFO", "TRACE, DEBUG, INFO, WARNING, ERROR, or OFF")
	serviceCmd.Flags().StringVar(&serviceLogFormat, "log-format", "text", "text or json")
	serviceCmd.Flags().StringVar(&serviceLogFile, "log-file", "", "path to a log file; empty logs to stderr")
	rootCmd.AddCommand(serviceCmd)
}
