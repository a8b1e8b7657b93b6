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

	"github.com/agartha-software/wormhole/internal/service"
)

// sendCommand dials the configured socket, sends cmd, and returns the
// Answer, translating an AnsError answer into a Go error so callers can
// treat the round trip as a single fallible call.
func sendCommand(cmd service.Command) (service.Answer, error) {
	conn, err := service.Dial(socketPath)
	if err != nil {
		return service.Answer{}, fmt.Errorf("connecting to %s (is `wormhole service` running?): %w", socketPath, err)
	}
	defer conn.Close()

	answer, err := service.Call(conn, cmd)
	if err != nil {
		return service.Answer{}, err
	}
	if answer.Kind == service.AnsError {
		return answer, fmt.Errorf("%s", answer.Error)
	}
	return answer, nil
}
