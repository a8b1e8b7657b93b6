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

// Command wormhole is the CLI front-end of spec.md §6: "wormhole service"
// runs the daemon, every other subcommand talks to it over its local
// socket. See cmd.Execute.
package main

import "github.com/agartha-software/wormhole/cmd"

func main() {
	cmd.Execute()
}
