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

package cfg

import (
	"bytes"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// ReadGlobal parses a ".global_config.toml" document's bytes into a
// GlobalConfig, the Go counterpart of the original's Config::read. Reading
// goes through a fresh viper instance that sees only the given bytes; no
// environment variables or flags are consulted.
func ReadGlobal(data []byte) (GlobalConfig, error) {
	var out GlobalConfig
	if err := readTOML(data, &out); err != nil {
		return GlobalConfig{}, err
	}
	return out, nil
}

// WriteGlobal serializes a GlobalConfig back to its TOML wire form.
func WriteGlobal(c GlobalConfig) ([]byte, error) {
	return toml.Marshal(c)
}

// ReadLocal parses a ".local_config.toml" document's bytes into a
// LocalConfig.
func ReadLocal(data []byte) (LocalConfig, error) {
	var out LocalConfig
	if err := readTOML(data, &out); err != nil {
		return LocalConfig{}, err
	}
	return out, nil
}

// WriteLocal serializes a LocalConfig back to its TOML wire form.
func WriteLocal(c LocalConfig) ([]byte, error) {
	return toml.Marshal(c)
}

func readTOML(data []byte, out any) error {
	v := viper.New()
	v.SetConfigType("toml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return err
	}
	return v.Unmarshal(out)
}
