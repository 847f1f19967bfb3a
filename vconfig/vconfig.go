// Copyright (c) 2025-present deep.rent GmbH (https://deep.rent)
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

// Package vconfig loads a flat Policy struct from a JSON or YAML file,
// selecting the decoder by file extension. It does not validate the decoded
// value against a schema; schema validation remains out of scope for the
// container, per the package-level design notes in vinculum.
package vconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/goccy/go-yaml"
)

// Decoder decodes a byte slice into v.
type Decoder interface {
	Decode(data []byte, v any) error
}

type jsonDecoder struct{}

func (jsonDecoder) Decode(data []byte, v any) error { return json.Unmarshal(data, v) }

type yamlDecoder struct{}

func (yamlDecoder) Decode(data []byte, v any) error { return yaml.Unmarshal(data, v) }

// Infer selects a Decoder based on the file extension of path.
func Infer(path string) (Decoder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return jsonDecoder{}, nil
	case ".yaml", ".yml":
		return yamlDecoder{}, nil
	default:
		return nil, fmt.Errorf("vconfig: unsupported file extension %q", filepath.Ext(path))
	}
}

// Load reads path and decodes it into v using the decoder inferred from the
// file's extension.
func Load(path string, v any) error {
	dec, err := Infer(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return dec.Decode(data, v)
}
