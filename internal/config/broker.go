// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of reproduce.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BrokerOverrides are optional producer settings loaded from the file
// given with -k. Absent fields leave the producer defaults untouched;
// RequiredAcks is a pointer so an explicit 0 (no acknowledgements) is
// distinguishable from the field being absent.
type BrokerOverrides struct {
	ClientID     string `json:"client-id"`
	Compression  string `json:"compression"`
	RequiredAcks *int   `json:"required-acks"`
	MaxRetries   int    `json:"max-retries"`
}

var brokerSchema = `
{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "client-id": {
      "description": "Client identifier presented to the broker.",
      "type": "string"
    },
    "compression": {
      "description": "Compression codec for produced records.",
      "type": "string",
      "enum": ["none", "gzip", "snappy", "lz4", "zstd"]
    },
    "required-acks": {
      "description": "Acknowledgements required before a send completes: 0 none, 1 leader, -1 all in-sync replicas.",
      "type": "integer",
      "enum": [-1, 0, 1]
    },
    "max-retries": {
      "description": "How often to retry a failed send before surfacing the error; 0 keeps the producer default.",
      "type": "integer",
      "minimum": 0
    }
  }
}`

// LoadBrokerOverrides reads and validates the broker override file.
// An empty path yields nil overrides.
func LoadBrokerOverrides(path string) (*BrokerOverrides, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading broker config: %w", err)
	}

	sch, err := jsonschema.CompileString("broker.json", brokerSchema)
	if err != nil {
		return nil, fmt.Errorf("compiling broker schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("parsing broker config: %w", err)
	}
	if err := sch.Validate(v); err != nil {
		return nil, fmt.Errorf("validating broker config: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	overrides := &BrokerOverrides{}
	if err := dec.Decode(overrides); err != nil {
		return nil, fmt.Errorf("decoding broker config: %w", err)
	}
	return overrides, nil
}
