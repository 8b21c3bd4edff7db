// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tokens

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// ErrInvalidGrammarDocument is returned when a grammar file fails schema
// validation.
var ErrInvalidGrammarDocument = errors.New("invalid grammar document")

const grammarSchemaURL = "polygen://grammar.schema.json"

const grammarSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["sets"],
  "additionalProperties": false,
  "properties": {
    "name": {"type": "string"},
    "sets": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {"type": "array", "items": {"type": "string"}}
    },
    "transitions": {
      "type": "object",
      "additionalProperties": {
        "anyOf": [
          {"type": "null"},
          {"type": "array", "items": {"type": "string"}}
        ]
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(grammarSchemaURL, strings.NewReader(grammarSchema)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(grammarSchemaURL)
	})
	return compiledSchema, schemaErr
}

// Resolve returns a built-in grammar by name, or loads it from a file when
// name is a path to one.
func Resolve(name string) (Grammar, error) {
	if g, err := Builtin(name); err == nil {
		return g, nil
	}
	if _, err := os.Stat(name); err != nil {
		return Grammar{}, fmt.Errorf("%w: %q is neither built in nor a readable file", ErrUnknownGrammar, name)
	}
	return LoadFile(name)
}

// LoadFile reads a grammar from a YAML or JSON file.
//
// The grammar name defaults to the file name without extension.
func LoadFile(path string) (Grammar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Grammar{}, fmt.Errorf("read grammar file: %w", err)
	}
	g, err := Parse(data)
	if err != nil {
		return Grammar{}, fmt.Errorf("parse grammar %s: %w", path, err)
	}
	if g.Name == "" {
		g.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return g, nil
}

// Parse decodes a grammar document.
//
// Description:
//
//	The document is a mapping with a "sets" mapping of set name to fragment
//	list and an optional "transitions" mapping of set name to successor set
//	names. JSON documents are accepted since they are valid YAML. The order
//	of the sets mapping is kept. The document is validated against the
//	grammar JSON Schema before it is converted.
//
// Inputs:
//
//	data - Raw YAML or JSON bytes.
//
// Outputs:
//
//	Grammar - The decoded grammar. It is not compiled.
//	error - Non-nil on syntax or schema errors.
func Parse(data []byte) (Grammar, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return Grammar{}, fmt.Errorf("decode document: %w", err)
	}
	if err := validateDocument(generic); err != nil {
		return Grammar{}, err
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return Grammar{}, fmt.Errorf("decode document: %w", err)
	}
	doc := &root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}

	var g Grammar
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key, value := doc.Content[i].Value, doc.Content[i+1]
		switch key {
		case "name":
			g.Name = value.Value
		case "sets":
			sets, err := decodeSets(value)
			if err != nil {
				return Grammar{}, err
			}
			g.Sets = sets
		case "transitions":
			if err := value.Decode(&g.Transitions); err != nil {
				return Grammar{}, fmt.Errorf("decode transitions: %w", err)
			}
		}
	}
	if g.Transitions == nil {
		g.Transitions = map[string][]string{}
	}
	return g, nil
}

func decodeSets(node *yaml.Node) ([]Set, error) {
	sets := make([]Set, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		s := Set{Name: node.Content[i].Value}
		if err := node.Content[i+1].Decode(&s.Values); err != nil {
			return nil, fmt.Errorf("decode set %q: %w", s.Name, err)
		}
		sets = append(sets, s)
	}
	return sets, nil
}

// validateDocument round-trips the YAML value through JSON so the schema
// sees plain JSON types.
func validateDocument(doc any) error {
	schema, err := loadSchema()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidGrammarDocument, err)
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidGrammarDocument, err)
	}
	if err := schema.Validate(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidGrammarDocument, err)
	}
	return nil
}
