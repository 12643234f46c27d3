package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseDefinition decodes a workflow definition from YAML or JSON (JSON is
// valid YAML). Decoding applies the same fail-fast rules as the JSON API:
// unknown fields, unknown node kinds or action types, edges without both
// endpoints and condition groups without items are rejected.
func ParseDefinition(data []byte) (*Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, invalidf("definition payload is empty")
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode definition: %v", ErrInvalid, err)
	}
	generic, err := plainValue(&doc, "")
	if err != nil {
		return nil, fmt.Errorf("%w: decode definition: %v", ErrInvalid, err)
	}
	normalized, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("%w: decode definition: %v", ErrInvalid, err)
	}

	dec := json.NewDecoder(bytes.NewReader(normalized))
	dec.DisallowUnknownFields()
	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("%w: decode definition: %v", ErrInvalid, err)
	}
	if def.Nodes == nil {
		def.Nodes = []Node{}
	}
	if def.Edges == nil {
		def.Edges = []Edge{}
	}
	return &def, nil
}

// numericKeys are the only definition fields that hold numbers. Any other
// unquoted scalar, such as value: 99812 or statusToSet: true, is read as its
// literal text.
var numericKeys = map[string]bool{"priority": true}

// plainValue converts a YAML node into JSON-compatible values. key is the
// mapping key the node sits under.
func plainValue(n *yaml.Node, key string) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return plainValue(n.Content[0], key)
	case yaml.AliasNode:
		return plainValue(n.Alias, key)
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i].Value
			v, err := plainValue(n.Content[i+1], k)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := plainValue(item, key)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.ScalarNode:
		switch {
		case n.ShortTag() == "!!null":
			return nil, nil
		case numericKeys[key] && n.ShortTag() != "!!str":
			var v any
			if err := n.Decode(&v); err != nil {
				return nil, err
			}
			return v, nil
		default:
			return n.Value, nil
		}
	}
	return nil, fmt.Errorf("line %d: unsupported YAML node", n.Line)
}

// MarshalDefinitionJSON renders def as indented JSON.
func MarshalDefinitionJSON(def *Definition) ([]byte, error) {
	return json.MarshalIndent(def, "", "  ")
}

// MarshalDefinitionYAML renders def as block-style YAML with the same field
// names and order as the JSON form.
func MarshalDefinitionYAML(def *Definition) ([]byte, error) {
	data, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("workflow: encode definition: %w", err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("workflow: encode definition: %w", err)
	}
	blockStyle(&doc)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("workflow: encode definition: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("workflow: encode definition: %w", err)
	}
	return buf.Bytes(), nil
}

// blockStyle clears the flow and quoting styles picked up from JSON input.
// Empty collections keep flow style so they render as [] and {}.
func blockStyle(n *yaml.Node) {
	switch n.Kind {
	case yaml.MappingNode, yaml.SequenceNode:
		if len(n.Content) > 0 {
			n.Style = 0
		}
	case yaml.ScalarNode:
		if n.Tag == "!!str" && needsQuoting(n.Value) {
			n.Style = yaml.DoubleQuotedStyle
		} else {
			n.Style = 0
		}
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// needsQuoting keeps strings quoted when a plain scalar would read back as
// another type.
func needsQuoting(s string) bool {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return true
	}
	_, isString := v.(string)
	return !isString || v.(string) != s
}
