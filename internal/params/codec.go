package params

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type jsonEntry struct {
	Key   string          `json:"key"`
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
	Metadata
}

// MarshalJSON encodes the parameters as an ordered list carrying each value's
// type, so integers and floats survive a round trip unchanged.
func (p *Parameters) MarshalJSON() ([]byte, error) {
	out := make([]jsonEntry, 0, len(p.keys))
	for _, k := range p.keys {
		e := p.entries[k]
		raw, err := json.Marshal(e.value)
		if err != nil {
			return nil, fmt.Errorf("marshal parameter %s: %w", k, err)
		}
		out = append(out, jsonEntry{Key: k, Type: typeName(e.value), Value: raw, Metadata: e.meta})
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the format written by MarshalJSON.
func (p *Parameters) UnmarshalJSON(data []byte) error {
	var in []jsonEntry
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	*p = *New()
	for _, je := range in {
		var v any
		var err error
		switch je.Type {
		case "int":
			var n int64
			err = json.Unmarshal(je.Value, &n)
			v = n
		case "float":
			var f float64
			err = json.Unmarshal(je.Value, &f)
			v = f
		case "bool":
			var b bool
			err = json.Unmarshal(je.Value, &b)
			v = b
		case "string":
			var s string
			err = json.Unmarshal(je.Value, &s)
			v = s
		default:
			err = fmt.Errorf("unknown type %q", je.Type)
		}
		if err != nil {
			return fmt.Errorf("decode parameter %s: %w", je.Key, err)
		}
		if _, dup := p.entries[je.Key]; dup {
			return fmt.Errorf("duplicate parameter %s", je.Key)
		}
		p.keys = append(p.keys, je.Key)
		p.entries[je.Key] = &entry{value: v, meta: je.Metadata}
	}
	return nil
}

// UnmarshalYAML reads a parameter file. Each key maps either to a scalar or to
// a mapping with a "value" field plus optional unit, description and label.
// Document order becomes insertion order.
func (p *Parameters) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: parameters must be a mapping", node.Line)
	}

	fresh := New()
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		valNode := node.Content[i+1]

		var opts []Option
		if valNode.Kind == yaml.MappingNode {
			var rich struct {
				Value       yaml.Node `yaml:"value"`
				Unit        string    `yaml:"unit"`
				Description string    `yaml:"description"`
				Label       string    `yaml:"label"`
			}
			if err := valNode.Decode(&rich); err != nil {
				return fmt.Errorf("parameter %s: %w", key, err)
			}
			opts = append(opts, WithUnit(rich.Unit), WithDescription(rich.Description), WithLabel(rich.Label))
			valNode = &rich.Value
		}

		v, err := scalarFromNode(valNode)
		if err != nil {
			return fmt.Errorf("parameter %s: %w", key, err)
		}
		if err := fresh.Set(key, v, opts...); err != nil {
			return err
		}
	}
	*p = *fresh
	return nil
}

// MarshalYAML writes the form read by UnmarshalYAML.
func (p *Parameters) MarshalYAML() (any, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range p.keys {
		e := p.entries[k]
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: k}

		valNode := &yaml.Node{}
		if err := valNode.Encode(e.value); err != nil {
			return nil, fmt.Errorf("encode parameter %s: %w", k, err)
		}
		// Whole floats encode as "2", which would read back as an int.
		if _, isFloat := e.value.(float64); isFloat && valNode.ShortTag() != "!!float" {
			valNode.Tag = "!!float"
		}
		if e.meta.Unit != "" || e.meta.Description != "" || e.meta.Label != "" {
			rich := &yaml.Node{Kind: yaml.MappingNode}
			rich.Content = append(rich.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: "value"}, valNode)
			for _, kv := range [][2]string{{"unit", e.meta.Unit}, {"description", e.meta.Description}, {"label", e.meta.Label}} {
				if kv[1] == "" {
					continue
				}
				rich.Content = append(rich.Content,
					&yaml.Node{Kind: yaml.ScalarNode, Value: kv[0]},
					&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: kv[1]})
			}
			valNode = rich
		}
		root.Content = append(root.Content, keyNode, valNode)
	}
	return root, nil
}

// Load reads a parameter file. Files ending in .json use the JSON encoding,
// anything else is parsed as YAML.
func Load(path string) (*Parameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read parameters: %w", err)
	}

	p := New()
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, p)
	} else {
		err = yaml.Unmarshal(data, p)
	}
	if err != nil {
		return nil, fmt.Errorf("parse parameters %s: %w", path, err)
	}
	return p, nil
}

// Save writes the parameters to path, choosing the encoding as Load does.
func (p *Parameters) Save(path string) error {
	var data []byte
	var err error
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(p, "", "  ")
	} else {
		data, err = yaml.Marshal(p)
	}
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write parameters: %w", err)
	}
	return nil
}

func scalarFromNode(n *yaml.Node) (any, error) {
	if n.Kind != yaml.ScalarNode {
		return nil, fmt.Errorf("line %d: value must be a scalar", n.Line)
	}
	switch n.ShortTag() {
	case "!!int":
		var v int64
		err := n.Decode(&v)
		return v, err
	case "!!float":
		var v float64
		err := n.Decode(&v)
		return v, err
	case "!!bool":
		var v bool
		err := n.Decode(&v)
		return v, err
	case "!!str":
		return n.Value, nil
	}
	return nil, fmt.Errorf("line %d: unsupported value %q", n.Line, n.Value)
}

func typeName(v any) string {
	switch v.(type) {
	case int64:
		return "int"
	case float64:
		return "float"
	case bool:
		return "bool"
	default:
		return "string"
	}
}
