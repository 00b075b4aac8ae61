package demo

import (
	"bytes"
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// MarshalJSON writes the definition in demo document form: boxes first in
// definition order, then foldBoxes, visibleBoxes and packages when set.
func (d *Definition) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(key string, v any) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(data)
		return nil
	}

	for _, e := range d.Boxes {
		if err := write(string(e.Type), e.Box); err != nil {
			return nil, err
		}
	}
	if d.FoldBoxes != nil {
		if err := write(KeyFoldBoxes, d.FoldBoxes); err != nil {
			return nil, err
		}
	}
	if d.VisibleBoxes != nil {
		if err := write(KeyVisibleBoxes, d.VisibleBoxes); err != nil {
			return nil, err
		}
	}
	if d.Packages != nil {
		if err := write(KeyPackages, d.Packages); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalYAML returns a mapping node with the same key order as MarshalJSON.
func (d *Definition) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key string, v any) error {
		var value yaml.Node
		if err := value.Encode(v); err != nil {
			return err
		}
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, &value)
		return nil
	}

	for _, e := range d.Boxes {
		if err := add(string(e.Type), e.Box); err != nil {
			return nil, err
		}
	}
	if d.FoldBoxes != nil {
		if err := add(KeyFoldBoxes, flowList(d.FoldBoxes)); err != nil {
			return nil, err
		}
	}
	if d.VisibleBoxes != nil {
		if err := add(KeyVisibleBoxes, flowList(d.VisibleBoxes)); err != nil {
			return nil, err
		}
	}
	if d.Packages != nil {
		if err := add(KeyPackages, d.Packages); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func flowList(types []BoxType) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, t := range types {
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: string(t)})
	}
	return n
}
