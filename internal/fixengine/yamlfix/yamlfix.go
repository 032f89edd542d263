// Package yamlfix implements fixengine.Editor for YAML manifests
// (Kubernetes, CI config, Checkov/kube-bench targets) using yaml.v3's
// Node API, which keeps comments and key ordering intact across an
// edit instead of round-tripping through a plain map.
package yamlfix

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/remediation-kit/remediation-kit/internal/fixengine"
)

// Editor decodes content into a yaml.Node document, locates the
// mapping node whose own line is at or before the finding's line,
// passes that mapping (marshalled back to YAML) to the Pattern's Apply
// func, and splices the reparsed result in its place.
type Editor struct{}

// New returns a yamlfix Editor.
func New() Editor { return Editor{} }

func (Editor) Edit(pattern fixengine.Pattern, content []byte, line int) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("yamlfix: parse error: %w", err)
	}
	if pattern.Apply == nil {
		return nil, fmt.Errorf("yamlfix: pattern %s has no Apply func", pattern.ID)
	}
	target := mappingAtLine(&doc, line)
	if target == nil {
		return nil, fmt.Errorf("yamlfix: no mapping found at or before line %d", line)
	}
	raw, err := yaml.Marshal(target)
	if err != nil {
		return nil, err
	}
	rewritten, err := pattern.Apply(raw, line)
	if err != nil {
		return nil, err
	}
	var patch yaml.Node
	if err := yaml.Unmarshal(rewritten, &patch); err != nil {
		return nil, fmt.Errorf("yamlfix: patch did not reparse: %w", err)
	}
	replaceMapping(target, unwrapDocument(&patch))

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, err
	}
	enc.Close()
	return buf.Bytes(), nil
}

func unwrapDocument(n *yaml.Node) *yaml.Node {
	if n.Kind == yaml.DocumentNode && len(n.Content) == 1 {
		return n.Content[0]
	}
	return n
}

func mappingAtLine(doc *yaml.Node, line int) *yaml.Node {
	root := unwrapDocument(doc)
	var best *yaml.Node
	var walk func(n *yaml.Node)
	walk = func(n *yaml.Node) {
		if n.Kind == yaml.MappingNode && n.Line <= line {
			best = n
		}
		for _, c := range n.Content {
			walk(c)
		}
	}
	walk(root)
	return best
}

func replaceMapping(dst, src *yaml.Node) {
	dst.Content = src.Content
	dst.Tag = src.Tag
	dst.Kind = src.Kind
}

// SetMappingKey returns a Pattern.Apply func that sets key to value
// (a plain scalar string) within the mapping passed to it, adding the
// key if it is absent.
func SetMappingKey(key, value string) func([]byte, int) ([]byte, error) {
	return func(content []byte, _ int) ([]byte, error) {
		var node yaml.Node
		if err := yaml.Unmarshal(content, &node); err != nil {
			return nil, fmt.Errorf("yamlfix: attribute patch parse error: %w", err)
		}
		m := unwrapDocument(&node)
		if m.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("yamlfix: target is not a mapping")
		}
		for i := 0; i+1 < len(m.Content); i += 2 {
			if m.Content[i].Value == key {
				m.Content[i+1].Kind = yaml.ScalarNode
				m.Content[i+1].Tag = ""
				m.Content[i+1].Value = value
				out, err := yaml.Marshal(m)
				return out, err
			}
		}
		m.Content = append(m.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: key},
			&yaml.Node{Kind: yaml.ScalarNode, Value: value},
		)
		return yaml.Marshal(m)
	}
}
