package providers

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/polisai/tlsgate/pkg/tlspolicy"
)

// FileOperation sources options from a YAML document. The single argument is
// the file path; the document must be a mapping, and its entries are emitted
// in document order so positional precedence survives the round trip.
func FileOperation(_ context.Context, args ...any) (tlspolicy.Options, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("file operation: want exactly one path argument, got %d", len(args))
	}
	path, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("file operation: path must be a string, got %T", args[0])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("file operation: read %s: %w", path, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("file operation: parse %s: %w", path, err)
	}

	opts, err := decodeMappingNode(&doc)
	if err != nil {
		return nil, fmt.Errorf("file operation: %s: %w", path, err)
	}
	return opts, nil
}

// decodeMappingNode converts a YAML mapping node into an ordered option list.
func decodeMappingNode(node *yaml.Node) (tlspolicy.Options, error) {
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return nil, nil
		}
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("options document must be a mapping")
	}

	opts := make(tlspolicy.Options, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]

		var key string
		if err := keyNode.Decode(&key); err != nil {
			return nil, fmt.Errorf("decode option key: %w", err)
		}
		var value any
		if err := valueNode.Decode(&value); err != nil {
			return nil, fmt.Errorf("decode option %q: %w", key, err)
		}
		opts = append(opts, tlspolicy.Opt(key, value))
	}
	return opts, nil
}
