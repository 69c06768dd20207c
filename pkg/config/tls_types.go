package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/polisai/tlsgate/pkg/tlspolicy"
)

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field       string
	Value       interface{}
	Reason      string
	Suggestions []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error in field '%s': %s", e.Field, e.Reason)
}

func (e *ConfigError) WithSuggestion(suggestion string) *ConfigError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

func NewConfigMissingError(field string) *ConfigError {
	return &ConfigError{
		Field:  field,
		Reason: fmt.Sprintf("required field '%s' is missing", field),
	}
}

func NewConfigValidationError(field string, value interface{}, reason string) *ConfigError {
	return &ConfigError{
		Field:  field,
		Value:  value,
		Reason: reason,
	}
}

// TLSVersion represents supported TLS protocol versions
type TLSVersion string

const (
	TLSVersion10 TLSVersion = "1.0"
	TLSVersion11 TLSVersion = "1.1"
	TLSVersion12 TLSVersion = "1.2"
	TLSVersion13 TLSVersion = "1.3"
)

// ParseTLSVersion converts a string to a TLSVersion with validation
func ParseTLSVersion(version string) (TLSVersion, error) {
	if version == "" {
		return TLSVersion12, nil
	}

	normalized := strings.TrimSpace(version)
	switch TLSVersion(normalized) {
	case TLSVersion10, TLSVersion11, TLSVersion12, TLSVersion13:
		return TLSVersion(normalized), nil
	default:
		return "", fmt.Errorf("unsupported TLS version %q", version)
	}
}

// Verification modes recognized for the well-known "verify" option key.
const (
	VerifyPeer = "verify_peer"
	VerifyNone = "verify_none"
)

// TLSConfig is the static connection-policy configuration. Option keys and
// value shapes beyond the recognized well-known keys are passed through to
// the TLS engine untouched.
type TLSConfig struct {
	Enabled  bool            `yaml:"enabled" json:"enabled"`
	Optional bool            `yaml:"optional" json:"optional"`
	Provider *ProviderConfig `yaml:"provider,omitempty" json:"provider,omitempty"`
	Options  OptionsConfig   `yaml:"options,omitempty" json:"options,omitempty"`
}

// ProviderConfig names the dynamic operation that supplies extra options at
// resolution time.
type ProviderConfig struct {
	Target string `yaml:"target" json:"target"`
	Args   []any  `yaml:"args,omitempty" json:"args,omitempty"`
}

// OptionsConfig is the YAML surface of an ordered option list. It decodes a
// mapping node directly so document order survives into the association
// list; a plain map decode would destroy the positional precedence contract.
type OptionsConfig tlspolicy.Options

// UnmarshalYAML implements yaml.Unmarshaler.
func (o *OptionsConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("options must be a mapping, got %s", nodeKindName(node.Kind))
	}

	opts := make(OptionsConfig, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]

		var key string
		if err := keyNode.Decode(&key); err != nil {
			return fmt.Errorf("decode option key: %w", err)
		}
		var value any
		if err := valueNode.Decode(&value); err != nil {
			return fmt.Errorf("decode option %q: %w", key, err)
		}
		opts = append(opts, tlspolicy.Opt(key, value))
	}

	*o = opts
	return nil
}

// MarshalYAML implements yaml.Marshaler, emitting a mapping in list order.
func (o OptionsConfig) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, opt := range o {
		keyNode := &yaml.Node{}
		if err := keyNode.Encode(opt.Key); err != nil {
			return nil, err
		}
		valueNode := &yaml.Node{}
		if err := valueNode.Encode(opt.Value); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, keyNode, valueNode)
	}
	return node, nil
}

func nodeKindName(kind yaml.Kind) string {
	switch kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}

// Validate performs validation of the connection-policy configuration.
// Unknown option keys are never rejected: their semantics belong to the TLS
// engine. Only the recognized well-known keys are checked for vocabulary.
func (c *TLSConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Provider != nil {
		if strings.TrimSpace(c.Provider.Target) == "" {
			return NewConfigMissingError("provider.target").
				WithSuggestion("Name a registered provider operation (e.g. env, file)").
				WithSuggestion("Remove the provider block to resolve from static options only")
		}
	}

	if value, ok := tlspolicy.Options(c.Options).Get("verify"); ok {
		text, isString := value.(string)
		if !isString || (text != VerifyPeer && text != VerifyNone) {
			return NewConfigValidationError("options.verify", value, "unrecognized verification mode").
				WithSuggestion("Use verify_peer to validate the peer certificate").
				WithSuggestion("Use verify_none only for development environments")
		}
	}

	if value, ok := tlspolicy.Options(c.Options).Get("versions"); ok {
		if err := validateVersionList(value); err != nil {
			return NewConfigValidationError("options.versions", value, err.Error()).
				WithSuggestion("Use a list of TLS versions: 1.0, 1.1, 1.2, or 1.3").
				WithSuggestion("Consider allowing only TLS 1.2 and 1.3 for better security")
		}
	}

	return nil
}

func validateVersionList(value any) error {
	list, ok := value.([]any)
	if !ok {
		return fmt.Errorf("versions must be a list")
	}
	if len(list) == 0 {
		return fmt.Errorf("versions list must not be empty")
	}
	for _, entry := range list {
		text, ok := entry.(string)
		if !ok {
			return fmt.Errorf("version entries must be strings, got %T", entry)
		}
		if _, err := ParseTLSVersion(text); err != nil {
			return err
		}
	}
	return nil
}

// Policy converts the file configuration into the resolver's input form. A
// provider block becomes a DynamicCall against the operation registry; the
// static options become the base option list.
func (c *TLSConfig) Policy() tlspolicy.Config {
	cfg := tlspolicy.Config{
		Enabled:     c.Enabled,
		Optional:    c.Optional,
		BaseOptions: tlspolicy.Options(c.Options).Clone(),
	}
	if c.Provider != nil {
		cfg.Provider = tlspolicy.DynamicCall{
			Target: c.Provider.Target,
			Args:   append([]any(nil), c.Provider.Args...),
		}
	}
	return cfg
}
