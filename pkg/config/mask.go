package config

import (
	"strings"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

const maskedValue = "********"

// sensitivePatterns match keys whose values must never reach a log or
// terminal in clear text.
var sensitivePatterns = compilePatterns(
	"*password*",
	"*access_key*",
	"*secret*",
	"credentials.*",
)

func compilePatterns(patterns ...string) []glob.Glob {
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, glob.MustCompile(p))
	}
	return compiled
}

// IsSensitive reports whether key holds a secret.
func IsSensitive(key string) bool {
	key = strings.ToLower(key)
	for _, g := range sensitivePatterns {
		if g.Match(key) {
			return true
		}
	}
	return false
}

// Mask returns value, or a fixed placeholder when key is sensitive. Empty
// values stay empty so a missing secret is still visible.
func Mask(key, value string) string {
	if value == "" || !IsSensitive(key) {
		return value
	}
	return maskedValue
}

// Setting is one resolved key with its masked value and origin layer.
type Setting struct {
	Key    string
	Value  string
	Source string
}

// Describe lists every resolved key in sorted order with secrets masked.
func (c RunConfiguration) Describe() []Setting {
	settings := make([]Setting, 0, len(c.values))
	for _, key := range Keys() {
		v, ok := c.values[key]
		if !ok {
			continue
		}
		settings = append(settings, Setting{Key: key, Value: Mask(key, v), Source: c.origins[key]})
	}
	return settings
}

// MaskedYAML renders the resolved configuration as a nested YAML document
// with secrets masked.
func (c RunConfiguration) MaskedYAML() ([]byte, error) {
	root := map[string]any{}
	for _, s := range c.Describe() {
		parts := strings.Split(s.Key, ".")
		node := root
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = s.Value
	}
	return yaml.Marshal(root)
}
