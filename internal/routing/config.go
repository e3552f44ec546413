package routing

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultConfig []byte

// File is the YAML routing document.
type File struct {
	Concepts []Entry `yaml:"concepts"`
}

// Entry describes one concept of the daily submission.
type Entry struct {
	Key            string `yaml:"key"`
	Name           string `yaml:"name,omitempty"`
	Role           string `yaml:"role"`
	Type           string `yaml:"type"`
	Frequency      string `yaml:"frequency,omitempty"`
	Posnet         bool   `yaml:"posnet,omitempty"`
	Account        string `yaml:"account,omitempty"`
	Reconciliation string `yaml:"reconciliation,omitempty"`
}

// Parse decodes a routing document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing routing: %w", err)
	}
	return &f, nil
}

// Load reads the routing document at path, or the built-in one when path is
// empty.
func Load(path string) (*File, error) {
	if path == "" {
		return Parse(defaultConfig)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading routing: %w", err)
	}
	return Parse(data)
}
