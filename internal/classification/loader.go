package classification

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// ParseRules decodes a YAML rule document of the form
//
//	rules:
//	  - name: Streaming
//	    category: streaming
//	    regex: '\bnetflix'
//	    priority: 90
func ParseRules(content []byte) ([]Rule, error) {
	var doc ruleFile
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rule file: %w", err)
	}
	if len(doc.Rules) == 0 {
		return nil, fmt.Errorf("rule file contains no rules")
	}

	for i, r := range doc.Rules {
		if r.Name == "" || r.Regex == "" {
			return nil, fmt.Errorf("rule %d: name and regex are required", i)
		}
	}
	return doc.Rules, nil
}

// LoadRules reads a YAML rule file from disk.
func LoadRules(path string) ([]Rule, error) {
	content, err := os.ReadFile(path) //nolint:gosec // Path comes from user configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}
	return ParseRules(content)
}
