package conf

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// KeywordsFile is the optional YAML keyword list:
//
//	match_mode: word
//	keywords:
//	  - discount
//	  - free shipping
type KeywordsFile struct {
	MatchMode string   `yaml:"match_mode"`
	Keywords  []string `yaml:"keywords"`
}

// LoadKeywordsFile loads a keyword list from YAML file
func LoadKeywordsFile(path string) (*KeywordsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keywords file: %w", err)
	}

	var kf KeywordsFile
	if err := yaml.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("failed to parse keywords file: %w", err)
	}
	return &kf, nil
}
