package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type fileCatalog struct {
	Models []ModelProfile `yaml:"models"`
}

// LoadFile reads a YAML catalog:
//
//	models:
//	  - id: llama-3.2-3b
//	    category: general
//	    provider: huggingface
//	    upstream_model: meta-llama/Llama-3.2-3B-Instruct
func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var fc fileCatalog
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for i := range fc.Models {
		if fc.Models[i].Provider == "" {
			fc.Models[i].Provider = ProviderHuggingFace
		}
	}
	return New(fc.Models)
}

// Load returns the file catalog when path is set, the built-in one otherwise.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}
