package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy is the writer policy file:
//
//	required_attributes: [tvg-id, tvg-logo]
//	exempt_categories: [German]
//	rename_categories:
//	  Germany VIP: German
//	drop_dead: false
//	relocated_category: stopped working
type Policy struct {
	RequiredAttributes []string          `yaml:"required_attributes"`
	ExemptCategories   []string          `yaml:"exempt_categories"`
	RenameCategories   map[string]string `yaml:"rename_categories"`
	DropDead           *bool             `yaml:"drop_dead"`
	RelocatedCategory  string            `yaml:"relocated_category"`
}

// LoadPolicy reads a YAML policy file. Unknown keys are rejected so typos
// surface instead of silently changing nothing.
func LoadPolicy(path string) (*Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}
	defer f.Close()
	var p Policy
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	return &p, nil
}

// ApplyPolicy copies every field p sets onto c.
func (c *Config) ApplyPolicy(p *Policy) {
	if p == nil {
		return
	}
	if len(p.RequiredAttributes) > 0 {
		c.RequiredAttributes = p.RequiredAttributes
	}
	if len(p.ExemptCategories) > 0 {
		c.ExemptCategories = p.ExemptCategories
	}
	if len(p.RenameCategories) > 0 {
		c.CategoryRenames = p.RenameCategories
	}
	if p.DropDead != nil {
		c.DropDead = *p.DropDead
	}
	if p.RelocatedCategory != "" {
		c.RelocatedCategory = p.RelocatedCategory
	}
}
