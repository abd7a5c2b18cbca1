package catalog

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/prukaya/finbuddy/internal/store"
)

// ResourceLink is one government resource page.
type ResourceLink struct {
	ID          int64  `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	URL         string `yaml:"url"`
}

// ResourceCategory groups resource links, e.g. CPF or IRAS.
type ResourceCategory struct {
	ID    int64          `yaml:"id"`
	Name  string         `yaml:"name"`
	Links []ResourceLink `yaml:"links"`
}

type resourcesFile struct {
	Categories []ResourceCategory `yaml:"categories"`
}

// LoadResources reads the resource categories from a YAML file.
func LoadResources(path string) ([]ResourceCategory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read resources file: %w", err)
	}

	var file resourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse resources file %s: %w", path, err)
	}

	linkIDs := make(map[int64]bool)
	for _, cat := range file.Categories {
		for _, link := range cat.Links {
			if linkIDs[link.ID] {
				return nil, fmt.Errorf("duplicate resource link id %d", link.ID)
			}
			linkIDs[link.ID] = true
		}
	}
	return file.Categories, nil
}

// LoadFile reads a catalog import file and checks its references.
func LoadFile(path string) (*store.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var c store.Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}
	if err := Validate(&c); err != nil {
		return nil, fmt.Errorf("invalid catalog file %s: %w", path, err)
	}
	return &c, nil
}

// Validate reports every product that points at a missing category or bank.
func Validate(c *store.Catalog) error {
	insuranceCats := make(map[int64]bool)
	for _, cat := range c.InsuranceCategories {
		insuranceCats[cat.ID] = true
	}
	financialCats := make(map[int64]bool)
	for _, cat := range c.FinancialCategories {
		financialCats[cat.ID] = true
	}
	banks := make(map[int64]bool)
	for _, b := range c.Banks {
		banks[b.ID] = true
	}

	var errs []error
	for _, p := range c.InsuranceProducts {
		if !insuranceCats[p.CategoryID] {
			errs = append(errs, fmt.Errorf("insurance product %d: unknown category %d", p.ID, p.CategoryID))
		}
	}
	for _, p := range c.FinancialProducts {
		if !financialCats[p.CategoryID] {
			errs = append(errs, fmt.Errorf("financial product %d: unknown category %d", p.ID, p.CategoryID))
		}
		if p.BankID != nil && !banks[*p.BankID] {
			errs = append(errs, fmt.Errorf("financial product %d: unknown bank %d", p.ID, *p.BankID))
		}
	}
	return errors.Join(errs...)
}
