package quest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Section is one independently-navigated sub-quest section of the missions
// screen. Titles carries the locale variants of the quest heading; the flow
// matches whichever one the app rendered.
type Section struct {
	Name   string   `yaml:"name"`
	Titles []string `yaml:"titles"`
}

// Catalog describes the one-time quest content of the mini-app: how many
// main-quest slots the missions list exposes and which named sub-sections
// exist.
type Catalog struct {
	MainQuestSlots int       `yaml:"mainQuestSlots"`
	Sections       []Section `yaml:"sections"`
}

// DefaultCatalog returns the built-in catalog used when no catalog file is
// configured. It matches the current content of the app.
func DefaultCatalog() *Catalog {
	return &Catalog{
		MainQuestSlots: 14,
		Sections: []Section{
			{Name: "TON", Titles: []string{"What is TON Blockchain", "что такое блокчейн TON"}},
			{Name: "BNB", Titles: []string{"What is BNB Chain", "что такое BNB сеть"}},
			{Name: "SOLANA", Titles: []string{"What is Solana Blockchain", "что такое блокчейн Solana"}},
		},
	}
}

// LoadCatalog reads a catalog YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quest catalog: %w", err)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse quest catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if c.MainQuestSlots <= 0 {
		return fmt.Errorf("quest catalog: mainQuestSlots must be positive, got %d", c.MainQuestSlots)
	}
	if len(c.Sections) == 0 {
		return fmt.Errorf("quest catalog: no sections defined")
	}
	for i, s := range c.Sections {
		if s.Name == "" {
			return fmt.Errorf("quest catalog: section %d has no name", i)
		}
		if len(s.Titles) == 0 {
			return fmt.Errorf("quest catalog: section %q has no titles", s.Name)
		}
	}
	return nil
}
