package extraction

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed selectors.yaml
var defaultSelectors []byte

// Selectors is the prioritized strategy list for listing and detail pages
type Selectors struct {
	Listings ListingSelectors `yaml:"listings"`
	Detail   DetailSelectors  `yaml:"detail"`
}

type ListingSelectors struct {
	Container      []string `yaml:"container"`
	Card           []string `yaml:"card"`
	Title          []string `yaml:"title"`
	Company        []string `yaml:"company"`
	Location       []string `yaml:"location"`
	Salary         []string `yaml:"salary"`
	Link           []string `yaml:"link"`
	QuickApply     []string `yaml:"quick_apply"`
	QuickApplyText []string `yaml:"quick_apply_text"`
}

type DetailSelectors struct {
	Container            []string `yaml:"container"`
	Title                []string `yaml:"title"`
	Company              []string `yaml:"company"`
	Location             []string `yaml:"location"`
	Salary               []string `yaml:"salary"`
	Description          []string `yaml:"description"`
	ApplyButton          []string `yaml:"apply_button"`
	DescriptionKeywords  []string `yaml:"description_keywords"`
	MinDescriptionLength int      `yaml:"min_description_length"`
}

// LoadSelectors parses the selector file at path, or the embedded set when path is empty
func LoadSelectors(path string) (*Selectors, error) {
	data := defaultSelectors
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read selectors file %s: %w", path, err)
		}
	}

	var selectors Selectors
	if err := yaml.Unmarshal(data, &selectors); err != nil {
		return nil, fmt.Errorf("failed to parse selectors: %w", err)
	}
	if len(selectors.Listings.Card) == 0 {
		return nil, fmt.Errorf("selectors: listings.card must not be empty")
	}
	if len(selectors.Detail.Title) == 0 {
		return nil, fmt.Errorf("selectors: detail.title must not be empty")
	}
	return &selectors, nil
}
