package synthesis

import (
	"fmt"
	"strings"

	_ "embed"

	"go.yaml.in/yaml/v3"

	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/types"
)

//go:embed rubric.yaml
var defaultRubric []byte

// Tier is one qualitative band of a component.
type Tier struct {
	Range       string `yaml:"range"`
	Description string `yaml:"description"`
}

// Component is the definition of one rubric line.
type Component struct {
	Key   string  `yaml:"key"`
	Label string  `yaml:"label"`
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max"`
	Tiers []Tier  `yaml:"tiers"`
}

// Rubric is the ordered list of scoring components.
type Rubric struct {
	Components []Component `yaml:"components"`
}

// LoadRubric parses a rubric and checks that it covers every breakdown component.
func LoadRubric(data []byte) (*Rubric, error) {
	var r Rubric
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse rubric: %w", err)
	}

	byKey := make(map[string]Component, len(r.Components))
	for _, c := range r.Components {
		if c.Min > c.Max {
			return nil, fmt.Errorf("rubric component %s: min %.1f above max %.1f", c.Key, c.Min, c.Max)
		}
		byKey[c.Key] = c
	}

	ordered := make([]Component, 0, len(types.ComponentKeys))
	var positive float64
	for _, key := range types.ComponentKeys {
		c, ok := byKey[key]
		if !ok {
			return nil, fmt.Errorf("rubric is missing component %s", key)
		}
		if c.Label == "" {
			c.Label = key
		}
		if c.Max > 0 {
			positive += c.Max
		}
		ordered = append(ordered, c)
	}
	if len(byKey) != len(types.ComponentKeys) {
		return nil, fmt.Errorf("rubric has %d components, expected %d", len(byKey), len(types.ComponentKeys))
	}
	if positive != 100 {
		return nil, fmt.Errorf("rubric maxima sum to %.1f, expected 100", positive)
	}

	r.Components = ordered
	return &r, nil
}

// DefaultRubric returns the embedded rubric.
func DefaultRubric() *Rubric {
	r, err := LoadRubric(defaultRubric)
	if err != nil {
		panic(err)
	}
	return r
}

// Component returns the definition for key.
func (r *Rubric) Component(key string) (Component, bool) {
	for _, c := range r.Components {
		if c.Key == key {
			return c, true
		}
	}
	return Component{}, false
}

// Label returns the display label for key.
func (r *Rubric) Label(key string) string {
	if c, ok := r.Component(key); ok {
		return c.Label
	}
	return key
}

// Prompt renders the rubric for the synthesis agent.
func (r *Rubric) Prompt() string {
	var b strings.Builder
	for _, c := range r.Components {
		fmt.Fprintf(&b, "- %s (%s, %g to %g)\n", c.Key, c.Label, c.Min, c.Max)
		for _, t := range c.Tiers {
			fmt.Fprintf(&b, "    %s: %s\n", t.Range, t.Description)
		}
	}
	return strings.TrimSpace(b.String())
}
