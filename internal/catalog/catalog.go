// Package catalog loads the seed data for verticals, modules, achievements
// and daily rewards. The embedded catalog.json is used unless a file path is
// configured.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

//go:embed catalog.json
var embedded []byte

type Theme struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
	Accent    string `json:"accent"`
	OnPrimary string `json:"onPrimary"`
}

type Module struct {
	Key    string `json:"key"`
	Name   string `json:"name"`
	IsBase bool   `json:"isBase"`
	Icon   string `json:"icon"`
}

type Vertical struct {
	Slug          string   `json:"slug"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Profile       string   `json:"profile"`
	AudienceLabel string   `json:"audienceLabel"`
	Theme         Theme    `json:"theme"`
	Modules       []Module `json:"modules"`
}

type Achievement struct {
	Key            string `json:"key"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Icon           string `json:"icon"`
	ConditionType  string `json:"conditionType"`
	ConditionValue int64  `json:"conditionValue"`
	RewardPoints   int64  `json:"rewardPoints"`
}

type Prize struct {
	Label  string `json:"label"`
	Points int64  `json:"points,omitempty"`
}

type DailyReward struct {
	Name   string  `json:"name"`
	Type   string  `json:"type"`
	Prizes []Prize `json:"prizes"`
}

type Seed struct {
	Verticals    []Vertical    `json:"verticals"`
	Achievements []Achievement `json:"achievements"`
	DailyRewards []DailyReward `json:"dailyRewards"`
}

// Load parses the catalog at path, or the embedded catalog when path is empty.
func Load(path string) (*Seed, error) {
	data := embedded
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog: %w", err)
		}
		data = b
	}
	return Parse(data)
}

func Parse(data []byte) (*Seed, error) {
	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := seed.validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

func (s *Seed) validate() error {
	slugs := make(map[string]bool, len(s.Verticals))
	for _, v := range s.Verticals {
		if strings.TrimSpace(v.Slug) == "" {
			return fmt.Errorf("catalog: vertical without slug")
		}
		if slugs[v.Slug] {
			return fmt.Errorf("catalog: duplicate vertical %q", v.Slug)
		}
		slugs[v.Slug] = true

		keys := make(map[string]bool, len(v.Modules))
		for _, m := range v.Modules {
			if m.Key == "" {
				return fmt.Errorf("catalog: module without key in %q", v.Slug)
			}
			if keys[m.Key] {
				return fmt.Errorf("catalog: duplicate module %q in %q", m.Key, v.Slug)
			}
			keys[m.Key] = true
		}
	}

	seen := make(map[string]bool, len(s.Achievements))
	for _, a := range s.Achievements {
		if a.Key == "" || seen[a.Key] {
			return fmt.Errorf("catalog: missing or duplicate achievement key %q", a.Key)
		}
		seen[a.Key] = true
	}
	return nil
}

// Vertical returns the seeded vertical with the given slug.
func (s *Seed) Vertical(slug string) (Vertical, bool) {
	for _, v := range s.Verticals {
		if v.Slug == slug {
			return v, true
		}
	}
	return Vertical{}, false
}
