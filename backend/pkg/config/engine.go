package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	apperrors "emergent-kg/backend/pkg/errors"
)

// EngineFile is the optional YAML document that tunes the recommendation
// engine: source group folding, composite weights and scoring profiles.
type EngineFile struct {
	DefaultProfile string                        `yaml:"default_profile,omitempty"`
	Groups         GroupsConfig                  `yaml:"groups"`
	Composites     map[string]map[string]float64 `yaml:"composites,omitempty"`
	Profiles       []ProfileConfig               `yaml:"profiles,omitempty"`
}

// GroupsConfig folds raw node sources into source groups.
type GroupsConfig struct {
	Aliases map[string]string `yaml:"aliases"`
	// Fallback names the group for unmapped sources. Empty means every
	// unmapped source is its own group.
	Fallback string `yaml:"fallback,omitempty"`
}

// ProfileConfig overrides or defines a scoring profile. Nil fields inherit
// from Base (or from the built-in profile of the same name).
type ProfileConfig struct {
	Name        string `yaml:"name"`
	Base        string `yaml:"base,omitempty"`
	Description string `yaml:"description,omitempty"`

	SpanWeight     *float64 `yaml:"span_weight,omitempty"`
	SemanticWeight *float64 `yaml:"semantic_weight,omitempty"`
	CrossBonus     *float64 `yaml:"cross_bonus,omitempty"`
	GainWeight     *float64 `yaml:"gain_weight,omitempty"`

	TagWeight     *float64 `yaml:"tag_weight,omitempty"`
	KindWeight    *float64 `yaml:"kind_weight,omitempty"`
	ContentWeight *float64 `yaml:"content_weight,omitempty"`
	TagSimilarity *string  `yaml:"tag_similarity,omitempty"`

	MinSpan         *int          `yaml:"min_span,omitempty"`
	MinSemantic     *float64      `yaml:"min_semantic,omitempty"`
	ForbiddenPolicy *string       `yaml:"forbidden_policy,omitempty"`
	CSERFloor       *float64      `yaml:"cser_floor,omitempty"`
	Region          *RegionConfig `yaml:"region,omitempty"`
	Mode            *string       `yaml:"mode,omitempty"`
	SoftPenalty     *float64      `yaml:"soft_penalty,omitempty"`
}

// RegionConfig bounds (distance, asymmetry) with open intervals.
type RegionConfig struct {
	Disabled     bool    `yaml:"disabled,omitempty"`
	DistanceMin  float64 `yaml:"distance_min"`
	DistanceMax  float64 `yaml:"distance_max"`
	AsymmetryMin float64 `yaml:"asymmetry_min"`
	AsymmetryMax float64 `yaml:"asymmetry_max"`
}

// DefaultEngineFile returns the built-in group table. Profiles and
// composites default to the engine's compiled-in values.
func DefaultEngineFile() *EngineFile {
	return &EngineFile{
		Groups: GroupsConfig{
			Aliases: map[string]string{
				"록이":        "록이",
				"상록":        "록이",
				"cokac":     "cokac",
				"cokac-bot": "cokac",
			},
		},
	}
}

// LoadEngineFile reads an engine YAML file.
func LoadEngineFile(path string) (*EngineFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f EngineFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return &f, nil
}

// LoadEngine layers the file at path (when non-empty) over the defaults.
func LoadEngine(path string) (*EngineFile, error) {
	f := DefaultEngineFile()
	if path == "" {
		return f, nil
	}

	override, err := LoadEngineFile(path)
	if err != nil {
		return nil, err
	}
	f.Merge(override)

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Merge overlays other onto f. Aliases and composites merge key by key;
// profiles are appended and resolved later by name.
func (f *EngineFile) Merge(other *EngineFile) {
	if other == nil {
		return
	}
	if other.DefaultProfile != "" {
		f.DefaultProfile = other.DefaultProfile
	}
	if len(other.Groups.Aliases) > 0 {
		if f.Groups.Aliases == nil {
			f.Groups.Aliases = make(map[string]string)
		}
		for raw, group := range other.Groups.Aliases {
			f.Groups.Aliases[raw] = group
		}
	}
	if other.Groups.Fallback != "" {
		f.Groups.Fallback = other.Groups.Fallback
	}
	for name, weights := range other.Composites {
		if f.Composites == nil {
			f.Composites = make(map[string]map[string]float64)
		}
		f.Composites[name] = weights
	}
	f.Profiles = append(f.Profiles, other.Profiles...)
}

// Validate rejects structurally broken engine files. Semantic checks on
// profiles happen when they are resolved.
func (f *EngineFile) Validate() error {
	for raw, group := range f.Groups.Aliases {
		if raw == "" || group == "" {
			return apperrors.NewConfigValidationFailed("groups.aliases", "empty source or group name")
		}
	}
	for name, weights := range f.Composites {
		if len(weights) == 0 {
			return apperrors.NewConfigValidationFailed("composites."+name, "no weights")
		}
		for metric, w := range weights {
			if w < 0 {
				return apperrors.NewConfigValidationFailed("composites."+name+"."+metric, "negative weight")
			}
		}
	}
	seen := make(map[string]bool)
	for i, p := range f.Profiles {
		if p.Name == "" {
			return apperrors.NewConfigMissingRequired(fmt.Sprintf("profiles[%d].name", i))
		}
		if seen[p.Name] {
			return apperrors.NewConfigValidationFailed(fmt.Sprintf("profiles[%d]", i), "duplicate profile "+p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// SaveToFile writes the engine file as YAML, creating parent directories.
func (f *EngineFile) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode engine config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
