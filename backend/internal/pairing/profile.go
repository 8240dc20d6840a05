package pairing

import (
	"fmt"
	"sort"

	"emergent-kg/backend/pkg/config"
	apperrors "emergent-kg/backend/pkg/errors"
)

// ============================================================================
// Scoring profiles
// ============================================================================

// TagSimilarity selects the denominator of the tag-set similarity.
type TagSimilarity string

const (
	// TagJaccard divides the intersection by the union.
	TagJaccard TagSimilarity = "jaccard"
	// TagOverlap divides the intersection by the smaller set, favouring
	// pairs where one node's tags are a subset of the other's.
	TagOverlap TagSimilarity = "overlap"
)

// ForbiddenPolicy decides what happens to candidates whose inferred
// relation would feed DCI.
type ForbiddenPolicy string

const (
	ForbiddenReject     ForbiddenPolicy = "reject"
	ForbiddenSubstitute ForbiddenPolicy = "substitute"
)

// Mode decides how region violations are handled.
type Mode string

const (
	ModeStrict Mode = "strict"
	ModeSoft   Mode = "soft"
)

// Weights combine the four candidate sub-scores. CrossBonus is a flat
// addition for cross-group pairs.
type Weights struct {
	Span       float64 `json:"span" yaml:"span"`
	Semantic   float64 `json:"semantic" yaml:"semantic"`
	CrossBonus float64 `json:"cross_bonus" yaml:"cross_bonus"`
	Gain       float64 `json:"gain" yaml:"gain"`
}

// SemanticWeights blend the three semantic signals.
type SemanticWeights struct {
	Tag     float64 `json:"tag" yaml:"tag"`
	Kind    float64 `json:"kind" yaml:"kind"`
	Content float64 `json:"content" yaml:"content"`
}

// Region is the open rectangle (distance, asymmetry) a candidate must fall in.
type Region struct {
	DistanceMin  float64 `json:"distance_min" yaml:"distance_min"`
	DistanceMax  float64 `json:"distance_max" yaml:"distance_max"`
	AsymmetryMin float64 `json:"asymmetry_min" yaml:"asymmetry_min"`
	AsymmetryMax float64 `json:"asymmetry_max" yaml:"asymmetry_max"`
}

// Contains reports whether the point lies strictly inside the region. A nil
// region contains everything.
func (r *Region) Contains(distance, asymmetry float64) bool {
	if r == nil {
		return true
	}
	return r.DistanceMin < distance && distance < r.DistanceMax &&
		r.AsymmetryMin < asymmetry && asymmetry < r.AsymmetryMax
}

// ScoringProfile bundles every knob of one engine configuration. Each
// historical engine version is one named value of this type.
type ScoringProfile struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	Weights       Weights         `json:"weights"`
	Semantic      SemanticWeights `json:"semantic"`
	TagSimilarity TagSimilarity   `json:"tag_similarity"`

	MinSpan     int             `json:"min_span"`
	MinSemantic float64         `json:"min_semantic"`
	Forbidden   ForbiddenPolicy `json:"forbidden_policy"`
	// CSERFloor of 0 disables the floor.
	CSERFloor   float64 `json:"cser_floor"`
	Region      *Region `json:"region,omitempty"`
	Mode        Mode    `json:"mode"`
	SoftPenalty float64 `json:"soft_penalty"`
}

// DefaultMinSpan is the shortest order distance worth proposing.
const DefaultMinSpan = 20

// AsymmetryEpsilon keeps asymmetry finite for zero semantic scores.
const AsymmetryEpsilon = 0.001

var defaultSemantic = SemanticWeights{Tag: 0.40, Kind: 0.35, Content: 0.25}

// Built-in profiles.
var (
	ProfileSpanSemantic = ScoringProfile{
		Name:          "v1-span-semantic",
		Description:   "span and semantic blend with normalized gain",
		Weights:       Weights{Span: 0.35, Semantic: 0.35, Gain: 0.30},
		Semantic:      defaultSemantic,
		TagSimilarity: TagJaccard,
		MinSpan:       DefaultMinSpan,
		MinSemantic:   0.25,
		Forbidden:     ForbiddenSubstitute,
		Mode:          ModeStrict,
	}
	ProfileDCINeutral = ScoringProfile{
		Name:          "v2-dci-neutral",
		Description:   "v1 weights, recall-biased tag overlap, neutral relations only",
		Weights:       Weights{Span: 0.35, Semantic: 0.35, Gain: 0.30},
		Semantic:      defaultSemantic,
		TagSimilarity: TagOverlap,
		MinSpan:       DefaultMinSpan,
		MinSemantic:   0.25,
		Forbidden:     ForbiddenSubstitute,
		Mode:          ModeStrict,
	}
	ProfileCrossFloor = ScoringProfile{
		Name:          "v3-cross-floor",
		Description:   "cross-group bonus, CSER floor and bounded distance/asymmetry region",
		Weights:       Weights{Span: 0.35, Semantic: 0.35, CrossBonus: 0.30, Gain: 0.30},
		Semantic:      defaultSemantic,
		TagSimilarity: TagJaccard,
		MinSpan:       DefaultMinSpan,
		MinSemantic:   0.05,
		Forbidden:     ForbiddenSubstitute,
		CSERFloor:     0.65,
		Region:        &Region{DistanceMin: 0.15, DistanceMax: 0.30, AsymmetryMin: 1.20, AsymmetryMax: 2.50},
		Mode:          ModeStrict,
		SoftPenalty:   0.10,
	}
	ProfileSpanDirect = ScoringProfile{
		Name:          "v4-span-direct",
		Description:   "optimises edge span and age spread directly, no floor",
		Weights:       Weights{Span: 0.80, CrossBonus: 0.20},
		Semantic:      defaultSemantic,
		TagSimilarity: TagJaccard,
		MinSpan:       DefaultMinSpan,
		Forbidden:     ForbiddenReject,
		Mode:          ModeStrict,
	}
)

// DefaultProfileName is used when no profile is requested.
const DefaultProfileName = "v3-cross-floor"

// Validate rejects profiles that cannot be scored.
func (p ScoringProfile) Validate() error {
	invalid := func(format string, args ...any) error {
		return apperrors.NewProfileInvalid(p.Name, fmt.Sprintf(format, args...))
	}
	if p.Name == "" {
		return invalid("name is required")
	}
	for label, w := range map[string]float64{
		"span": p.Weights.Span, "semantic": p.Weights.Semantic, "cross_bonus": p.Weights.CrossBonus,
		"gain": p.Weights.Gain, "tag": p.Semantic.Tag, "kind": p.Semantic.Kind, "content": p.Semantic.Content,
	} {
		if w < 0 {
			return invalid("%s weight is negative", label)
		}
	}
	switch p.TagSimilarity {
	case TagJaccard, TagOverlap:
	default:
		return invalid("tag_similarity must be %q or %q", TagJaccard, TagOverlap)
	}
	switch p.Forbidden {
	case ForbiddenReject, ForbiddenSubstitute:
	default:
		return invalid("forbidden_policy must be %q or %q", ForbiddenReject, ForbiddenSubstitute)
	}
	switch p.Mode {
	case ModeStrict, ModeSoft:
	default:
		return invalid("mode must be %q or %q", ModeStrict, ModeSoft)
	}
	if p.MinSpan < 1 {
		return invalid("min_span must be at least 1")
	}
	if p.CSERFloor < 0 || p.CSERFloor > 1 {
		return invalid("cser_floor must be within [0,1]")
	}
	if p.SoftPenalty < 0 {
		return invalid("soft_penalty is negative")
	}
	if r := p.Region; r != nil && (r.DistanceMin >= r.DistanceMax || r.AsymmetryMin >= r.AsymmetryMax) {
		return invalid("region bounds are empty")
	}
	return nil
}

// WithOverrides applies per-run CLI overrides. A zero minSpan or empty mode
// keeps the profile value.
func (p ScoringProfile) WithOverrides(minSpan int, mode Mode) ScoringProfile {
	if minSpan > 0 {
		p.MinSpan = minSpan
	}
	if mode != "" {
		p.Mode = mode
	}
	return p
}

// ============================================================================
// Registry
// ============================================================================

// Registry resolves profiles by name.
type Registry struct {
	profiles map[string]ScoringProfile
	def      string
}

// Builtins lists the built-in profiles in version order.
func Builtins() []ScoringProfile {
	return []ScoringProfile{ProfileSpanSemantic, ProfileDCINeutral, ProfileCrossFloor, ProfileSpanDirect}
}

// NewRegistry holds the four built-in profiles.
func NewRegistry() *Registry {
	r := &Registry{profiles: make(map[string]ScoringProfile), def: DefaultProfileName}
	for _, p := range Builtins() {
		r.profiles[p.Name] = p
	}
	return r
}

// RegistryFromConfig layers engine-file profiles over the built-ins.
func RegistryFromConfig(f *config.EngineFile) (*Registry, error) {
	r := NewRegistry()
	if f == nil {
		return r, nil
	}
	for _, pc := range f.Profiles {
		baseName := pc.Base
		if baseName == "" {
			baseName = pc.Name
		}
		base, ok := r.profiles[baseName]
		if !ok {
			if pc.Base != "" {
				return nil, apperrors.NewProfileNotFound(pc.Base)
			}
			base = ProfileCrossFloor
		}
		p := applyConfig(base, pc)
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	if f.DefaultProfile != "" {
		if _, ok := r.profiles[f.DefaultProfile]; !ok {
			return nil, apperrors.NewProfileNotFound(f.DefaultProfile)
		}
		r.def = f.DefaultProfile
	}
	return r, nil
}

// Register adds or replaces a profile after validating it.
func (r *Registry) Register(p ScoringProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.profiles[p.Name] = p
	return nil
}

// Get resolves a profile; the empty name yields the default.
func (r *Registry) Get(name string) (ScoringProfile, error) {
	if name == "" {
		name = r.def
	}
	p, ok := r.profiles[name]
	if !ok {
		return ScoringProfile{}, apperrors.NewProfileNotFound(name)
	}
	return p, nil
}

// Default is the name of the default profile.
func (r *Registry) Default() string { return r.def }

// SetDefault makes name the default profile.
func (r *Registry) SetDefault(name string) error {
	if _, ok := r.profiles[name]; !ok {
		return apperrors.NewProfileNotFound(name)
	}
	r.def = name
	return nil
}

// Names lists registered profiles alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for n := range r.profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func applyConfig(p ScoringProfile, pc config.ProfileConfig) ScoringProfile {
	p.Name = pc.Name
	if pc.Description != "" {
		p.Description = pc.Description
	}
	setF := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	setF(&p.Weights.Span, pc.SpanWeight)
	setF(&p.Weights.Semantic, pc.SemanticWeight)
	setF(&p.Weights.CrossBonus, pc.CrossBonus)
	setF(&p.Weights.Gain, pc.GainWeight)
	setF(&p.Semantic.Tag, pc.TagWeight)
	setF(&p.Semantic.Kind, pc.KindWeight)
	setF(&p.Semantic.Content, pc.ContentWeight)
	setF(&p.MinSemantic, pc.MinSemantic)
	setF(&p.CSERFloor, pc.CSERFloor)
	setF(&p.SoftPenalty, pc.SoftPenalty)
	if pc.TagSimilarity != nil {
		p.TagSimilarity = TagSimilarity(*pc.TagSimilarity)
	}
	if pc.MinSpan != nil {
		p.MinSpan = *pc.MinSpan
	}
	if pc.ForbiddenPolicy != nil {
		p.Forbidden = ForbiddenPolicy(*pc.ForbiddenPolicy)
	}
	if pc.Mode != nil {
		p.Mode = Mode(*pc.Mode)
	}
	if pc.Region != nil {
		if pc.Region.Disabled {
			p.Region = nil
		} else {
			p.Region = &Region{
				DistanceMin:  pc.Region.DistanceMin,
				DistanceMax:  pc.Region.DistanceMax,
				AsymmetryMin: pc.Region.AsymmetryMin,
				AsymmetryMax: pc.Region.AsymmetryMax,
			}
		}
	}
	return p
}
