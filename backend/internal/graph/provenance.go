package graph

import "encoding/json"

// GeneratorName marks edges appended by the recommendation engine.
const GeneratorName = "pair_designer"

// Provenance is the meta block written on every engine-generated edge.
type Provenance struct {
	Source      string  `json:"source"`
	Profile     string  `json:"version"`
	Session     string  `json:"session,omitempty"`
	Cycle       int     `json:"cycle"`
	Date        string  `json:"date"`
	Combined    float64 `json:"combined"`
	Span        int     `json:"span"`
	Semantic    float64 `json:"semantic"`
	CrossSource bool    `json:"cross_source"`
	CrossBonus  float64 `json:"cross_bonus"`
	Distance    float64 `json:"distance"`
	Asymmetry   float64 `json:"asymmetry"`
	InRegion    bool    `json:"passes_4d"`
	DCINeutral  bool    `json:"dci_neutral"`
}

// Encode renders p for Edge.Meta.
func (p Provenance) Encode() (json.RawMessage, error) {
	return marshalRaw(p)
}

// ProvenanceOf decodes the engine meta block of e. The second result is
// false for edges the engine did not write.
func ProvenanceOf(e Edge) (Provenance, bool) {
	if len(e.Meta) == 0 {
		return Provenance{}, false
	}
	var p Provenance
	if err := json.Unmarshal(e.Meta, &p); err != nil {
		return Provenance{}, false
	}
	return p, p.Source == GeneratorName
}
