package pairing

import "emergent-kg/backend/internal/relation"

// DefaultKindCompat scores kind pairs missing from the table.
const DefaultKindCompat = 0.30

// kindCompat is keyed by unordered kind pair, so lookups never depend on
// which node of a candidate comes first.
var kindCompat = map[relation.KindPair]float64{
	relation.PairOf("insight", "question"):        0.85,
	relation.PairOf("observation", "question"):    0.80,
	relation.PairOf("prediction", "question"):     0.75,
	relation.PairOf("prediction", "observation"):  0.90,
	relation.PairOf("prediction", "insight"):      0.70,
	relation.PairOf("insight", "insight"):         0.60,
	relation.PairOf("insight", "observation"):     0.65,
	relation.PairOf("insight", "decision"):        0.72,
	relation.PairOf("decision", "observation"):    0.65,
	relation.PairOf("decision", "question"):       0.68,
	relation.PairOf("observation", "observation"): 0.45,
	relation.PairOf("insight", "experiment"):      0.75,
	relation.PairOf("observation", "experiment"):  0.80,
	relation.PairOf("prediction", "experiment"):   0.85,
	relation.PairOf("question", "experiment"):     0.70,
	relation.PairOf("concept", "insight"):         0.65,
	relation.PairOf("concept", "observation"):     0.60,
	relation.PairOf("concept", "question"):        0.65,
	relation.PairOf("finding", "insight"):         0.75,
	relation.PairOf("finding", "prediction"):      0.70,
	relation.PairOf("finding", "observation"):     0.72,
	relation.PairOf("synthesis", "insight"):       0.80,
	relation.PairOf("synthesis", "observation"):   0.75,
	relation.PairOf("artifact", "insight"):        0.55,
	relation.PairOf("artifact", "experiment"):     0.65,
	relation.PairOf("tool", "experiment"):         0.70,
	relation.PairOf("tool", "artifact"):           0.60,
	relation.PairOf("persona", "observation"):     0.55,
	relation.PairOf("persona", "insight"):         0.50,
}

// KindCompat is the compatibility of two node kinds in [0,1].
func KindCompat(a, b string) float64 {
	if v, ok := kindCompat[relation.PairOf(a, b)]; ok {
		return v
	}
	return DefaultKindCompat
}
