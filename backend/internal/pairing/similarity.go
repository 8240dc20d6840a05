package pairing

// Jaccard is |a∩b| / |a∪b|, 0 when either set is empty.
func Jaccard[T comparable](a, b map[T]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := intersection(a, b)
	return float64(inter) / float64(len(a)+len(b)-inter)
}

// Overlap is |a∩b| / min(|a|,|b|), 0 when either set is empty.
func Overlap[T comparable](a, b map[T]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	return float64(intersection(a, b)) / float64(min(len(a), len(b)))
}

// Similarity dispatches on the configured tag similarity.
func (m TagSimilarity) Similarity(a, b map[string]struct{}) float64 {
	if m == TagOverlap {
		return Overlap(a, b)
	}
	return Jaccard(a, b)
}

func intersection[T comparable](a, b map[T]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func setOf(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, it := range items {
		out[it] = struct{}{}
	}
	return out
}
