package rag

// DefaultMinRelevance is the similarity threshold below which candidates are
// dropped during reranking when the caller does not override it. 0.30 keeps
// loosely related chunks while discarding noise for cosine-normalized
// embedding models.
const DefaultMinRelevance = 0.30

// filterBoost scales the confidence bonus applied per unit of removed
// fraction. Dropping clearly-irrelevant candidates should not lower
// confidence in what remains, so confidence gets a small positive nudge
// proportional to how much was filtered out.
const filterBoost = 0.05

// Rerank removes every candidate whose similarity is below minRelevance and
// returns the survivors, in their original similarity-descending order with
// ranks reassigned, together with an aggregate confidence score in [0, 1].
//
// Confidence is the mean similarity of the survivors plus
// filterBoost * removedFraction, clamped to [0, 1]. The boost is monotone:
// filtering only low-similarity candidates never lowers confidence below the
// unfiltered value. When no candidate survives the result is (nil, 0.0),
// a valid "nothing relevant found" outcome, not an error.
func Rerank(candidates []Candidate, minRelevance float64) ([]Candidate, float64) {
	if len(candidates) == 0 {
		return nil, 0.0
	}

	survivors := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Similarity < minRelevance {
			continue
		}
		c.Rank = len(survivors)
		survivors = append(survivors, c)
	}

	if len(survivors) == 0 {
		return nil, 0.0
	}

	var sum float64
	for _, c := range survivors {
		sum += c.Similarity
	}
	mean := sum / float64(len(survivors))

	removed := float64(len(candidates)-len(survivors)) / float64(len(candidates))
	confidence := clamp01(mean + filterBoost*removed)

	return survivors, confidence
}

// clamp01 bounds v to [0, 1]. Cosine similarity can be negative, and the
// boost can push the mean past 1 for near-duplicate matches.
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
