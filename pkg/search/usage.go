package search

import (
	"math"
	"time"
)

// UsageWeights blend how often an embedding has been returned with how
// recently. They should sum to 1 for scores comparable to similarity.
type UsageWeights struct {
	Frequency float64
	Recency   float64
}

// DefaultUsageWeights favor frequency over recency.
func DefaultUsageWeights() UsageWeights {
	return UsageWeights{Frequency: 0.7, Recency: 0.3}
}

// usageScore computes the usage component of an embedding's ranking.
// Never-returned embeddings score 0. Frequency saturates at 99 returns
// (log base 100) and recency decays exponentially with a 30-day scale.
func usageScore(usageCount int, returnedAt *time.Time, now time.Time, w UsageWeights) float64 {
	if usageCount == 0 || returnedAt == nil {
		return 0
	}

	frequency := math.Log(float64(usageCount)+1) / math.Log(100)
	if frequency > 1 {
		frequency = 1
	}

	daysSince := now.Sub(*returnedAt).Hours() / 24
	recency := math.Exp(-daysSince / 30)

	return w.Frequency*frequency + w.Recency*recency
}
