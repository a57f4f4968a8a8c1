package risk

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/kjannette/hrp-allocator/internal/models"
)

// Limits holds the allocation constraints.
// A zero value for MaxWeight means that check is disabled.
type Limits struct {
	Universe  []string
	MaxWeight float64
	Tolerance float64
}

// Guardian vets optimizer output before it is persisted.
type Guardian struct {
	limits Limits
}

func NewGuardian(limits Limits) *Guardian {
	if limits.Tolerance <= 0 {
		limits.Tolerance = models.WeightTolerance
	}
	return &Guardian{limits: limits}
}

// CheckWeights returns nil if w is a valid long-only, fully invested
// allocation over the universe, a descriptive error otherwise.
func (g *Guardian) CheckWeights(w models.Weights) error {
	if len(w) == 0 {
		return fmt.Errorf("allocation rejected: no weights")
	}

	var outside []string
	for _, t := range w.Tickers() {
		v := w[t]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("allocation rejected: weight of %s is %v", t, v)
		}
		if v < 0 {
			return fmt.Errorf("allocation rejected: negative weight %g for %s", v, t)
		}
		if g.limits.MaxWeight > 0 && v > g.limits.MaxWeight+g.limits.Tolerance {
			return fmt.Errorf("allocation rejected: %s weight %.4f exceeds max %.4f", t, v, g.limits.MaxWeight)
		}
		if len(g.limits.Universe) > 0 && !slices.Contains(g.limits.Universe, t) {
			outside = append(outside, t)
		}
	}
	if len(outside) > 0 {
		return fmt.Errorf("allocation rejected: tickers outside universe: %s", strings.Join(outside, ", "))
	}

	if sum := w.Sum(); math.Abs(sum-1) > g.limits.Tolerance {
		return fmt.Errorf("allocation rejected: weights sum to %.8f (tolerance %.0e)", sum, g.limits.Tolerance)
	}
	return nil
}
