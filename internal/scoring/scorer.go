// Package scoring computes how well a guest fits at a host's table.
//
// Score is a pure function of one guest, one host and the host's remaining
// seats. Hard constraints (capacity, kosher, language, travel) decide
// eligibility. Soft factors are combined into a weighted score in [0,1].
// Absolute values are a tunable, callers should only rely on ordering.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/dinnermatch/internal/domain"
)

// Factor names one soft component of the score.
type Factor string

const (
	FactorVibe         Factor = "vibe"
	FactorProximity    Factor = "proximity"
	FactorContribution Factor = "contribution"
	FactorLanguage     Factor = "language"
	FactorCapacity     Factor = "capacity"
)

// factorOrder breaks ties between equal weighted contributions.
var factorOrder = []Factor{FactorVibe, FactorProximity, FactorContribution, FactorLanguage, FactorCapacity}

// Weights are the relative importance of each soft factor. They need not
// sum to one, Score normalizes by their total.
type Weights struct {
	Vibe         float64 `json:"vibe"`
	Proximity    float64 `json:"proximity"`
	Contribution float64 `json:"contribution"`
	Language     float64 `json:"language"`
	Capacity     float64 `json:"capacity"`
}

// DefaultWeights favor vibe, then proximity.
func DefaultWeights() Weights {
	return Weights{
		Vibe:         0.35,
		Proximity:    0.20,
		Contribution: 0.15,
		Language:     0.15,
		Capacity:     0.15,
	}
}

func (w Weights) of(f Factor) float64 {
	switch f {
	case FactorVibe:
		return w.Vibe
	case FactorProximity:
		return w.Proximity
	case FactorContribution:
		return w.Contribution
	case FactorLanguage:
		return w.Language
	case FactorCapacity:
		return w.Capacity
	}
	return 0
}

func (w Weights) total() float64 {
	return w.Vibe + w.Proximity + w.Contribution + w.Language + w.Capacity
}

// Validate rejects negative weights and an all-zero set.
func (w Weights) Validate() error {
	for _, f := range factorOrder {
		if w.of(f) < 0 {
			return domain.Validationf("weight %s must not be negative", f)
		}
	}
	if w.total() <= 0 {
		return domain.Validationf("at least one weight must be positive")
	}
	return nil
}

// Result is the scorer's verdict on one guest-host pair.
type Result struct {
	Eligible  bool    `json:"eligible"`
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`

	// Reasons lists every failed hard constraint. Empty when eligible.
	Reasons []string `json:"reasons,omitempty"`

	// Factors holds the unweighted value of each soft factor.
	Factors map[Factor]float64 `json:"factors,omitempty"`

	// TravelMinutes is the table estimate between the two neighborhoods.
	TravelMinutes int `json:"travel_minutes"`
}

// Scorer evaluates guest-host pairs.
//
// Thread-safety: Scorer is immutable after construction and safe for
// concurrent use.
type Scorer struct {
	weights Weights
}

// New creates a Scorer with the given weights. Invalid weights fall back
// to DefaultWeights.
func New(w Weights) *Scorer {
	if w.Validate() != nil {
		w = DefaultWeights()
	}
	return &Scorer{weights: w}
}

// Weights returns the weights in use.
func (s *Scorer) Weights() Weights { return s.weights }

// Score evaluates guest g at host h, given the seats h has not yet committed.
func (s *Scorer) Score(g domain.Guest, h domain.Host, remaining int) Result {
	travel := TravelTime(g.Neighborhood, h.Neighborhood)
	shared := sharedLanguages(g.Languages, h.Languages)

	reasons := Ineligibility(g, h, remaining)
	if len(reasons) > 0 {
		return Result{Reasons: reasons, TravelMinutes: travel}
	}

	factors := map[Factor]float64{
		FactorVibe:         VibeScore(g.Vibe, h.Vibe),
		FactorProximity:    proximityScore(travel, g.MaxTravelTime),
		FactorContribution: ContributionScore(g.Contribution, h.Contribution),
		FactorLanguage:     languageScore(len(shared), distinctCount(g.Languages)),
		FactorCapacity:     capacityScore(remaining, h.Seats),
	}

	var sum float64
	for _, f := range factorOrder {
		sum += s.weights.of(f) * factors[f]
	}
	score := clamp01(sum / s.weights.total())

	return Result{
		Eligible:      true,
		Score:         score,
		Rationale:     s.explain(g, h, travel, shared, factors),
		Factors:       factors,
		TravelMinutes: travel,
	}
}

// Ineligibility lists the hard constraints g and h fail. An empty result
// means the pair is eligible.
func Ineligibility(g domain.Guest, h domain.Host, remaining int) []string {
	var reasons []string
	if g.PartySize < 1 || remaining < g.PartySize {
		reasons = append(reasons, fmt.Sprintf("Insufficient capacity (needs %d, has %d)", g.PartySize, remaining))
	}
	if !g.Kosher.Accepts(h.Kosher) {
		reasons = append(reasons, fmt.Sprintf("Kosher incompatible (%s vs %s)", g.Kosher, h.Kosher))
	}
	if len(sharedLanguages(g.Languages, h.Languages)) == 0 {
		reasons = append(reasons, fmt.Sprintf("No shared language (%s vs %s)",
			strings.Join(g.Languages, ", "), strings.Join(h.Languages, ", ")))
	}
	if travel := TravelTime(g.Neighborhood, h.Neighborhood); travel > g.MaxTravelTime {
		reasons = append(reasons, fmt.Sprintf("Travel too far (%s to %s, %d min > %d min)",
			g.Neighborhood, h.Neighborhood, travel, g.MaxTravelTime))
	}
	return reasons
}

// VibeScore is 1 minus the mean absolute axis difference over its
// maximum of 4. Identical vibes score 1, opposite extremes score 0.
func VibeScore(g, h domain.Vibe) float64 {
	diff := absInt(g.Chabad-h.Chabad) + absInt(g.Social-h.Social) + absInt(g.Formality-h.Formality)
	mean := float64(diff) / 3
	return clamp01(1 - mean/4)
}

// ContributionScore rates how well a guest's range matches a host's
// preference. Undisclosed on either side is neutral, a host asking for
// nothing is always satisfied, otherwise the score falls linearly with
// bucket distance.
func ContributionScore(guest, host domain.Contribution) float64 {
	if guest.Undisclosed() || host.Undisclosed() {
		return 0.7
	}
	if host.Level() == 0 {
		return 1.0
	}
	diff := absInt(guest.Level() - host.Level())
	return 1 - float64(diff)/float64(domain.ContributionSteps)
}

func proximityScore(travel, max int) float64 {
	if max <= 0 || travel >= max {
		return 0
	}
	return 1 - float64(travel)/float64(max)
}

func languageScore(shared, guestLangs int) float64 {
	if guestLangs == 0 {
		return 0
	}
	return clamp01(float64(shared) / float64(guestLangs))
}

func capacityScore(remaining, seats int) float64 {
	if seats <= 0 {
		return 0
	}
	return clamp01(float64(remaining) / float64(seats))
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
