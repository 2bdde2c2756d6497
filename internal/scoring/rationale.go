package scoring

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/roach88/dinnermatch/internal/domain"
)

const fallbackRationale = "Based on your preferences, this looks like a great match!"

// explain builds the "why it's a fit" text. Factors are ranked by their
// weighted contribution to the score and the two strongest that have
// something to say are turned into a sentence.
func (s *Scorer) explain(g domain.Guest, h domain.Host, travel int, shared []string, factors map[Factor]float64) string {
	ranked := make([]Factor, len(factorOrder))
	copy(ranked, factorOrder)
	sort.SliceStable(ranked, func(i, j int) bool {
		return s.weights.of(ranked[i])*factors[ranked[i]] > s.weights.of(ranked[j])*factors[ranked[j]]
	})

	var points []string
	for _, f := range ranked {
		if p := phrase(f, g, h, travel, shared, factors[f]); p != "" {
			points = append(points, p)
		}
	}
	if len(points) < 2 {
		if d := vibeDetail(g.Vibe, h.Vibe); d != "" {
			points = append(points, d)
		}
	}

	switch len(points) {
	case 0:
		return fallbackRationale
	case 1:
		return upperFirst(points[0]) + " - we think you'll have a wonderful time!"
	default:
		return upperFirst(points[0]) + ", and " + points[1] + "."
	}
}

func phrase(f Factor, g domain.Guest, h domain.Host, travel int, shared []string, value float64) string {
	switch f {
	case FactorLanguage:
		if len(shared) > 1 {
			return "You both speak " + strings.Join(shared, " and ")
		}
		if len(shared) == 1 && !isEnglish(shared[0]) {
			return "You both speak " + shared[0]
		}
	case FactorProximity:
		switch {
		case travel <= 15 && SameNeighborhood(g.Neighborhood, h.Neighborhood):
			return "you're in the same neighborhood"
		case travel <= 15:
			return "you're just a short trip apart"
		case travel <= 25:
			return "you're conveniently located nearby"
		}
	case FactorVibe:
		switch {
		case value >= 0.85:
			return "you have very similar Shabbat vibes"
		case value >= 0.7:
			return "your Shabbat styles align well"
		}
	case FactorContribution:
		if h.Contribution == domain.ContributionNone {
			return "no contribution is expected"
		}
		if value == 1 {
			return "your contribution expectations match"
		}
	case FactorCapacity:
	}
	return ""
}

// vibeDetail names one concrete axis the pair agrees on.
func vibeDetail(g, h domain.Vibe) string {
	if absInt(g.Social-h.Social) <= 1 {
		switch {
		case g.Social <= 2:
			return "you both prefer intimate gatherings"
		case g.Social >= 4:
			return "you both enjoy larger groups"
		}
	}
	if absInt(g.Formality-h.Formality) <= 1 {
		switch {
		case g.Formality <= 2:
			return "you both enjoy a casual atmosphere"
		case g.Formality >= 4:
			return "you both appreciate a traditional setting"
		}
	}
	return ""
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
