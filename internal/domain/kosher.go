package domain

// Requirement is a guest's kosher requirement.
type Requirement string

// Current guest requirements.
const (
	RequirementKosherHouse   Requirement = "Kosher House"
	RequirementKosherTakeout Requirement = "Kosher Take out"
	RequirementNotKosherHome Requirement = "Not a Kosher home (Staff member will reach out to you)"
)

// Legacy guest requirements still present in older registrations.
const (
	RequirementFullKosherOnly Requirement = "Full kosher only"
	RequirementMixedOK        Requirement = "Mixed dairy and meat dishes ok"
	RequirementVegetarianOK   Requirement = "Vegetarian kosher home ok"
)

// KosherLevel is what a host's kitchen provides.
type KosherLevel string

const (
	KosherFull       KosherLevel = "Full kosher"
	KosherMixed      KosherLevel = "Mixed dairy and meat dishes"
	KosherVegetarian KosherLevel = "Vegetarian kosher home"
)

// AllKosherLevels lists every host level.
var AllKosherLevels = []KosherLevel{KosherFull, KosherMixed, KosherVegetarian}

var kosherCompat = map[Requirement][]KosherLevel{
	RequirementKosherHouse:    {KosherFull},
	RequirementKosherTakeout:  {KosherFull, KosherMixed, KosherVegetarian},
	RequirementNotKosherHome:  {KosherFull, KosherMixed, KosherVegetarian},
	RequirementFullKosherOnly: {KosherFull},
	RequirementMixedOK:        {KosherFull, KosherMixed},
	RequirementVegetarianOK:   {KosherFull, KosherMixed, KosherVegetarian},
}

// Valid reports whether r is a known requirement, current or legacy.
func (r Requirement) Valid() bool {
	_, ok := kosherCompat[r]
	return ok
}

// Strict reports whether r accepts only fully kosher hosts.
func (r Requirement) Strict() bool {
	levels := kosherCompat[r]
	return len(levels) == 1 && levels[0] == KosherFull
}

// Accepts reports whether a host at level satisfies r. An unknown
// requirement accepts nothing.
func (r Requirement) Accepts(level KosherLevel) bool {
	for _, l := range kosherCompat[r] {
		if l == level {
			return true
		}
	}
	return false
}

// Valid reports whether l is a known host level.
func (l KosherLevel) Valid() bool {
	switch l {
	case KosherFull, KosherMixed, KosherVegetarian:
		return true
	}
	return false
}

// Contribution is a guest's comfort range or a host's preference.
// Both sides share one ordered scale.
type Contribution string

const (
	ContributionNone        Contribution = "No contribution needed"
	ContributionUndisclosed Contribution = "Prefer not to say"
	Contribution0To10       Contribution = "$0 to $10"
	Contribution10To25      Contribution = "$10 to $25"
	Contribution25To50      Contribution = "$25 to $50"
	Contribution50Plus      Contribution = "$50+"
)

var contributionOrder = []Contribution{
	ContributionNone,
	ContributionUndisclosed,
	Contribution0To10,
	Contribution10To25,
	Contribution25To50,
	Contribution50Plus,
}

// ContributionSteps is the largest distance between two buckets.
var ContributionSteps = len(contributionOrder) - 1

// Level is the position of c on the scale. Unknown values are treated
// as undisclosed.
func (c Contribution) Level() int {
	for i, v := range contributionOrder {
		if v == c {
			return i
		}
	}
	return 1
}

// Valid reports whether c is a known bucket.
func (c Contribution) Valid() bool {
	for _, v := range contributionOrder {
		if v == c {
			return true
		}
	}
	return false
}

// Undisclosed reports whether c withholds a preference.
func (c Contribution) Undisclosed() bool { return c.Level() == 1 }
