package scoring

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Manhattan neighborhoods known to the travel table.
const (
	UpperWestSide     = "Upper West Side"
	UpperEastSide     = "Upper East Side"
	MidtownWest       = "Midtown West"
	MidtownEast       = "Midtown East"
	MurrayHill        = "Murray Hill"
	GramercyFlatiron  = "Gramercy / Flatiron"
	Chelsea           = "Chelsea"
	GreenwichVillage  = "Greenwich Village / West Village"
	EastVillage       = "East Village / NoHo"
	SohoTribeca       = "SoHo / Tribeca"
	LowerEastSide     = "Lower East Side"
	FinancialDistrict = "Financial District"
	WashingtonHeights = "Washington Heights"
	Harlem            = "Harlem"
)

// UnknownTravelMinutes is assumed for any pair the table does not cover.
const UnknownTravelMinutes = 60

// Neighborhoods lists the table's rows in order.
var Neighborhoods = []string{
	UpperWestSide, UpperEastSide, MidtownWest, MidtownEast, MurrayHill,
	GramercyFlatiron, Chelsea, GreenwichVillage, EastVillage, SohoTribeca,
	LowerEastSide, FinancialDistrict, WashingtonHeights, Harlem,
}

// travelMinutes[i][j] is the rough subway/walking time from
// Neighborhoods[i] to Neighborhoods[j].
var travelMinutes = [14][14]int{
	//UWS UES MW  ME  MH  GF  CH  GV  EV  ST  LES FD  WH  HA
	{5, 20, 15, 20, 25, 25, 20, 25, 30, 30, 35, 35, 20, 15}, // Upper West Side
	{20, 5, 20, 10, 15, 20, 25, 25, 20, 30, 25, 35, 35, 20}, // Upper East Side
	{15, 20, 5, 15, 15, 15, 10, 15, 20, 20, 25, 25, 30, 25}, // Midtown West
	{20, 10, 15, 5, 10, 15, 20, 20, 15, 25, 20, 30, 35, 25}, // Midtown East
	{25, 15, 15, 10, 5, 10, 15, 15, 15, 20, 15, 25, 40, 30}, // Murray Hill
	{25, 20, 15, 15, 10, 5, 10, 10, 10, 15, 15, 25, 40, 35}, // Gramercy / Flatiron
	{20, 25, 10, 20, 15, 10, 5, 10, 15, 15, 20, 25, 35, 30}, // Chelsea
	{25, 25, 15, 20, 15, 10, 10, 5, 10, 10, 15, 20, 40, 35}, // Greenwich Village
	{30, 20, 20, 15, 15, 10, 15, 10, 5, 10, 10, 20, 45, 35}, // East Village / NoHo
	{30, 30, 20, 25, 20, 15, 15, 10, 10, 5, 15, 15, 45, 40}, // SoHo / Tribeca
	{35, 25, 25, 20, 15, 15, 20, 15, 10, 15, 5, 15, 50, 40}, // Lower East Side
	{35, 35, 25, 30, 25, 25, 25, 20, 20, 15, 15, 5, 50, 45}, // Financial District
	{20, 35, 30, 35, 40, 40, 35, 40, 45, 45, 50, 50, 5, 15}, // Washington Heights
	{15, 20, 25, 25, 30, 35, 30, 35, 35, 40, 40, 45, 15, 5}, // Harlem
}

var neighborhoodIndex = func() map[string]int {
	m := make(map[string]int, len(Neighborhoods))
	for i, n := range Neighborhoods {
		m[normalize(n)] = i
	}
	return m
}()

// TravelTime returns the estimated minutes between two neighborhoods.
// Names are compared case-insensitively after Unicode normalization.
func TravelTime(from, to string) int {
	i, ok := neighborhoodIndex[normalize(from)]
	if !ok {
		return UnknownTravelMinutes
	}
	j, ok := neighborhoodIndex[normalize(to)]
	if !ok {
		return UnknownTravelMinutes
	}
	return travelMinutes[i][j]
}

// KnownNeighborhood reports whether name is a row in the table.
func KnownNeighborhood(name string) bool {
	_, ok := neighborhoodIndex[normalize(name)]
	return ok
}

// CanonicalNeighborhood returns the table's spelling of name.
func CanonicalNeighborhood(name string) (string, bool) {
	i, ok := neighborhoodIndex[normalize(name)]
	if !ok {
		return name, false
	}
	return Neighborhoods[i], true
}

// SameNeighborhood compares two names the way TravelTime does.
func SameNeighborhood(a, b string) bool {
	return normalize(a) == normalize(b)
}

// normalize folds case and composes Unicode so "español" typed on two
// different keyboards compares equal. A Caser is stateful, so one is
// created per call.
func normalize(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}
