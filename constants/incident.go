package constants

import (
	"strings"
)

type IncidentType string

const (
	Collision   IncidentType = "Collision"
	RearEnd     IncidentType = "RearEnd"
	Theft       IncidentType = "Theft"
	Vandalism   IncidentType = "Vandalism"
	Fire        IncidentType = "Fire"
	Flood       IncidentType = "Flood"
	Hail        IncidentType = "Hail"
	GlassDamage IncidentType = "GlassDamage"
	HitAndRun   IncidentType = "HitAndRun"
	SingleCar   IncidentType = "SingleCar"
	Other       IncidentType = "Other"
)

var allIncidentTypes = []IncidentType{
	Collision,
	RearEnd,
	Theft,
	Vandalism,
	Fire,
	Flood,
	Hail,
	GlassDamage,
	HitAndRun,
	SingleCar,
	Other,
}

func IncidentTypesAsStrings() []string {
	result := make([]string, len(allIncidentTypes))
	for i, t := range allIncidentTypes {
		result[i] = string(t)
	}
	return result
}

// CanonicalizeIncident maps free-form incident labels from the claim form
// onto the fixed taxonomy. Returns (Other, false) when nothing matches.
func CanonicalizeIncident(input string) (IncidentType, bool) {
	if input == "" {
		return Other, false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))

	// synonyms map
	synonyms := map[string]IncidentType{
		"crash":           Collision,
		"accident":        Collision,
		"fender bender":   Collision,
		"rear-end":        RearEnd,
		"rear ended":      RearEnd,
		"stolen":          Theft,
		"break-in":        Theft,
		"broken into":     Theft,
		"keyed":           Vandalism,
		"vandalized":      Vandalism,
		"windshield":      GlassDamage,
		"glass":           GlassDamage,
		"hit and run":     HitAndRun,
		"hit-and-run":     HitAndRun,
		"water damage":    Flood,
		"hailstorm":       Hail,
		"single vehicle":  SingleCar,
		"single-vehicle":  SingleCar,
		"ran off road":    SingleCar,
		"engine fire":     Fire,
		"vehicle fire":    Fire,
	}

	if t, ok := synonyms[normalized]; ok {
		return t, true
	}

	// check if it matches any canonical string
	for _, t := range allIncidentTypes {
		if normalized == strings.ToLower(string(t)) {
			return t, true
		}
	}

	return Other, false
}
