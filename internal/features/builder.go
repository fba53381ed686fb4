package features

import (
	"strings"

	"github.com/claimlens/claimlens/constants"
	"github.com/claimlens/claimlens/internal/damage"
)

// Vector is the fixed-schema encoding of one claim. Every field has a
// defined default, so the vector is always fully populated and the model
// never sees a missing value.
type Vector struct {
	IncidentType  constants.IncidentType // default Other
	TimeOfDay     string                 // morning|afternoon|evening|night|unknown
	RoadCondition string                 // dry|wet|icy|snow|unknown

	DriverAge        int     // default 0 (also flags the claim as incomplete)
	VehicleAge       int     // default 0
	EngineCapacityCC int     // default 0
	MarketValue      float64 // default 0
	SeverityTier     int     // 0 minor .. 3 total, default 0

	PoliceReport      bool
	FiledWithin24h    bool
	Witnesses         bool
	ThirdPartyVehicle bool
	Injuries          bool
	TrafficViolation  bool

	PreviousClaims int

	// Aggregate damage signal from the classifier. An input feature,
	// not a verdict.
	VisualDamage      bool
	DamageConfidence  float64 // max confidence among damage labels
	EvidenceCount     int
	UnknownLabelCount int

	HasDescription bool
}

// lookup returns the first present key among aliases. The surrounding form
// UI has produced several spellings of the same field over time.
func lookup(form map[string]any, names ...string) (any, bool) {
	for _, n := range names {
		if v, ok := form[n]; ok {
			return v, true
		}
	}
	return nil, false
}

func coerceBoolField(form map[string]any, names ...string) bool {
	v, ok := lookup(form, names...)
	if !ok {
		return false
	}
	return CoerceBool(v)
}

func coerceIntField(form map[string]any, names ...string) int {
	v, ok := lookup(form, names...)
	if !ok {
		return 0
	}
	return CoerceInt(v)
}

func coerceFloatField(form map[string]any, names ...string) float64 {
	v, ok := lookup(form, names...)
	if !ok {
		return 0
	}
	return CoerceFloat(v)
}

func coerceStringField(form map[string]any, names ...string) string {
	v, ok := lookup(form, names...)
	if !ok {
		return ""
	}
	return CoerceString(v)
}

// Build normalizes the raw form mapping and the classifier output into a
// Vector. It is a total function over any JSON object.
func Build(form map[string]any, description string, labels []damage.Label) Vector {
	if form == nil {
		form = map[string]any{}
	}

	incidentRaw := coerceStringField(form, "incidentType", "incident_type", "incident")
	incident, _ := constants.CanonicalizeIncident(incidentRaw)

	v := Vector{
		IncidentType:  incident,
		TimeOfDay:     canonTimeOfDay(coerceStringField(form, "timeOfDay", "time_of_day")),
		RoadCondition: canonRoadCondition(coerceStringField(form, "roadCondition", "road_condition", "weather", "weatherCondition")),

		DriverAge:        clampInt(coerceIntField(form, "driver_age", "driverAge"), 0, 120),
		VehicleAge:       clampInt(coerceIntField(form, "vehicle_age", "vehicleAge"), 0, 80),
		EngineCapacityCC: clampInt(coerceIntField(form, "engineCapacity", "engine_capacity_cc", "engineCapacityCC"), 0, 12000),
		MarketValue:      maxf(0, coerceFloatField(form, "marketValue", "market_value", "vehicleMarketValue")),
		SeverityTier:     canonSeverity(coerceStringField(form, "damageSeverity", "damage_severity", "severity")),

		PoliceReport:      coerceBoolField(form, "policeReport", "police_report", "policeReportFiled"),
		FiledWithin24h:    coerceBoolField(form, "policeReportFiledWithin24h", "filed_within_24h", "filedWithin24h"),
		Witnesses:         coerceBoolField(form, "witnesses", "witnessesPresent", "witnesses_present"),
		ThirdPartyVehicle: coerceBoolField(form, "thirdPartyVehicle", "third_party_vehicle", "otherVehicleInvolved"),
		Injuries:          coerceBoolField(form, "injuries", "injuriesReported", "anyInjuries"),
		TrafficViolation:  coerceBoolField(form, "trafficViolation", "traffic_violation", "citationIssued"),

		PreviousClaims: clampInt(coerceIntField(form, "previousClaims", "previous_claims", "previousClaimsCount"), 0, 50),

		HasDescription: strings.TrimSpace(description) != "",
	}

	v.EvidenceCount = len(labels)
	for _, l := range labels {
		switch l.Class {
		case constants.DamageDetected:
			v.VisualDamage = true
			if l.Confidence > v.DamageConfidence {
				v.DamageConfidence = l.Confidence
			}
		case constants.DamageUnknown:
			v.UnknownLabelCount++
		}
	}

	return v
}

// Encode flattens the vector into the named numeric inputs the frozen
// predictor was fit on. Key names are part of the artifact contract.
func (v Vector) Encode() map[string]float64 {
	b2f := func(b bool) float64 {
		if b {
			return 1
		}
		return 0
	}

	m := map[string]float64{
		"police_report":      b2f(v.PoliceReport),
		"filed_within_24h":   b2f(v.FiledWithin24h),
		"witnesses":          b2f(v.Witnesses),
		"third_party":        b2f(v.ThirdPartyVehicle),
		"injuries":           b2f(v.Injuries),
		"traffic_violation":  b2f(v.TrafficViolation),
		"visual_damage":      b2f(v.VisualDamage),
		"damage_confidence":  v.DamageConfidence,
		"has_description":    b2f(v.HasDescription),
		"previous_claims":    minf(float64(v.PreviousClaims), 10) / 10,
		"severity":           float64(v.SeverityTier) / 3,
		"night":              b2f(v.TimeOfDay == "night"),
		"adverse_road":       b2f(v.RoadCondition == "wet" || v.RoadCondition == "icy" || v.RoadCondition == "snow"),
		"young_driver":       b2f(v.DriverAge > 0 && v.DriverAge < 25),
		"driver_age_known":   b2f(v.DriverAge > 0),
		"vehicle_age":        minf(float64(v.VehicleAge), 15) / 15,
		"evidence_count":     minf(float64(v.EvidenceCount), 5) / 5,
		"incident_collision": b2f(v.IncidentType == constants.Collision || v.IncidentType == constants.RearEnd),
		"incident_theft":     b2f(v.IncidentType == constants.Theft),
		"incident_glass":     b2f(v.IncidentType == constants.GlassDamage),
	}
	return m
}

func canonTimeOfDay(s string) string {
	switch strings.ToLower(s) {
	case "morning", "am":
		return "morning"
	case "afternoon", "midday", "noon":
		return "afternoon"
	case "evening", "dusk":
		return "evening"
	case "night", "overnight", "late night":
		return "night"
	default:
		return "unknown"
	}
}

func canonRoadCondition(s string) string {
	switch strings.ToLower(s) {
	case "dry", "clear", "sunny":
		return "dry"
	case "wet", "rain", "raining", "rainy":
		return "wet"
	case "ice", "icy", "black ice":
		return "icy"
	case "snow", "snowy", "sleet":
		return "snow"
	default:
		return "unknown"
	}
}

func canonSeverity(s string) int {
	switch strings.ToLower(s) {
	case "minor", "cosmetic", "scratch":
		return 0
	case "moderate", "medium":
		return 1
	case "severe", "major", "heavy":
		return 2
	case "total", "total loss", "totaled", "write-off":
		return 3
	default:
		return 0
	}
}

func clampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
