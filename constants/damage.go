package constants

// DamageClass is the per-image classification outcome.
type DamageClass string

const (
	DamageDetected DamageClass = "damage"
	NoDamage       DamageClass = "no_damage"
	DamageUnknown  DamageClass = "unknown" // decode or inference failed; never an error
)
