package insight

import (
	"context"
	"fmt"
	"strings"

	"github.com/claimlens/claimlens/internal/features"
)

// FallbackMessage is returned whenever synthesis fails or no provider is
// configured. The numeric estimate never depends on it.
const FallbackMessage = "Automated insights are unavailable for this claim right now; the likelihood estimate above is unaffected."

// policyExcerptCap bounds how much extracted policy text goes into the
// prompt, to keep token usage flat regardless of document size.
const policyExcerptCap = 3000

// Provider generates the narrative explanation for a claim.
type Provider interface {
	// Name returns the provider name
	Name() string

	// Synthesize produces a 3-4 sentence narrative for the claim
	Synthesize(ctx context.Context, req Request) (*Response, error)

	// IsAvailable checks if the provider is properly configured and reachable
	IsAvailable(ctx context.Context) bool
}

// Request is the full claim context handed to the provider.
type Request struct {
	// ClaimSummary is the structured text rendering of the normalized form
	ClaimSummary string

	// PolicyExcerpt is extracted policy text, possibly empty
	PolicyExcerpt string

	// Score is the predictor's 0-100 estimate if it ran before synthesis
	Score *float64
}

// Response is the provider output.
type Response struct {
	Text       string
	Model      string
	TokensUsed int
}

// RenderClaimSummary flattens the normalized vector and incident description
// into the structured text block the prompt embeds. All values are already
// coerced; nothing raw from the form reaches the prompt.
func RenderClaimSummary(v features.Vector, description string) string {
	yn := func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Incident type: %s\n", v.IncidentType)
	fmt.Fprintf(&b, "Time of day: %s; road condition: %s\n", v.TimeOfDay, v.RoadCondition)
	fmt.Fprintf(&b, "Driver age: %d; vehicle age: %d years; engine: %d cc; market value: %.0f\n",
		v.DriverAge, v.VehicleAge, v.EngineCapacityCC, v.MarketValue)
	fmt.Fprintf(&b, "Police report: %s (within 24h: %s); witnesses: %s\n",
		yn(v.PoliceReport), yn(v.FiledWithin24h), yn(v.Witnesses))
	fmt.Fprintf(&b, "Third-party vehicle: %s; injuries: %s; traffic violation: %s\n",
		yn(v.ThirdPartyVehicle), yn(v.Injuries), yn(v.TrafficViolation))
	fmt.Fprintf(&b, "Previous claims: %d\n", v.PreviousClaims)
	fmt.Fprintf(&b, "Evidence images: %d (visible damage detected: %s)\n", v.EvidenceCount, yn(v.VisualDamage))
	if strings.TrimSpace(description) != "" {
		fmt.Fprintf(&b, "Claimant description: %s\n", strings.TrimSpace(description))
	}
	return b.String()
}

// BuildPrompt combines the fixed instructional preamble with the claim
// summary and, when present, a bounded policy excerpt.
func BuildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("You are an insurance claims analyst. Based on the motor claim below, ")
	b.WriteString("write a 3-4 sentence assessment covering: likely coverage under a standard ")
	b.WriteString("motor policy, the most critical next actions for the claimant, and any risk ")
	b.WriteString("factors that could weaken the claim. Be concrete and avoid hedging boilerplate. ")
	b.WriteString("Do not state a final approval decision; this is an early estimate.\n\n")

	b.WriteString("Claim details:\n")
	b.WriteString(req.ClaimSummary)

	if req.Score != nil {
		fmt.Fprintf(&b, "\nModel-estimated success likelihood: %.0f/100\n", *req.Score)
	}

	if excerpt := strings.TrimSpace(req.PolicyExcerpt); excerpt != "" {
		b.WriteString("\nPolicy document excerpt (first ~3k chars):\n")
		if len(excerpt) > policyExcerptCap {
			b.WriteString(excerpt[:policyExcerptCap])
		} else {
			b.WriteString(excerpt)
		}
		b.WriteString("\n")
	}

	return b.String()
}
