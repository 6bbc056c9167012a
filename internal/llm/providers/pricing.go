package providers

// PricingTier is a provider/model's per-million-token rate card,
// generalizing the teacher's internal/usage.Cost (Input/Output/CacheRead
// rates) with a large-context break point (spec §4.3, §6): some models
// charge a second, higher rate once input tokens cross a threshold.
type PricingTier struct {
	StandardInputPerM  float64
	StandardOutputPerM float64
	LargeInputPerM     float64
	LargeOutputPerM    float64
	// LargeContextThreshold is the input-token count at or below which
	// the standard rate applies; one token above it is large-context.
	LargeContextThreshold int64
	// CacheHitDiscount is applied to cached input tokens, e.g. 0.9 for a
	// 90% discount (so cached tokens cost StandardInputPerM*(1-0.9)).
	CacheHitDiscount float64
}

// ContextWarning flags a request's proximity to a provider's
// large-context pricing threshold, per spec §4.3.
type ContextWarning string

const (
	ContextNone          ContextWarning = "none"
	ContextApproaching   ContextWarning = "approaching"   // >90%
	ContextNearThreshold ContextWarning = "near_threshold" // >95%
	ContextOverThreshold ContextWarning = "over_threshold" // >100%, large-context rate applies
)

// CostResult is one call's computed cost plus its context-threshold warning.
type CostResult struct {
	USD     float64
	Warning ContextWarning
}

// ComputeCost prices one call against a tier. The whole call uses one
// pair of rates: the standard rates while input tokens are at or below
// LargeContextThreshold, and the large-context rates for every input and
// output token once input exceeds it — spec §4.3/§6's invariant that the
// threshold itself still uses the standard tier and only the token past
// it trips the large-context rate. Cached input tokens are billed at the
// chosen input rate less the cache discount.
func ComputeCost(tier PricingTier, tokensIn, tokensOut, cachedTokens int64) CostResult {
	warning := contextWarning(tokensIn, tier.LargeContextThreshold)

	billableIn := tokensIn - cachedTokens
	if billableIn < 0 {
		billableIn = 0
	}

	inputRate, outputRate := tier.StandardInputPerM, tier.StandardOutputPerM
	if tier.LargeContextThreshold > 0 && tokensIn > tier.LargeContextThreshold {
		inputRate, outputRate = tier.LargeInputPerM, tier.LargeOutputPerM
	}

	usd := float64(billableIn)*inputRate/1_000_000 + float64(tokensOut)*outputRate/1_000_000
	if cachedTokens > 0 {
		usd += float64(cachedTokens) * inputRate * (1 - tier.CacheHitDiscount) / 1_000_000
	}

	return CostResult{USD: usd, Warning: warning}
}

func contextWarning(tokensIn, threshold int64) ContextWarning {
	if threshold <= 0 {
		return ContextNone
	}
	switch {
	case tokensIn > threshold:
		return ContextOverThreshold
	case float64(tokensIn) > float64(threshold)*0.95:
		return ContextNearThreshold
	case float64(tokensIn) > float64(threshold)*0.90:
		return ContextApproaching
	default:
		return ContextNone
	}
}

// Default pricing tiers, grounded on spec.md §6's illustrative constants
// and original_source/backend/src/llm/router/types.rs's per-tier cost
// comments; implementers may override per deployment.
var (
	PricingFast = PricingTier{
		StandardInputPerM: 0.25, StandardOutputPerM: 2.00,
		CacheHitDiscount: 0.9,
	}
	PricingVoice = PricingTier{
		StandardInputPerM: 1.25, StandardOutputPerM: 10.00,
		LargeInputPerM: 4.00, LargeOutputPerM: 18.00,
		LargeContextThreshold: 200_000,
		CacheHitDiscount:      0.9,
	}
	PricingCode = PricingVoice

	PricingAgentic = PricingTier{
		StandardInputPerM: 1.25, StandardOutputPerM: 10.00,
		LargeInputPerM: 4.00, LargeOutputPerM: 18.00,
		LargeContextThreshold: 200_000,
		CacheHitDiscount:      0.9,
	}
)
