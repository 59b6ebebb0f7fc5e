// File: internal/effects/registry.go
package effects

import (
	"math"
	"sort"

	"github.com/xkilldash9x/skilltree/api/schemas"
)

// Kind names the combination rule a handler applies to matching values.
type Kind string

const (
	// KindSum adds all values.
	KindSum Kind = "sum"
	// KindProduct multiplies all values onto Base.
	KindProduct Kind = "product"
	// KindReductionFloor subtracts the summed values from Base, never going below Limit.
	KindReductionFloor Kind = "reduction_floor"
	// KindMax keeps the largest value, or Base when that is larger.
	KindMax Kind = "max"
	// KindCappedSum adds all values, never exceeding Limit.
	KindCappedSum Kind = "capped_sum"
	// KindOr is true when any value is truthy.
	KindOr Kind = "or"
)

// Applier writes a resolved value into the bonus record.
type Applier func(b *schemas.CalculatedBonuses, value float64)

// Handler is the strategy for one effect type.
type Handler struct {
	Kind  Kind
	Base  float64
	Limit float64
	Apply Applier
}

// Resolve folds values with the handler's rule. Values are sorted first so
// the floating point result does not depend on activation order.
func (h Handler) Resolve(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	switch h.Kind {
	case KindProduct:
		acc := h.Base
		for _, v := range sorted {
			acc *= v
		}
		return acc
	case KindReductionFloor:
		var sum float64
		for _, v := range sorted {
			sum += v
		}
		return math.Max(h.Base-sum, h.Limit)
	case KindMax:
		acc := h.Base
		for _, v := range sorted {
			acc = math.Max(acc, v)
		}
		return acc
	case KindCappedSum:
		acc := h.Base
		for _, v := range sorted {
			acc += v
		}
		return math.Min(acc, h.Limit)
	case KindOr:
		for _, v := range sorted {
			if v != 0 {
				return 1
			}
		}
		return 0
	default:
		acc := h.Base
		for _, v := range sorted {
			acc += v
		}
		return acc
	}
}

// Registry maps effect type tags to handlers. It is built once at startup
// and read concurrently afterwards.
type Registry struct {
	handlers map[schemas.EffectType]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[schemas.EffectType]Handler)}
}

// Register binds a handler to an effect type, replacing any previous one.
func (r *Registry) Register(t schemas.EffectType, h Handler) {
	r.handlers[t] = h
}

// Lookup returns the handler for t.
func (r *Registry) Lookup(t schemas.EffectType) (Handler, bool) {
	h, ok := r.handlers[t]
	return h, ok
}

// Types returns the registered effect types, sorted.
func (r *Registry) Types() []schemas.EffectType {
	out := make([]schemas.EffectType, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// -- Default taxonomy --

const (
	equipmentCostFloor = 0.1
	autoSolveCap       = 0.8
	chanceCap          = 1.0
	shopDiscountCap    = 0.9
)

func extra(t schemas.EffectType) Applier {
	return func(b *schemas.CalculatedBonuses, v float64) {
		if b.Extras == nil {
			b.Extras = map[schemas.EffectType]float64{}
		}
		b.Extras[t] = v
	}
}

// DefaultRegistry returns the registry for the full effect taxonomy.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(schemas.EffectInsightGainFlat, Handler{Kind: KindSum,
		Apply: func(b *schemas.CalculatedBonuses, v float64) { b.InsightGainFlat = v }})
	r.Register(schemas.EffectRevealParameter, Handler{Kind: KindSum,
		Apply: func(b *schemas.CalculatedBonuses, v float64) { b.RevealParameters = v }})
	r.Register(schemas.EffectInsightGainMultiplier, Handler{Kind: KindProduct, Base: 1,
		Apply: func(b *schemas.CalculatedBonuses, v float64) { b.InsightGain = v }})
	r.Register(schemas.EffectPatientOutcomeMultiplier, Handler{Kind: KindProduct, Base: 1,
		Apply: func(b *schemas.CalculatedBonuses, v float64) { b.PatientOutcome = v }})
	r.Register(schemas.EffectEquipmentCostReduction, Handler{Kind: KindReductionFloor, Base: 1, Limit: equipmentCostFloor,
		Apply: func(b *schemas.CalculatedBonuses, v float64) { b.EquipmentCost = v }})
	r.Register(schemas.EffectCriticalInsightMult, Handler{Kind: KindMax, Base: 1,
		Apply: func(b *schemas.CalculatedBonuses, v float64) { b.CriticalInsight = v }})
	r.Register(schemas.EffectFailureConversion, Handler{Kind: KindMax,
		Apply: func(b *schemas.CalculatedBonuses, v float64) { b.FailureConversion = v }})
	r.Register(schemas.EffectAutoSolveChance, Handler{Kind: KindCappedSum, Limit: autoSolveCap,
		Apply: func(b *schemas.CalculatedBonuses, v float64) { b.AutoSolveChance = v }})
	r.Register(schemas.EffectRecallSimilarQuestions, Handler{Kind: KindOr,
		Apply: func(b *schemas.CalculatedBonuses, v float64) { b.RecallSimilarQuestions = v != 0 }})

	for _, t := range []schemas.EffectType{
		schemas.EffectReputationGainMultiplier,
		schemas.EffectRestHealMultiplier,
		schemas.EffectBossDamageMultiplier,
		schemas.EffectStreakBonusMultiplier,
		schemas.EffectImagingInsightMultiplier,
	} {
		r.Register(t, Handler{Kind: KindProduct, Base: 1, Apply: extra(t)})
	}
	for _, t := range []schemas.EffectType{
		schemas.EffectReputationGainFlat,
		schemas.EffectSkillPointGainFlat,
		schemas.EffectMaxHealthFlat,
		schemas.EffectHealthRegenFlat,
		schemas.EffectTimeLimitExtension,
		schemas.EffectQuestionSkipCharges,
		schemas.EffectMistakeForgiveness,
		schemas.EffectDoseCalculationPrecision,
		schemas.EffectQACheckSpeed,
		schemas.EffectTreatmentPlanningBonus,
		schemas.EffectRadiationSafetyBonus,
	} {
		r.Register(t, Handler{Kind: KindSum, Apply: extra(t)})
	}
	for _, t := range []schemas.EffectType{schemas.EffectHintChance, schemas.EffectRareItemChance} {
		r.Register(t, Handler{Kind: KindCappedSum, Limit: chanceCap, Apply: extra(t)})
	}
	r.Register(schemas.EffectShopDiscount, Handler{Kind: KindCappedSum, Limit: shopDiscountCap, Apply: extra(schemas.EffectShopDiscount)})
	r.Register(schemas.EffectPartialCredit, Handler{Kind: KindMax, Apply: extra(schemas.EffectPartialCredit)})

	return r
}
