// File: internal/effects/aggregate.go
package effects

import (
	"math"

	"go.uber.org/zap"

	"github.com/xkilldash9x/skilltree/api/schemas"
	"github.com/xkilldash9x/skilltree/internal/condition"
)

// compiled is an active effect with its condition parsed and its handler
// resolved. A nil handler marks an effect that never contributes.
type compiled struct {
	effect  schemas.ActiveEffect
	cond    condition.Expr
	handler *Handler
}

// compile resolves one active effect against the registry, logging the
// problems that keep it from contributing.
func compile(e schemas.ActiveEffect, registry *Registry, logger *zap.Logger) compiled {
	c := compiled{effect: e, cond: condition.Always{}}

	h, ok := registry.Lookup(e.Type)
	if !ok {
		logger.Warn("Ignoring effect of unknown type.",
			zap.String("skill_id", e.SkillID),
			zap.String("type", string(e.Type)))
		return c
	}
	if f := e.Value.Float(); math.IsNaN(f) || math.IsInf(f, 0) {
		logger.Warn("Ignoring effect with a non-finite value.",
			zap.String("skill_id", e.SkillID),
			zap.String("type", string(e.Type)))
		return c
	}

	expr, err := condition.Compile(e.Condition)
	if err != nil {
		logger.Warn("Effect condition is malformed and will never apply.",
			zap.String("skill_id", e.SkillID),
			zap.String("type", string(e.Type)),
			zap.String("condition", e.Condition),
			zap.Error(err))
	}
	c.cond = expr
	c.handler = &h
	return c
}

func compileAll(active []schemas.ActiveEffect, registry *Registry, logger *zap.Logger) []compiled {
	out := make([]compiled, 0, len(active))
	for _, e := range active {
		out = append(out, compile(e, registry, logger))
	}
	return out
}

// fold groups the contributing values by type and applies each handler once.
func fold(effects []compiled, ctx condition.Context) schemas.CalculatedBonuses {
	bonuses := schemas.DefaultBonuses()

	values := make(map[schemas.EffectType][]float64)
	handlers := make(map[schemas.EffectType]*Handler)
	var order []schemas.EffectType
	for _, c := range effects {
		if c.handler == nil || !c.cond.Eval(ctx) {
			continue
		}
		t := c.effect.Type
		if _, seen := handlers[t]; !seen {
			handlers[t] = c.handler
			order = append(order, t)
		}
		values[t] = append(values[t], c.effect.Value.Float())
	}

	for _, t := range order {
		h := handlers[t]
		h.Apply(&bonuses, h.Resolve(values[t]))
	}
	return bonuses
}

// Aggregate folds active effects into a bonus record. Effects whose
// condition does not hold against ctx are left out; a nil ctx excludes
// every conditional effect. The result does not depend on the order of
// active.
func Aggregate(active []schemas.ActiveEffect, ctx condition.Context, registry *Registry, logger *zap.Logger) schemas.CalculatedBonuses {
	if logger == nil {
		logger = zap.NewNop()
	}
	return fold(compileAll(active, registry, logger), ctx)
}

// EffectsOf derives the active effects contributed by a skill.
func EffectsOf(node schemas.SkillNode) []schemas.ActiveEffect {
	out := make([]schemas.ActiveEffect, 0, len(node.Effects))
	for _, e := range node.Effects {
		out = append(out, schemas.ActiveEffect{
			SkillID:   node.ID,
			SkillName: node.Name,
			Type:      e.Type,
			Value:     e.Value,
			Condition: e.Condition,
		})
	}
	return out
}
