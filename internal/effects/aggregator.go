// File: internal/effects/aggregator.go
package effects

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/skilltree/api/schemas"
	"github.com/xkilldash9x/skilltree/internal/condition"
)

// ErrUnknownBonus is returned by GetBonus for names outside the bonus record.
var ErrUnknownBonus = errors.New("unknown bonus")

// Aggregator owns the active effect set of a session and a cache of the
// unconditional bonus record, invalidated on every change.
type Aggregator struct {
	mu       sync.RWMutex
	registry *Registry
	logger   *zap.Logger

	active []compiled
	cache  *schemas.CalculatedBonuses
}

// Snapshot is an opaque copy of the active set, used to undo a failed
// transaction.
type Snapshot struct {
	active []compiled
}

// NewAggregator creates an aggregator over registry. A nil registry means
// DefaultRegistry.
func NewAggregator(registry *Registry, logger *zap.Logger) *Aggregator {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		registry: registry,
		logger:   logger.Named("effects"),
	}
}

// Activate registers the effects of skill. Activating a skill twice
// replaces its previous effects rather than stacking them.
func (a *Aggregator) Activate(skill schemas.SkillNode) {
	effects := EffectsOf(skill)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.removeLocked(skill.ID)
	for _, e := range effects {
		a.active = append(a.active, compile(e, a.registry, a.logger))
	}
	a.cache = nil
	a.logger.Debug("Activated skill effects.",
		zap.String("skill_id", skill.ID),
		zap.Int("effects", len(effects)))
}

// Deactivate drops every effect contributed by skillID. It reports whether
// anything was removed.
func (a *Aggregator) Deactivate(skillID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	removed := a.removeLocked(skillID)
	if removed {
		a.cache = nil
	}
	return removed
}

func (a *Aggregator) removeLocked(skillID string) bool {
	kept := a.active[:0]
	for _, c := range a.active {
		if c.effect.SkillID != skillID {
			kept = append(kept, c)
		}
	}
	removed := len(kept) != len(a.active)
	// Clear the tail so dropped entries can be collected.
	for i := len(kept); i < len(a.active); i++ {
		a.active[i] = compiled{}
	}
	a.active = kept
	return removed
}

// Reset drops all active effects, as at the start of a new run.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = nil
	a.cache = nil
}

// Active returns a copy of the active effects in activation order.
func (a *Aggregator) Active() []schemas.ActiveEffect {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]schemas.ActiveEffect, 0, len(a.active))
	for _, c := range a.active {
		out = append(out, c.effect)
	}
	return out
}

// IsActive reports whether skillID currently contributes any effect.
func (a *Aggregator) IsActive(skillID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, c := range a.active {
		if c.effect.SkillID == skillID {
			return true
		}
	}
	return false
}

// Snapshot captures the active set.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Snapshot{active: append([]compiled(nil), a.active...)}
}

// Restore replaces the active set with a snapshot.
func (a *Aggregator) Restore(s Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = append([]compiled(nil), s.active...)
	a.cache = nil
}

// GetAllBonuses returns the bonus record with no runtime context, so
// conditional effects are excluded. The record is cached until the active
// set changes; callers get their own copy.
func (a *Aggregator) GetAllBonuses() schemas.CalculatedBonuses {
	a.mu.RLock()
	if a.cache != nil {
		out := a.cache.Clone()
		a.mu.RUnlock()
		return out
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cache == nil {
		b := fold(a.active, nil)
		a.cache = &b
	}
	return a.cache.Clone()
}

// BonusesFor resolves the bonus record for a specific runtime context.
func (a *Aggregator) BonusesFor(ctx condition.Context) schemas.CalculatedBonuses {
	if ctx == nil {
		return a.GetAllBonuses()
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return fold(a.active, ctx)
}

// GetBonus is the read API for gameplay systems. It returns a float64 for
// numeric bonuses and a bool for recallSimilarQuestions. Extended effect
// types are addressed by their tag and read their neutral value when no
// effect of that type is active.
func (a *Aggregator) GetBonus(name string, ctx condition.Context) (any, error) {
	b := a.BonusesFor(ctx)

	switch name {
	case schemas.BonusInsightGain:
		return b.InsightGain, nil
	case schemas.BonusInsightGainFlat:
		return b.InsightGainFlat, nil
	case schemas.BonusPatientOutcome:
		return b.PatientOutcome, nil
	case schemas.BonusEquipmentCost:
		return b.EquipmentCost, nil
	case schemas.BonusCriticalInsight:
		return b.CriticalInsight, nil
	case schemas.BonusRevealParameters:
		return b.RevealParameters, nil
	case schemas.BonusAutoSolveChance:
		return b.AutoSolveChance, nil
	case schemas.BonusFailureConversion:
		return b.FailureConversion, nil
	case schemas.BonusRecallSimilarQuestions:
		return b.RecallSimilarQuestions, nil
	}

	t := schemas.EffectType(name)
	if v, ok := b.Extras[t]; ok {
		return v, nil
	}
	if h, ok := a.registry.Lookup(t); ok {
		var neutral schemas.CalculatedBonuses
		h.Apply(&neutral, h.Resolve(nil))
		if v, ok := neutral.Extras[t]; ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBonus, name)
}
