package schemas

// Bonus names accepted by the aggregator's GetBonus. Gameplay code reads
// bonuses only through that call, never through CalculatedBonuses fields.
const (
	BonusInsightGain            = "insightGain"
	BonusInsightGainFlat        = "insightGainFlat"
	BonusPatientOutcome         = "patientOutcome"
	BonusEquipmentCost          = "equipmentCost"
	BonusCriticalInsight        = "criticalInsight"
	BonusRevealParameters       = "revealParameters"
	BonusAutoSolveChance        = "autoSolveChance"
	BonusFailureConversion      = "failureConversion"
	BonusRecallSimilarQuestions = "recallSimilarQuestions"
)

// CalculatedBonuses is the resolved bonus record. It is recomputed in full
// whenever the active effect set changes.
type CalculatedBonuses struct {
	InsightGain            float64 `json:"insightGain"`
	InsightGainFlat        float64 `json:"insightGainFlat"`
	PatientOutcome         float64 `json:"patientOutcome"`
	EquipmentCost          float64 `json:"equipmentCost"`
	CriticalInsight        float64 `json:"criticalInsight"`
	RevealParameters       float64 `json:"revealParameters"`
	AutoSolveChance        float64 `json:"autoSolveChance"`
	FailureConversion      float64 `json:"failureConversion"`
	RecallSimilarQuestions bool    `json:"recallSimilarQuestions"`

	// Extras carries the extended effect types, keyed by effect type tag.
	Extras map[EffectType]float64 `json:"extras,omitempty"`
}

// DefaultBonuses returns the record produced by an empty effect set.
func DefaultBonuses() CalculatedBonuses {
	return CalculatedBonuses{
		InsightGain:     1.0,
		PatientOutcome:  1.0,
		EquipmentCost:   1.0,
		CriticalInsight: 1.0,
		Extras:          map[EffectType]float64{},
	}
}

// Clone returns a copy with its own Extras map.
func (b CalculatedBonuses) Clone() CalculatedBonuses {
	out := b
	out.Extras = make(map[EffectType]float64, len(b.Extras))
	for k, v := range b.Extras {
		out.Extras[k] = v
	}
	return out
}
