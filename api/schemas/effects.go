package schemas

import (
	"fmt"
	"strconv"
)

// EffectType is a tag from the closed effect taxonomy. Trees may carry tags
// this build does not know about; the aggregator skips those with a warning.
type EffectType string

// Core effect types. These feed CalculatedBonuses directly.
const (
	EffectInsightGainFlat          EffectType = "insight_gain_flat"
	EffectInsightGainMultiplier    EffectType = "insight_gain_multiplier"
	EffectPatientOutcomeMultiplier EffectType = "patient_outcome_multiplier"
	EffectEquipmentCostReduction   EffectType = "equipment_cost_reduction"
	EffectCriticalInsightMult      EffectType = "critical_insight_multiplier"
	EffectRevealParameter          EffectType = "reveal_parameter"
	EffectAutoSolveChance          EffectType = "auto_solve_chance"
	EffectFailureConversion        EffectType = "failure_conversion"
	EffectRecallSimilarQuestions   EffectType = "recall_similar_questions"
)

// Extended effect types. They aggregate into CalculatedBonuses.Extras.
const (
	EffectReputationGainMultiplier EffectType = "reputation_gain_multiplier"
	EffectReputationGainFlat       EffectType = "reputation_gain_flat"
	EffectSkillPointGainFlat       EffectType = "skill_point_gain_flat"
	EffectMaxHealthFlat            EffectType = "max_health_flat"
	EffectHealthRegenFlat          EffectType = "health_regen_flat"
	EffectTimeLimitExtension       EffectType = "time_limit_extension"
	EffectHintChance               EffectType = "hint_chance"
	EffectQuestionSkipCharges      EffectType = "question_skip_charges"
	EffectShopDiscount             EffectType = "shop_discount"
	EffectRareItemChance           EffectType = "rare_item_chance"
	EffectRestHealMultiplier       EffectType = "rest_heal_multiplier"
	EffectBossDamageMultiplier     EffectType = "boss_damage_multiplier"
	EffectStreakBonusMultiplier    EffectType = "streak_bonus_multiplier"
	EffectPartialCredit            EffectType = "partial_credit"
	EffectMistakeForgiveness       EffectType = "mistake_forgiveness"
	EffectDoseCalculationPrecision EffectType = "dose_calculation_precision"
	EffectQACheckSpeed             EffectType = "qa_check_speed"
	EffectTreatmentPlanningBonus   EffectType = "treatment_planning_bonus"
	EffectRadiationSafetyBonus     EffectType = "radiation_safety_bonus"
	EffectImagingInsightMultiplier EffectType = "imaging_insight_multiplier"
)

// KnownEffectTypes lists every tag in the taxonomy, core types first.
var KnownEffectTypes = []EffectType{
	EffectInsightGainFlat,
	EffectInsightGainMultiplier,
	EffectPatientOutcomeMultiplier,
	EffectEquipmentCostReduction,
	EffectCriticalInsightMult,
	EffectRevealParameter,
	EffectAutoSolveChance,
	EffectFailureConversion,
	EffectRecallSimilarQuestions,
	EffectReputationGainMultiplier,
	EffectReputationGainFlat,
	EffectSkillPointGainFlat,
	EffectMaxHealthFlat,
	EffectHealthRegenFlat,
	EffectTimeLimitExtension,
	EffectHintChance,
	EffectQuestionSkipCharges,
	EffectShopDiscount,
	EffectRareItemChance,
	EffectRestHealMultiplier,
	EffectBossDamageMultiplier,
	EffectStreakBonusMultiplier,
	EffectPartialCredit,
	EffectMistakeForgiveness,
	EffectDoseCalculationPrecision,
	EffectQACheckSpeed,
	EffectTreatmentPlanningBonus,
	EffectRadiationSafetyBonus,
	EffectImagingInsightMultiplier,
}

// IsKnown reports whether t belongs to the taxonomy.
func (t EffectType) IsKnown() bool {
	for _, k := range KnownEffectTypes {
		if k == t {
			return true
		}
	}
	return false
}

// EffectValue is either a number or a boolean, depending on the effect type.
// The JSON form is a bare number or a bare boolean.
type EffectValue struct {
	num    float64
	b      bool
	isBool bool
}

// Number builds a numeric effect value.
func Number(v float64) EffectValue { return EffectValue{num: v} }

// Bool builds a boolean effect value.
func Bool(v bool) EffectValue { return EffectValue{b: v, isBool: true} }

// IsBool reports whether the value was authored as a boolean.
func (v EffectValue) IsBool() bool { return v.isBool }

// Float returns the numeric value. Booleans read as 1 or 0.
func (v EffectValue) Float() float64 {
	if v.isBool {
		if v.b {
			return 1
		}
		return 0
	}
	return v.num
}

// Truthy returns the boolean value. Numbers are true when non-zero.
func (v EffectValue) Truthy() bool {
	if v.isBool {
		return v.b
	}
	return v.num != 0
}

func (v EffectValue) String() string {
	if v.isBool {
		return strconv.FormatBool(v.b)
	}
	return strconv.FormatFloat(v.num, 'g', -1, 64)
}

// MarshalJSON implements json.Marshaler.
func (v EffectValue) MarshalJSON() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *EffectValue) UnmarshalJSON(data []byte) error {
	s := string(data)
	switch s {
	case "true", "false":
		*v = Bool(s == "true")
		return nil
	case "null":
		*v = EffectValue{}
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("effect value must be a number or boolean, got %s", s)
	}
	*v = Number(f)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (v EffectValue) MarshalYAML() (interface{}, error) {
	if v.isBool {
		return v.b, nil
	}
	return v.num, nil
}

// Effect is a gameplay modifier attached to a node.
type Effect struct {
	Type      EffectType  `json:"type" yaml:"type"`
	Value     EffectValue `json:"value" yaml:"value"`
	Condition string      `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// ActiveEffect is an effect instance currently contributing to aggregated
// bonuses. It is created when its skill is unlocked and dropped on
// deactivation or a full reset.
type ActiveEffect struct {
	SkillID   string      `json:"skill_id"`
	SkillName string      `json:"skill_name"`
	Type      EffectType  `json:"type"`
	Value     EffectValue `json:"value"`
	Condition string      `json:"condition,omitempty"`
}
