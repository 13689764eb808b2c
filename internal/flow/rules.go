package flow

import (
	"math"

	"github.com/BTreeMap/SleepAdvisor/internal/models"
)

// Verdict is the decision of a field rule.
type Verdict int

const (
	// VerdictAccept commits Outcome.Value and advances.
	VerdictAccept Verdict = iota
	// VerdictReject keeps the step and asks again.
	VerdictReject
	// VerdictConfirm parks the value until the user confirms it.
	VerdictConfirm
)

// Rule limits.
const (
	maxExerciseDays     = 7
	caffeineMgPerCup    = 25
	maxCaffeineMg       = 125
	alcoholWarnLevel    = 10
	maxAwakenings       = 10
	maxSleepHours       = 24
	longLiverAge        = 100
	maxPlausibleAge     = 120
	negativeAgeAttempts = 3
	forcedAge           = 20
)

// Outcome is the result of applying a field rule to a parsed value.
type Outcome struct {
	Verdict Verdict
	Value   float64
	// Note is sent to the user before anything else, may be empty.
	Note string
}

// ApplyRule validates and corrects a parsed value for field.
// rejected is the number of earlier rejected submissions for this field in the session.
func ApplyRule(field models.FieldKey, value float64, rejected int) Outcome {
	switch field {
	case models.FieldExerciseFrequency:
		if value < 0 {
			return Outcome{Verdict: VerdictAccept, Value: 0, Note: msgNoExercise}
		}
		if value > maxExerciseDays {
			return Outcome{Verdict: VerdictReject, Value: value, Note: msgTooManyDays}
		}
	case models.FieldCaffeineConsumption:
		note := ""
		if value < 0 {
			value = 0
			note = msgNoCoffee
		}
		return Outcome{Verdict: VerdictAccept, Value: math.Min(value*caffeineMgPerCup, maxCaffeineMg), Note: note}
	case models.FieldAlcoholConsumption:
		if value < 0 {
			return Outcome{Verdict: VerdictAccept, Value: 0, Note: msgNoAlcohol}
		}
		if value > alcoholWarnLevel {
			return Outcome{Verdict: VerdictAccept, Value: value, Note: msgHeavyDrinking}
		}
	case models.FieldAwakenings:
		if value > maxAwakenings {
			return Outcome{Verdict: VerdictReject, Value: value, Note: msgTooManyAwakenings}
		}
	case models.FieldSleepDuration:
		if value > maxSleepHours {
			return Outcome{Verdict: VerdictReject, Value: value, Note: msgTooMuchSleep}
		}
	case models.FieldAge:
		return ageRule(value, rejected)
	}
	return Outcome{Verdict: VerdictAccept, Value: value}
}

func ageRule(value float64, rejected int) Outcome {
	switch {
	case value < 0:
		switch attempt := rejected + 1; {
		case attempt == 1:
			return Outcome{Verdict: VerdictReject, Value: value, Note: msgNegativeAge1}
		case attempt < negativeAgeAttempts:
			return Outcome{Verdict: VerdictReject, Value: value, Note: msgNegativeAge2}
		default:
			return Outcome{Verdict: VerdictAccept, Value: forcedAge, Note: msgNegativeAgeForced}
		}
	case value > maxPlausibleAge:
		return Outcome{Verdict: VerdictConfirm, Value: value}
	case value >= longLiverAge:
		return Outcome{Verdict: VerdictAccept, Value: value, Note: msgLongLiver}
	}
	return Outcome{Verdict: VerdictAccept, Value: value}
}
