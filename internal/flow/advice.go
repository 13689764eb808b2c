package flow

import (
	"strings"

	"github.com/BTreeMap/SleepAdvisor/internal/models"
)

// Advice lines. Tests match on them, keep them stable.
const (
	AdviceHeader         = "💡 *Personal recommendations:*"
	AdviceManyAwakenings = "• Try to reduce night awakenings: air the room or find a more comfortable pillow."
	AdviceNoAwakenings   = "• Great! You sleep without waking up. Keep this routine."
	AdviceAlcoholStrong  = "• Alcohol before bed lowers sleep quality. Avoid it for 3–4 hours before sleep."
	AdviceAlcoholMild    = "• Even moderate drinking can affect your sleep phases."
	AdviceNoExercise     = "• Add some light activity during the day, like a walk or stretching."
	AdviceOverExercise   = "• Training too often can cause overtraining. Add a rest day."
	AdviceSmoking        = "• Smoking reduces oxygen saturation and makes falling asleep harder. Try to cut down."
	AdviceShortSleep     = "• Try to sleep more than 6 hours. Lack of sleep hurts recovery and memory."
	AdviceLongSleep      = "• Sleeping too long can also signal fatigue or stress. The optimum is 7–9 hours."
	AdviceLateSchedule   = "• You go to bed late or get up very early. Try to sleep between 22:00 and 7:00."
	AdviceOlderAge       = "• Sleep gets lighter with age. Try relaxing evening rituals such as chamomile tea or meditation."

	ClosingBad    = "\n😴 Your sleep needs improvement. Try a few of the tips above."
	ClosingGood   = "\n🌙 You sleep well! Keep it up."
	ClosingMedium = "\n🌀 Your sleep is average and can be improved. Try a few of the tips above."
)

// lateBedHours are 12-hour bed times treated as after midnight.
var lateBedHours = map[int]bool{12: true, 1: true, 2: true, 3: true, 4: true}

// LabelText maps a predictor label to display text.
func LabelText(label int) string {
	switch label {
	case models.LabelBad:
		return "❌ Bad sleep"
	case models.LabelGood:
		return "✅ Good sleep"
	case models.LabelMedium:
		return "😐 Medium sleep"
	default:
		return "unknown"
	}
}

// GenerateAdvice builds the recommendation text for a completed answer set.
// Missing answers fall back to neutral defaults.
func GenerateAdvice(a models.Answers, label int) string {
	lines := []string{AdviceHeader}

	switch awakenings := a.Get(models.FieldAwakenings, 0); {
	case awakenings > 2:
		lines = append(lines, AdviceManyAwakenings)
	case awakenings == 0:
		lines = append(lines, AdviceNoAwakenings)
	}

	switch alcohol := a.Get(models.FieldAlcoholConsumption, 0); {
	case alcohol > 3:
		lines = append(lines, AdviceAlcoholStrong)
	case alcohol > 0:
		lines = append(lines, AdviceAlcoholMild)
	}

	switch exercise := a.Get(models.FieldExerciseFrequency, 0); {
	case exercise == 0:
		lines = append(lines, AdviceNoExercise)
	case exercise > 5:
		lines = append(lines, AdviceOverExercise)
	}

	if a.Get(models.FieldSmokingStatus, 0) == 1 {
		lines = append(lines, AdviceSmoking)
	}

	switch sleep := a.Get(models.FieldSleepDuration, 7); {
	case sleep < 6:
		lines = append(lines, AdviceShortSleep)
	case sleep > 9:
		lines = append(lines, AdviceLongSleep)
	}

	bed := a.Get(models.FieldBedHour, 23)
	wake := a.Get(models.FieldWakeHour, 7)
	if (bed == float64(int(bed)) && lateBedHours[int(bed)]) || wake < 5 {
		lines = append(lines, AdviceLateSchedule)
	}

	if a.Get(models.FieldAge, 25) > 60 {
		lines = append(lines, AdviceOlderAge)
	}

	switch label {
	case models.LabelBad:
		lines = append(lines, ClosingBad)
	case models.LabelGood:
		lines = append(lines, ClosingGood)
	case models.LabelMedium:
		lines = append(lines, ClosingMedium)
	}

	return strings.Join(lines, "\n")
}
