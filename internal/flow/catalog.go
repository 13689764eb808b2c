package flow

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/BTreeMap/SleepAdvisor/internal/models"
)

// youthAgeLimit is the highest age that gets youth-oriented gender wording.
const youthAgeLimit = 18

// defaultCatalogAge is assumed for gender wording when Age is missing.
const defaultCatalogAge = 20

// Catalog is the ordered, immutable list of questions.
type Catalog []models.Question

// DefaultCatalog returns the interview order used by the bot.
func DefaultCatalog() Catalog {
	return Catalog{
		{Key: models.FieldAge, Prompt: "How old are you?", Kind: models.InputNumericText},
		{Key: models.FieldGender, Prompt: "What is your gender?", Kind: models.InputSingleChoice},
		{Key: models.FieldSleepDuration, Prompt: "How many hours do you usually sleep?", Kind: models.InputNumericText},
		{Key: models.FieldAwakenings, Prompt: "How many times do you wake up during the night?", Kind: models.InputNumericText},
		{Key: models.FieldCaffeineConsumption, Prompt: "How many cups of coffee do you drink per day?", Kind: models.InputNumericText},
		{Key: models.FieldAlcoholConsumption, Prompt: "How many alcoholic drinks do you have per week?", Kind: models.InputNumericText},
		{Key: models.FieldSmokingStatus, Prompt: "Do you smoke?", Kind: models.InputSingleChoice},
		{Key: models.FieldExerciseFrequency, Prompt: "How many days a week do you exercise?", Kind: models.InputNumericText},
		{Key: models.FieldBedHour, Prompt: "What time do you usually go to bed? (e.g. 23:30)", Kind: models.InputNumericText},
		{Key: models.FieldWakeHour, Prompt: "What time do you usually wake up? (e.g. 7:00)", Kind: models.InputNumericText},
	}
}

// Len returns the number of questions.
func (c Catalog) Len() int { return len(c) }

// Keys returns the field keys in interview order.
func (c Catalog) Keys() []models.FieldKey {
	keys := make([]models.FieldKey, len(c))
	for i, q := range c {
		keys[i] = q.Key
	}
	return keys
}

// RenderedQuestion is a question ready to be sent to a user.
type RenderedQuestion struct {
	Key     models.FieldKey
	Prompt  string
	Kind    models.InputKind
	Choices []models.Choice
}

// Render produces the prompt and options for step given the answers so far.
// Gender wording depends on the recorded age.
func (c Catalog) Render(step int, answers models.Answers) (RenderedQuestion, error) {
	if step < 0 || step >= len(c) {
		return RenderedQuestion{}, fmt.Errorf("step %d out of range [0,%d)", step, len(c))
	}
	q := c[step]
	rq := RenderedQuestion{Key: q.Key, Prompt: q.Prompt, Kind: q.Kind}
	if q.Kind == models.InputSingleChoice {
		rq.Choices = choicesFor(q.Key, answers)
	}
	return rq, nil
}

func choicesFor(key models.FieldKey, answers models.Answers) []models.Choice {
	switch key {
	case models.FieldGender:
		if answers.Get(models.FieldAge, defaultCatalogAge) <= youthAgeLimit {
			return []models.Choice{choice(key, "Girl", 0), choice(key, "Boy", 1)}
		}
		return []models.Choice{choice(key, "Woman", 0), choice(key, "Man", 1)}
	case models.FieldSmokingStatus:
		return []models.Choice{choice(key, "🚭 No", 0), choice(key, "🚬 Yes", 1)}
	default:
		return nil
	}
}

func choice(key models.FieldKey, label string, value int) models.Choice {
	return models.Choice{Label: label, Data: fmt.Sprintf("%s:%d", key, value)}
}

// matchChoice resolves a typed reply against the offered options by
// 1-based number or by label, ignoring case and symbols.
func matchChoice(text string, choices []models.Choice) (models.Choice, bool) {
	t := strings.TrimSpace(text)
	for i, c := range choices {
		if t == fmt.Sprint(i+1) {
			return c, true
		}
	}
	want := letters(t)
	if want == "" {
		return models.Choice{}, false
	}
	for _, c := range choices {
		if letters(c.Label) == want {
			return c, true
		}
	}
	return models.Choice{}, false
}

func letters(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
