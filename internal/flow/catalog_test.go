package flow

import (
	"testing"

	"github.com/BTreeMap/SleepAdvisor/internal/models"
)

func TestDefaultCatalogOrder(t *testing.T) {
	want := []models.FieldKey{
		models.FieldAge, models.FieldGender, models.FieldSleepDuration, models.FieldAwakenings,
		models.FieldCaffeineConsumption, models.FieldAlcoholConsumption, models.FieldSmokingStatus,
		models.FieldExerciseFrequency, models.FieldBedHour, models.FieldWakeHour,
	}
	got := DefaultCatalog().Keys()
	if len(got) != len(want) {
		t.Fatalf("expected %d questions, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRenderGenderDependsOnAge(t *testing.T) {
	c := DefaultCatalog()
	young, err := c.Render(1, models.Answers{models.FieldAge: 16})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if young.Choices[0].Label != "Girl" || young.Choices[1].Label != "Boy" {
		t.Errorf("unexpected youth choices: %+v", young.Choices)
	}
	adult, _ := c.Render(1, models.Answers{models.FieldAge: 40})
	if adult.Choices[0].Label != "Woman" || adult.Choices[1].Data != "Gender:1" {
		t.Errorf("unexpected adult choices: %+v", adult.Choices)
	}
	missing, _ := c.Render(1, models.Answers{})
	if missing.Choices[0].Label != "Woman" {
		t.Errorf("expected adult wording without age, got %+v", missing.Choices)
	}
}

func TestRenderOutOfRange(t *testing.T) {
	c := DefaultCatalog()
	if _, err := c.Render(-1, nil); err == nil {
		t.Error("expected error for negative step")
	}
	if _, err := c.Render(c.Len(), nil); err == nil {
		t.Error("expected error past the last step")
	}
}

func TestMatchChoice(t *testing.T) {
	choices := []models.Choice{{Label: "🚭 No", Data: "Smoking_status:0"}, {Label: "🚬 Yes", Data: "Smoking_status:1"}}
	for in, want := range map[string]string{"1": "Smoking_status:0", "2": "Smoking_status:1", "yes": "Smoking_status:1", " NO ": "Smoking_status:0"} {
		c, ok := matchChoice(in, choices)
		if !ok || c.Data != want {
			t.Errorf("matchChoice(%q) = %v, %v; want %s", in, c, ok, want)
		}
	}
	for _, in := range []string{"3", "maybe", "", "🚬"} {
		if _, ok := matchChoice(in, choices); ok {
			t.Errorf("matchChoice(%q) unexpectedly matched", in)
		}
	}
}
