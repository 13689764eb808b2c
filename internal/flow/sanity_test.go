package flow

import (
	"errors"
	"testing"

	"github.com/BTreeMap/SleepAdvisor/internal/models"
)

func validAnswers() models.Answers {
	return models.Answers{
		models.FieldAge:                 30,
		models.FieldGender:              1,
		models.FieldSleepDuration:       7,
		models.FieldAwakenings:          1,
		models.FieldCaffeineConsumption: 50,
		models.FieldAlcoholConsumption:  0,
		models.FieldSmokingStatus:       0,
		models.FieldExerciseFrequency:   3,
		models.FieldBedHour:             11,
		models.FieldWakeHour:            7,
	}
}

func TestBuildRequest(t *testing.T) {
	req := BuildRequest(validAnswers())
	if req.Age != 30 || req.Gender != 1 || req.CaffeineConsumption != 50 || req.BedHour != 11 || req.WakeHour != 7 {
		t.Errorf("unexpected request: %+v", req)
	}
	if err := ValidateRequest(req); err != nil {
		t.Errorf("expected valid request, got %v", err)
	}
}

func TestValidateRequestReportsEveryField(t *testing.T) {
	a := validAnswers()
	a[models.FieldAge] = 130
	a[models.FieldBedHour] = 0
	err := ValidateRequest(BuildRequest(a))
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	fields := map[models.FieldKey]bool{}
	for _, e := range err.(interface{ Unwrap() []error }).Unwrap() {
		var fe *models.FieldError
		if errors.As(e, &fe) {
			fields[fe.Field] = true
		}
	}
	if !fields[models.FieldAge] || !fields[models.FieldBedHour] || len(fields) != 2 {
		t.Errorf("expected Age and bed_hour violations, got %v", fields)
	}
}

func TestValidateRequestBoundaries(t *testing.T) {
	tests := []struct {
		field models.FieldKey
		value float64
		ok    bool
	}{
		{models.FieldAge, 0, false},
		{models.FieldAge, 120, false},
		{models.FieldAge, 119, true},
		{models.FieldSleepDuration, 24, true},
		{models.FieldSleepDuration, 0, true},
		{models.FieldAwakenings, 21, false},
		{models.FieldCaffeineConsumption, 200, true},
		{models.FieldAlcoholConsumption, 51, false},
		{models.FieldExerciseFrequency, 14, true},
		{models.FieldWakeHour, 12, true},
		{models.FieldWakeHour, 0, false},
		{models.FieldSmokingStatus, 2, false},
	}
	for _, tt := range tests {
		a := validAnswers()
		a[tt.field] = tt.value
		err := ValidateRequest(BuildRequest(a))
		if (err == nil) != tt.ok {
			t.Errorf("%s=%v: ok=%v, err=%v", tt.field, tt.value, tt.ok, err)
		}
	}
}

func TestValidateRequestMissingAnswers(t *testing.T) {
	if err := ValidateRequest(BuildRequest(models.Answers{})); err == nil {
		t.Error("expected empty answers to fail validation")
	}
}
