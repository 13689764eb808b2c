package flow

import (
	"errors"
	"fmt"

	"github.com/BTreeMap/SleepAdvisor/internal/models"
)

// BuildRequest formats collected answers into the predictor request.
// Missing answers default to zero so the sanity check can reject them.
func BuildRequest(a models.Answers) models.PredictionRequest {
	return models.PredictionRequest{
		Age:                 a.Get(models.FieldAge, 0),
		Gender:              int(a.Get(models.FieldGender, 0)),
		SleepDuration:       a.Get(models.FieldSleepDuration, 0),
		Awakenings:          a.Get(models.FieldAwakenings, 0),
		CaffeineConsumption: a.Get(models.FieldCaffeineConsumption, 0),
		AlcoholConsumption:  a.Get(models.FieldAlcoholConsumption, 0),
		SmokingStatus:       int(a.Get(models.FieldSmokingStatus, 0)),
		ExerciseFrequency:   a.Get(models.FieldExerciseFrequency, 0),
		BedHour:             int(a.Get(models.FieldBedHour, 0)),
		WakeHour:            int(a.Get(models.FieldWakeHour, 0)),
	}
}

type bound struct {
	field    models.FieldKey
	value    float64
	min, max float64
	openMin  bool // min itself is not allowed
	openMax  bool
}

func (b bound) ok() bool {
	if b.openMin && b.value <= b.min || !b.openMin && b.value < b.min {
		return false
	}
	if b.openMax && b.value >= b.max || !b.openMax && b.value > b.max {
		return false
	}
	return true
}

// ValidateRequest performs the whole-record range check before a predictor call.
// Every violated field is reported as a *models.FieldError wrapping models.ErrValidation.
func ValidateRequest(r models.PredictionRequest) error {
	bounds := []bound{
		{field: models.FieldAge, value: r.Age, min: 0, max: 120, openMin: true, openMax: true},
		{field: models.FieldSleepDuration, value: r.SleepDuration, min: 0, max: 24},
		{field: models.FieldAwakenings, value: r.Awakenings, min: 0, max: 20},
		{field: models.FieldCaffeineConsumption, value: r.CaffeineConsumption, min: 0, max: 200},
		{field: models.FieldAlcoholConsumption, value: r.AlcoholConsumption, min: 0, max: 50},
		{field: models.FieldExerciseFrequency, value: r.ExerciseFrequency, min: 0, max: 14},
		{field: models.FieldBedHour, value: float64(r.BedHour), min: 0, max: 12, openMin: true},
		{field: models.FieldWakeHour, value: float64(r.WakeHour), min: 0, max: 12, openMin: true},
		{field: models.FieldGender, value: float64(r.Gender), min: 0, max: 1},
		{field: models.FieldSmokingStatus, value: float64(r.SmokingStatus), min: 0, max: 1},
	}
	var errs []error
	for _, b := range bounds {
		if !b.ok() {
			errs = append(errs, &models.FieldError{
				Field: b.field,
				Err:   fmt.Errorf("%w: %v", models.ErrValidation, b.value),
			})
		}
	}
	return errors.Join(errs...)
}
