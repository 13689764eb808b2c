package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestPredictionRequestJSONKeys(t *testing.T) {
	req := PredictionRequest{Age: 30, Gender: 1, SleepDuration: 7, BedHour: 11, WakeHour: 7}
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	for _, key := range []string{`"Age"`, `"Gender"`, `"Sleep_duration"`, `"Awakenings"`, `"Caffeine_consumption"`,
		`"Alcohol_consumption"`, `"Smoking_status"`, `"Exercise_frequency"`, `"bed_hour"`, `"wake_hour"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("expected key %s in %s", key, data)
		}
	}
}

func TestPredictionResponseMissingLabel(t *testing.T) {
	var resp PredictionResponse
	if err := json.Unmarshal([]byte(`{"sleep_quality":"Good"}`), &resp); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if resp.Label != nil {
		t.Errorf("expected nil label, got %d", *resp.Label)
	}

	if err := json.Unmarshal([]byte(`{"sleep_quality_label":0}`), &resp); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if resp.Label == nil || *resp.Label != LabelBad {
		t.Errorf("expected label 0, got %v", resp.Label)
	}
}

func TestIsValidLabel(t *testing.T) {
	for _, l := range []int{LabelBad, LabelGood, LabelMedium} {
		if !IsValidLabel(l) {
			t.Errorf("expected %d to be valid", l)
		}
	}
	for _, l := range []int{-1, 3, 42} {
		if IsValidLabel(l) {
			t.Errorf("expected %d to be invalid", l)
		}
	}
}

func TestAnswersGet(t *testing.T) {
	a := Answers{FieldAge: 42}
	if got := a.Get(FieldAge, 20); got != 42 {
		t.Errorf("expected 42, got %v", got)
	}
	if got := a.Get(FieldSleepDuration, 7); got != 7 {
		t.Errorf("expected default 7, got %v", got)
	}
}

func TestNewSession(t *testing.T) {
	s := NewSession("u1")
	if s.UserID != "u1" || s.Step != 0 || s.Pending != nil {
		t.Errorf("unexpected fresh session: %+v", s)
	}
	if s.Answers == nil || s.Retries == nil {
		t.Error("expected maps to be initialised")
	}
	if s.CreatedAt.IsZero() {
		t.Error("expected creation time to be set")
	}
}

func TestIsHourField(t *testing.T) {
	if !FieldBedHour.IsHourField() || !FieldWakeHour.IsHourField() {
		t.Error("expected bed_hour and wake_hour to be hour fields")
	}
	if FieldAge.IsHourField() {
		t.Error("Age is not an hour field")
	}
}

func TestUpstreamStatusErrorUnwrap(t *testing.T) {
	var err error = &UpstreamStatusError{StatusCode: 502}
	if !errors.Is(err, ErrUpstreamStatus) {
		t.Error("expected errors.Is to match ErrUpstreamStatus")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("expected status in message, got %q", err.Error())
	}
}

func TestFieldErrorUnwrap(t *testing.T) {
	err := &FieldError{Field: FieldAge, Err: ErrValidation}
	if !errors.Is(err, ErrValidation) {
		t.Error("expected errors.Is to match ErrValidation")
	}
	if !strings.HasPrefix(err.Error(), "Age:") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestAPIResponseHelpers(t *testing.T) {
	ok := Success(map[string]int{"sessions": 2})
	if ok.Status != APIStatusOK || ok.Message != "" {
		t.Errorf("unexpected success envelope: %+v", ok)
	}
	e := Error("boom")
	if e.Status != APIStatusError || e.Message != "boom" || e.Result != nil {
		t.Errorf("unexpected error envelope: %+v", e)
	}
}
