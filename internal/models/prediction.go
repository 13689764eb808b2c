package models

// Sleep quality labels returned by the predictor.
const (
	LabelBad    = 0
	LabelGood   = 1
	LabelMedium = 2
)

// PredictionRequest is the feature vector sent to the predictor.
type PredictionRequest struct {
	Age                 float64 `json:"Age"`
	Gender              int     `json:"Gender"`
	SleepDuration       float64 `json:"Sleep_duration"`
	Awakenings          float64 `json:"Awakenings"`
	CaffeineConsumption float64 `json:"Caffeine_consumption"`
	AlcoholConsumption  float64 `json:"Alcohol_consumption"`
	SmokingStatus       int     `json:"Smoking_status"`
	ExerciseFrequency   float64 `json:"Exercise_frequency"`
	BedHour             int     `json:"bed_hour"`
	WakeHour            int     `json:"wake_hour"`
}

// PredictionResponse is the canonical predictor reply.
// Label is required; a reply without it is rejected at the client boundary.
type PredictionResponse struct {
	Label      *int     `json:"sleep_quality_label"`
	LabelName  string   `json:"sleep_quality"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// IsValidLabel reports whether l is one of the known labels.
func IsValidLabel(l int) bool {
	return l == LabelBad || l == LabelGood || l == LabelMedium
}
