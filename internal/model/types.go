package model

import "time"

// Observation is one numeric sample for a single (entity, metric) stream.
type Observation struct {
	Timestamp time.Time `json:"timestamp"`
	EntityID  string    `json:"entity_id"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Source    string    `json:"source,omitempty"`
	Raw       string    `json:"raw,omitempty"`
}

// Key identifies one independent rolling window.
type Key struct {
	EntityID string `json:"entity_id"`
	Metric   string `json:"metric"`
}

func (k Key) String() string {
	return k.EntityID + "/" + k.Metric
}

// StatResult is the rolling statistics computed for one observation.
type StatResult struct {
	RollingAvg    float64 `json:"rolling_avg"`
	RollingStdDev float64 `json:"rolling_stddev"`
	IsAnomaly     bool    `json:"is_anomaly"`
	SampleCount   int     `json:"sample_count"`
}

// StatSample is one observation joined with the statistics computed for it,
// the row shape used by persistence.
type StatSample struct {
	Timestamp time.Time  `json:"timestamp"`
	EntityID  string     `json:"entity_id"`
	Metric    string     `json:"metric"`
	Value     float64    `json:"value"`
	Stats     StatResult `json:"stats"`
}

// AnomalyRecord is emitted whenever a sample is flagged anomalous.
type AnomalyRecord struct {
	Timestamp time.Time  `json:"timestamp"`
	EntityID  string     `json:"entity_id"`
	Metric    string     `json:"metric"`
	Value     float64    `json:"value"`
	ZScore    float64    `json:"z_score"`
	Stats     StatResult `json:"stats"`
	Source    string     `json:"source,omitempty"`
}
