package normalize

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"streamstat/internal/config"
	"streamstat/internal/model"
)

// ObservationFields holds the raw string fields extracted by the line
// parsers before validation.
type ObservationFields struct {
	Timestamp string
	EntityID  string
	Metric    string
	Value     string
	Extras    map[string]string
	Raw       string
}

// Normalize validates parsed fields into an Observation. The value must be a
// finite float and the metric name non-empty; a missing entity id falls back
// to the configured default.
func Normalize(fields ObservationFields, cfg *config.Config) (model.Observation, error) {
	entity := strings.TrimSpace(fields.EntityID)
	if entity == "" {
		entity = cfg.Ingest.Parser.DefaultEntityID
	}
	metric := strings.TrimSpace(fields.Metric)
	if metric == "" {
		return model.Observation{}, errors.New("missing metric name")
	}

	raw := strings.TrimSpace(fields.Value)
	if raw == "" {
		return model.Observation{}, errors.New("missing value")
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return model.Observation{}, fmt.Errorf("parse value: %w", err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return model.Observation{}, fmt.Errorf("non-finite value: %q", raw)
	}

	loc := time.UTC
	if cfg.Ingest.Parser.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Ingest.Parser.Timezone); err == nil {
			loc = l
		}
	}
	ts := time.Now().UTC()
	if fields.Timestamp != "" {
		parsed, err := ParseTimestamp(fields.Timestamp, loc)
		if err != nil {
			return model.Observation{}, fmt.Errorf("parse timestamp: %w", err)
		}
		ts = parsed.UTC()
	}

	return model.Observation{
		Timestamp: ts,
		EntityID:  entity,
		Metric:    metric,
		Value:     value,
		Raw:       fields.Raw,
	}, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z0700",
}

func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts, nil
		}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

func isNumeric(value string) bool {
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

func parseUnix(value string) (time.Time, error) {
	if len(value) >= 13 {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(0, ms*int64(time.Millisecond)).UTC(), nil
	}
	sec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}
