package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"streamstat/internal/normalize"
)

func ParseJSONBytes(data []byte) (*normalize.ObservationFields, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return ParseJSONMap(obj), nil
}

func ParseJSONMap(obj map[string]interface{}) *normalize.ObservationFields {
	fields := &normalize.ObservationFields{Extras: map[string]string{}}
	for key, val := range obj {
		fields.Extras[strings.ToLower(key)] = fmt.Sprint(val)
	}
	fields.Timestamp = firstNonEmpty(fields.Extras, timestampAliases...)
	fields.EntityID = firstNonEmpty(fields.Extras, entityAliases...)
	fields.Metric = firstNonEmpty(fields.Extras, metricAliases...)
	fields.Value = firstNonEmpty(fields.Extras, valueAliases...)
	return fields
}
