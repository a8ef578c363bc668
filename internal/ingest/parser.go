package ingest

import (
	"encoding/csv"
	"regexp"
	"strings"
	"sync"

	"streamstat/internal/normalize"
)

var (
	reTimestamp = regexp.MustCompile(`^\s*([0-9]{4}-[0-9]{2}-[0-9]{2}[ T][0-9:.+-Z]+)`)
	reKV        = regexp.MustCompile(`(?i)([a-zA-Z_]+)=([^\s]+)`)
)

// Parser turns one raw line into ObservationFields. It accepts JSON objects,
// CSV rows (optionally preceded by a header row) and plain key=value text.
// The CSV header is per-stream state, so each ingest stream carries its own
// Parser.
type Parser struct {
	csv *CSVParser
}

func NewParser() *Parser {
	return &Parser{csv: NewCSVParser()}
}

func (p *Parser) ParseLine(line string) (*normalize.ObservationFields, error) {
	trim := strings.TrimSpace(line)
	if trim == "" {
		return nil, nil
	}
	if looksLikeJSON(trim) {
		if fields, err := ParseJSONBytes([]byte(trim)); err == nil {
			fields.Raw = line
			return fields, nil
		}
	}
	if strings.Contains(trim, ",") {
		fields, err := p.csv.Parse(trim)
		if err == nil {
			if fields == nil {
				return nil, nil
			}
			fields.Raw = line
			return fields, nil
		}
	}
	fields := parsePlain(trim)
	fields.Raw = line
	return fields, nil
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func parsePlain(line string) *normalize.ObservationFields {
	fields := &normalize.ObservationFields{Extras: map[string]string{}}
	ts, rest := extractTimestamp(line)
	fields.Timestamp = ts

	kv := map[string]string{}
	for _, match := range reKV.FindAllStringSubmatch(line, -1) {
		kv[strings.ToLower(match[1])] = match[2]
	}
	fields.EntityID = firstNonEmpty(kv, entityAliases...)
	fields.Metric = firstNonEmpty(kv, metricAliases...)
	fields.Value = firstNonEmpty(kv, valueAliases...)
	if fields.Timestamp == "" {
		fields.Timestamp = firstNonEmpty(kv, timestampAliases...)
	}
	for k, v := range kv {
		fields.Extras[k] = v
	}

	if fields.EntityID == "" && rest != "" {
		tokens := strings.Fields(rest)
		if len(tokens) > 0 && !strings.Contains(tokens[0], "=") {
			fields.EntityID = tokens[0]
		}
	}
	return fields
}

func extractTimestamp(line string) (string, string) {
	m := reTimestamp.FindStringSubmatchIndex(line)
	if len(m) >= 4 {
		ts := strings.TrimSpace(line[m[2]:m[3]])
		rest := strings.TrimSpace(line[m[3]:])
		return ts, rest
	}
	return "", line
}

var (
	timestampAliases = []string{"timestamp", "time", "ts"}
	entityAliases    = []string{"entity_id", "entity", "device", "device_id", "deviceid", "sensor", "symbol"}
	metricAliases    = []string{"metric", "metric_name", "name", "channel"}
	valueAliases     = []string{"value", "val", "reading", "v"}
)

func firstNonEmpty(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(m[k]); v != "" {
			return v
		}
	}
	return ""
}

// CSVParser remembers the header row of its stream, so one instance belongs
// to one stream. The mutex makes the learned header safe against concurrent
// ParseLine callers.
type CSVParser struct {
	mu     sync.Mutex
	header []string
}

func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

func (p *CSVParser) Parse(line string) (*normalize.ObservationFields, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.TrimLeadingSpace = true
	record, err := r.Read()
	if err != nil {
		return nil, err
	}
	if len(record) == 0 {
		return nil, nil
	}
	p.mu.Lock()
	if p.header == nil && looksLikeHeader(record) {
		p.header = normalizeHeader(record)
		p.mu.Unlock()
		return nil, nil
	}
	header := p.header
	p.mu.Unlock()

	fields := &normalize.ObservationFields{Extras: map[string]string{}}
	if header != nil {
		for i, name := range header {
			if i >= len(record) {
				break
			}
			assignField(fields, name, record[i])
		}
		return fields, nil
	}
	// Positional fallback: timestamp, entity, metric, value.
	if len(record) >= 1 {
		fields.Timestamp = record[0]
	}
	if len(record) >= 2 {
		fields.EntityID = record[1]
	}
	if len(record) >= 3 {
		fields.Metric = record[2]
	}
	if len(record) >= 4 {
		fields.Value = record[3]
	}
	return fields, nil
}

func looksLikeHeader(record []string) bool {
	for _, v := range record {
		v = strings.ToLower(strings.TrimSpace(v))
		switch v {
		case "timestamp", "time", "ts", "entity", "entity_id", "device", "device_id", "sensor", "symbol", "metric", "metric_name", "value":
			return true
		}
	}
	return false
}

func normalizeHeader(record []string) []string {
	out := make([]string, len(record))
	for i, v := range record {
		out[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

func assignField(fields *normalize.ObservationFields, name string, value string) {
	name = strings.ToLower(strings.TrimSpace(name))
	value = strings.TrimSpace(value)
	switch name {
	case "timestamp", "time", "ts":
		fields.Timestamp = value
	case "entity_id", "entity", "device", "device_id", "deviceid", "sensor", "symbol":
		fields.EntityID = value
	case "metric", "metric_name", "name", "channel":
		fields.Metric = value
	case "value", "val", "reading", "v":
		fields.Value = value
	default:
		if fields.Extras != nil {
			fields.Extras[name] = value
		}
	}
}
