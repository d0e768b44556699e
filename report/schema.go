// Package report defines the structured diagnosis-report schema and renders
// completed reports. The schema is a fixed set of named fields; extraction
// may leave any of them unfilled, in which case they carry an explicit
// "unknown" sentinel so rendering never fails on a missing key.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Unknown is the sentinel for fields that could not be extracted.
const Unknown = "未知"

// FieldNames is the complete diagnosis-report schema in render order.
var FieldNames = []string{
	"title",
	"report_id",
	"device_name",
	"device_model",
	"location",
	"diagnosis_date",
	"data_range",
	"health_score",
	"health_status",
	"risk_level",
	"issue_count",
	"abstract",
	"device_basic_info",
	"operating_environment",
	"maintenance_history",
	"monitoring_data_summary",
	"key_metrics_analysis",
	"trend_analysis",
	"anomaly_detection",
	"fault_description",
	"fault_cause_analysis",
	"fault_location",
	"urgent_measures",
	"maintenance_plan",
	"spare_parts_suggestion",
	"current_risks",
	"potential_risks",
	"risk_control",
	"conclusion_and_recommendations",
	"technical_parameters",
	"related_standards",
	"diagnosis_method",
}

// Fill completes a partial field mapping against the schema. Every schema
// field is present in the result; missing or empty values become Unknown.
// Unrecognized keys are dropped.
func Fill(fields map[string]string) map[string]string {
	out := make(map[string]string, len(FieldNames))
	for _, name := range FieldNames {
		val := strings.TrimSpace(fields[name])
		if val == "" {
			val = Unknown
		}
		out[name] = val
	}
	if out["title"] == Unknown {
		out["title"] = "设备健康诊断报告"
	}
	return out
}

// ParseFields extracts schema fields from a model response. It accepts a JSON
// object (possibly wrapped in a markdown code fence) and falls back to
// "key: value" line parsing. Unknown keys are ignored; values are stringified.
func ParseFields(text string) map[string]string {
	fields := map[string]string{}

	cleaned := strings.TrimSpace(text)
	if idx := strings.Index(cleaned, "{"); idx >= 0 {
		if end := strings.LastIndex(cleaned, "}"); end > idx {
			var raw map[string]any
			if err := json.Unmarshal([]byte(cleaned[idx:end+1]), &raw); err == nil {
				for k, v := range raw {
					switch tv := v.(type) {
					case string:
						fields[k] = tv
					case float64:
						if tv == float64(int64(tv)) {
							fields[k] = fmt.Sprintf("%d", int64(tv))
						} else {
							fields[k] = fmt.Sprintf("%g", tv)
						}
					case bool:
						fields[k] = fmt.Sprintf("%t", tv)
					}
				}
				return fields
			}
		}
	}

	for _, line := range strings.Split(cleaned, "\n") {
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			key, val, ok = strings.Cut(line, "：")
		}
		if !ok {
			continue
		}
		key = strings.Trim(strings.TrimSpace(key), `"*- `)
		val = strings.Trim(strings.TrimSpace(val), `",`)
		if key != "" && val != "" {
			fields[key] = val
		}
	}
	return fields
}

// IDGenerator issues report ids of the form DX-YYYYMMDD-NNN. The sequence
// restarts at 001 each day and is serialized per generator instance.
type IDGenerator struct {
	mu      sync.Mutex
	day     string
	counter int
}

// NewIDGenerator returns a generator whose first id of each day is 001.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// Next returns the id for a report issued at now.
func (g *IDGenerator) Next(now time.Time) string {
	day := now.Format("20060102")

	g.mu.Lock()
	defer g.mu.Unlock()
	if day != g.day {
		g.day = day
		g.counter = 0
	}
	g.counter++
	return fmt.Sprintf("DX-%s-%03d", day, g.counter)
}
