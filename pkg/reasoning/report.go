package reasoning

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/menta2k/safety-analyzer/pkg/types"
)

var reDigits = regexp.MustCompile(`\d+`)

// fillReport maps a decoded JSON object onto the typed report. Values whose
// JSON type differs from the field type are coerced where a reading exists
// and left zero otherwise; nothing here rejects the payload.
func fillReport(obj map[string]any) *types.SafetyAnalysisReport {
	r := &types.SafetyAnalysisReport{
		RiskScore:         asInt(obj["risk_score"]),
		RiskLevel:         types.RiskLevel(strings.ToUpper(asString(obj["risk_level"]))),
		WorkersCount:      asInt(obj["workers_count"]),
		MachineryCount:    asInt(obj["machinery_count"]),
		PPEComplianceRate: asFloat(obj["ppe_compliance_rate"]),
		Summary:           asString(obj["summary"]),
		ProximityWarnings: asStrings(obj["proximity_warnings"]),
		Recommendations:   asStrings(obj["recommendations"]),
	}

	for _, item := range asList(obj["violations"]) {
		switch v := item.(type) {
		case map[string]any:
			r.Violations = append(r.Violations, types.Violation{
				Type:           asString(v["type"]),
				Category:       asString(v["category"]),
				Severity:       strings.ToUpper(asString(v["severity"])),
				Description:    asString(v["description"]),
				Regulation:     asString(v["regulation"]),
				Recommendation: asString(v["recommendation"]),
				WorkerID:       asID(v["worker_id"]),
			})
		case string:
			r.Violations = append(r.Violations, types.Violation{Description: v})
		}
	}

	for _, item := range asList(obj["workers"]) {
		w, ok := item.(map[string]any)
		if !ok {
			continue
		}
		r.Workers = append(r.Workers, types.WorkerAssessment{
			ID:         asID(w["id"]),
			PPEWorn:    asStrings(w["ppe_detected"]),
			PPEMissing: asStrings(w["ppe_missing"]),
			RiskLevel:  types.RiskLevel(strings.ToUpper(asString(w["risk_level"]))),
			Notes:      asString(w["notes"]),
		})
	}
	return r
}

// decodeObject decodes payload into a generic object, keeping numbers as
// json.Number so integers and fractions are both representable
func decodeObject(payload string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case json.Number:
		f, _ := n.Float64()
		return f
	case float64:
		return n
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(n), "%"))
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return 0
}

func asInt(v any) int {
	f := asFloat(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(math.Round(f))
}

// asID reads numeric ids and labels like "W1" or "worker 2"
func asID(v any) int {
	if s, ok := v.(string); ok {
		if _, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			if m := reDigits.FindString(s); m != "" {
				id, _ := strconv.Atoi(m)
				return id
			}
			return 0
		}
	}
	return asInt(v)
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case bool:
		return strconv.FormatBool(s)
	case nil:
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(bytes.TrimSpace(b))
}

func asList(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case nil:
		return nil
	}
	return []any{v}
}

func asStrings(v any) []string {
	items := asList(v)
	if items == nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := asString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
