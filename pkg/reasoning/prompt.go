package reasoning

import (
	"bytes"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/pkg/errors"

	"github.com/menta2k/safety-analyzer/pkg/types"
)

// Mode selects what the reasoning model should focus on
type Mode string

const (
	ModeComprehensive Mode = "comprehensive"
	ModePPE           Mode = "ppe"
	ModeProximity     Mode = "proximity"
)

// DefaultLanguage is the report language when none is configured
const DefaultLanguage = "English"

// ErrUnknownMode is returned by ParseMode for unsupported analysis modes
var ErrUnknownMode = errors.New("unknown analysis mode")

var modeFocus = map[Mode]string{
	ModeComprehensive: "Assess every risk visible in the scene: personal protective equipment, proximity of workers to machinery, machinery state and environmental hazards.",
	ModePPE:           "Focus on personal protective equipment. For each person decide which items (helmet, safety vest, gloves, goggles, boots) are present or missing.",
	ModeProximity:     "Focus on workers standing or moving near machinery and vehicles. Flag every person inside a plausible danger zone.",
}

// Modes lists the supported analysis modes
func Modes() []Mode {
	return []Mode{ModeComprehensive, ModePPE, ModeProximity}
}

// ParseMode validates a mode label. An empty label selects ModeComprehensive.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if m == "" {
		return ModeComprehensive, nil
	}
	if _, ok := modeFocus[m]; !ok {
		return "", errors.Wrapf(ErrUnknownMode, "%q", s)
	}
	return m, nil
}

var promptTemplate = template.Must(template.New("prompt").Parse(`You are an industrial safety inspector. An object detector has analysed a single still frame of a work site and produced the structured summary below.

Analysis mode: {{.Mode}}
{{.Focus}}

Detections (bbox_percent is [x, y, width, height] in integer percent of the image, origin at the top-left corner; ids are unique within their own list only):
{{.Batch}}

Write every free-text field in {{.Language}}.
Return ONLY a JSON object with exactly this shape. No markdown, no code fences, no text before or after the object.
{
  "risk_score": <integer 0-100>,
  "risk_level": "LOW" | "MEDIUM" | "HIGH" | "CRITICAL",
  "workers_count": <integer>,
  "machinery_count": <integer>,
  "ppe_compliance_rate": <number 0-1>,
  "violations": [
    {
      "type": "<short label>",
      "category": "ppe" | "proximity" | "machinery" | "environmental" | "other",
      "severity": "LOW" | "MEDIUM" | "HIGH" | "CRITICAL",
      "description": "<what is wrong>",
      "regulation": "<applicable regulation, optional>",
      "recommendation": "<corrective action>",
      "worker_id": <persons id, optional>
    }
  ],
  "summary": "<two or three sentences>",
  "workers": [
    {"id": <persons id>, "ppe_detected": ["..."], "ppe_missing": ["..."], "risk_level": "LOW" | "MEDIUM" | "HIGH" | "CRITICAL", "notes": "..."}
  ],
  "proximity_warnings": ["..."],
  "recommendations": ["..."]
}`))

// BuildPrompt renders the fixed prompt around a serialized batch
func BuildPrompt(batch types.StructuredDetectionBatch, mode Mode, language string) (string, error) {
	focus, ok := modeFocus[mode]
	if !ok {
		return "", errors.Wrapf(ErrUnknownMode, "%q", mode)
	}
	if language == "" {
		language = DefaultLanguage
	}

	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "marshal detection batch")
	}

	var buf bytes.Buffer
	err = promptTemplate.Execute(&buf, struct {
		Mode     Mode
		Focus    string
		Batch    string
		Language string
	}{mode, focus, string(data), language})
	if err != nil {
		return "", errors.Wrap(err, "render prompt")
	}
	return buf.String(), nil
}
