package reasoning

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/menta2k/safety-analyzer/pkg/types"
)

// ErrInvalidReport is wrapped by every parse failure of a model response
var ErrInvalidReport = errors.New("response is not a valid report")

var (
	fencedJSON = regexp.MustCompile("(?is)```json\\s*(.*?)```")
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// ExtractJSON returns the trimmed content of the first ```json fenced block,
// or the whole trimmed text when there is none
func ExtractJSON(text string) string {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

// ParseReport extracts and decodes a report from raw model text. When the
// extracted payload does not decode, one cleaned-up retry is made. Only
// malformed JSON fails; mistyped fields are coerced by fillReport.
func ParseReport(text string) (*types.SafetyAnalysisReport, error) {
	payload := ExtractJSON(text)

	report, err := decodeReport(payload)
	if err == nil {
		return report, nil
	}
	if cleaned := sanitizeModelJSON(payload); cleaned != payload {
		if report, err2 := decodeReport(cleaned); err2 == nil {
			return report, nil
		}
	}
	return nil, err
}

func decodeReport(payload string) (*types.SafetyAnalysisReport, error) {
	if !strings.HasPrefix(payload, "{") {
		return nil, errors.Wrap(ErrInvalidReport, "no JSON object found")
	}
	obj, err := decodeObject(payload)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidReport, "decode: %v", err)
	}
	return fillReport(obj), nil
}

// sanitizeModelJSON removes code fences, comments and trailing commas and
// keeps only the outermost {...}
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
