package category

import (
	"strings"

	"github.com/menta2k/safety-analyzer/pkg/types"
)

// ViolationKind is the aggregation key for reported violations
type ViolationKind string

const (
	KindPPE           ViolationKind = "ppe"
	KindProximity     ViolationKind = "proximity"
	KindMachinery     ViolationKind = "machinery"
	KindEnvironmental ViolationKind = "environmental"
	KindOther         ViolationKind = "other"
)

var kindTags = map[string]ViolationKind{
	"ppe":           KindPPE,
	"proximity":     KindProximity,
	"machinery":     KindMachinery,
	"environmental": KindEnvironmental,
	"environment":   KindEnvironmental,
	"hazard":        KindEnvironmental,
	"other":         KindOther,
}

// substring fallback, checked in order; padded needles match whole words
var kindHints = []struct {
	needle string
	kind   ViolationKind
}{
	{" ppe ", KindPPE},
	{"helmet", KindPPE},
	{"hard hat", KindPPE},
	{"hardhat", KindPPE},
	{"vest", KindPPE},
	{"glove", KindPPE},
	{"goggle", KindPPE},
	{"proxim", KindProximity},
	{"distance", KindProximity},
	{"too close", KindProximity},
	{"machine", KindMachinery},
	{"forklift", KindMachinery},
	{"vehicle", KindMachinery},
	{"fire", KindEnvironmental},
	{"spill", KindEnvironmental},
	{"smoke", KindEnvironmental},
	{"environment", KindEnvironmental},
}

// ClassifyViolation returns the kind of a violation. The explicit category
// tag is used when it names a known kind; otherwise the type and description
// are scanned for keywords.
func ClassifyViolation(v types.Violation) ViolationKind {
	if k, ok := kindTags[normalizeName(v.Category)]; ok {
		return k
	}
	text := " " + normalizeName(v.Type+" "+v.Description) + " "
	for _, h := range kindHints {
		if strings.Contains(text, h.needle) {
			return h.kind
		}
	}
	return KindOther
}

// Breakdown counts violations per kind
func Breakdown(violations []types.Violation) map[ViolationKind]int {
	out := make(map[ViolationKind]int)
	for _, v := range violations {
		out[ClassifyViolation(v)]++
	}
	return out
}
