// Package category maps raw detector class names onto the fixed set of
// semantic categories used by the hazard pipeline, and classifies free-text
// violations returned by the reasoning service.
package category

import (
	"strings"

	"github.com/menta2k/safety-analyzer/pkg/types"
)

// Environmental is accepted as an upstream hint and folded into types.Hazard
const Environmental = "environmental"

var defaultTable = map[string]types.Category{
	// people
	"person":     types.Human,
	"people":     types.Human,
	"worker":     types.Human,
	"man":        types.Human,
	"woman":      types.Human,
	"pedestrian": types.Human,
	"operator":   types.Human,

	// machinery and vehicles
	"machine":    types.Machinery,
	"machinery":  types.Machinery,
	"forklift":   types.Machinery,
	"excavator":  types.Machinery,
	"bulldozer":  types.Machinery,
	"crane":      types.Machinery,
	"loader":     types.Machinery,
	"tractor":    types.Machinery,
	"truck":      types.Machinery,
	"dump truck": types.Machinery,
	"car":        types.Machinery,
	"bus":        types.Machinery,
	"train":      types.Machinery,
	"motorcycle": types.Machinery,
	"vehicle":    types.Machinery,
	"conveyor":   types.Machinery,
	"mixer":      types.Machinery,

	// protective equipment and tools
	"equipment":   types.Equipment,
	"helmet":      types.Equipment,
	"hardhat":     types.Equipment,
	"hard hat":    types.Equipment,
	"vest":        types.Equipment,
	"safety vest": types.Equipment,
	"gloves":      types.Equipment,
	"goggles":     types.Equipment,
	"mask":        types.Equipment,
	"boots":       types.Equipment,
	"harness":     types.Equipment,
	"ladder":      types.Equipment,
	"scaffold":    types.Equipment,
	"drill":       types.Equipment,
	"hammer":      types.Equipment,
	"saw":         types.Equipment,
	"wrench":      types.Equipment,
	"scissors":    types.Equipment,
	"knife":       types.Equipment,
	"tool":        types.Equipment,

	// hazards
	"hazard":         types.Hazard,
	Environmental:    types.Hazard,
	"fire":           types.Hazard,
	"smoke":          types.Hazard,
	"spark":          types.Hazard,
	"sparks":         types.Hazard,
	"spill":          types.Hazard,
	"puddle":         types.Hazard,
	"exposed wire":   types.Hazard,
	"gas cylinder":   types.Hazard,
	"no helmet":      types.Hazard,
	"no hardhat":     types.Hazard,
	"no vest":        types.Hazard,
	"no safety vest": types.Hazard,
	"no mask":        types.Hazard,
	"open trench":    types.Hazard,

	"object": types.Object,
}

// Mapper resolves class names to categories. It is read-only after
// construction and safe for concurrent use.
type Mapper struct {
	table map[string]types.Category
}

// New creates a Mapper from the built-in table plus optional overrides
// (class name -> category name). Overrides naming an unknown category are ignored.
func New(overrides map[string]string) *Mapper {
	table := make(map[string]types.Category, len(defaultTable)+len(overrides))
	for k, v := range defaultTable {
		table[k] = v
	}
	for k, v := range overrides {
		c, ok := parseCategory(v)
		if !ok {
			continue
		}
		table[normalizeName(k)] = c
	}
	return &Mapper{table: table}
}

var std = New(nil)

// Map resolves a class name with the built-in table
func Map(raw string) types.Category {
	return std.Map(raw)
}

// Map returns the category for a raw class name; unknown names map to types.Object
func (m *Mapper) Map(raw string) types.Category {
	if c, ok := m.table[normalizeName(raw)]; ok {
		return c
	}
	return types.Object
}

// Resolve picks the category for a detection. A recognised hint, either a
// category name or a class in the table, wins over the class name; a hint
// that resolves to nothing falls back to the class.
func (m *Mapper) Resolve(hint, class string) types.Category {
	if strings.TrimSpace(hint) != "" {
		if c, ok := parseCategory(hint); ok {
			return c
		}
		if c, ok := m.table[normalizeName(hint)]; ok {
			return c
		}
	}
	return m.Map(class)
}

func parseCategory(s string) (types.Category, bool) {
	switch c := types.Category(normalizeName(s)); c {
	case types.Human, types.Machinery, types.Equipment, types.Hazard, types.Object:
		return c, true
	case Environmental:
		return types.Hazard, true
	}
	return "", false
}

// normalizeName lowercases and folds '_' and '-' to spaces
func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
