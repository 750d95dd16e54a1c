package scan

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"sitescan/internal/models"
)

// Placeholder names used in enrichment queries when the model gave none.
const (
	UnnamedTool     = "Unnamed Tool"
	UnnamedMaterial = "Unnamed Material"
	UnnamedBuilding = "Unnamed Building"
)

// wrapperKeys lists object keys that hold the entity array when the model
// answers with an envelope instead of a bare array.
var wrapperKeys = map[models.Category][]string{
	models.CategoryTool:     {"toolsDetected", "tools"},
	models.CategoryMaterial: {"materials", "materialsDetected"},
	models.CategoryBuilding: {"buildings", "buildingsDetected"},
}

// Entities turns an extracted value into a list of entity objects. Arrays
// keep their object elements; an envelope object yields its wrapped array;
// any other object is a single entity. ok is false for scalars.
func Entities(category models.Category, v any) ([]map[string]any, bool) {
	switch t := v.(type) {
	case []any:
		return objects(t), true
	case map[string]any:
		for _, key := range wrapperKeys[category] {
			if inner, ok := t[key].([]any); ok {
				return objects(inner), true
			}
		}
		return []map[string]any{t}, true
	}
	return nil, false
}

func objects(items []any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// ToolFromEntity reads tool fields, from detailedView when present.
func ToolFromEntity(m map[string]any) models.ToolScan {
	if dv, ok := m["detailedView"].(map[string]any); ok {
		m = dv
	}
	name := fieldString(m, "toolName")
	if name == "" {
		name = UnnamedTool
	}
	return models.ToolScan{
		ToolName:                 name,
		Category:                 fieldString(m, "category"),
		Description:              fieldString(m, "description"),
		PrimaryUses:              fieldStrings(m, "primaryUses"),
		SkillLevel:               fieldString(m, "skillLevel"),
		Manufacturers:            fieldStrings(m, "manufacturers"),
		SafetyGuidelines:         fieldString(m, "safetyGuidelines"),
		TutorialURLs:             []string{},
		SpecSheetURLs:            []string{},
		CertificationCoursesURLs: []string{},
		PurchaseRentalURLs:       []string{},
	}
}

func MaterialFromEntity(m map[string]any) models.MaterialScan {
	return models.MaterialScan{
		MaterialName:        fieldString(m, "materialName"),
		MaterialCategory:    fieldString(m, "materialCategory"),
		MaterialDescription: fieldString(m, "materialDescription"),
		Applications:        fieldStrings(m, "applications"),
		HandlingNotes:       fieldStrings(m, "handlingNotes"),
		EnvironmentalImpact: fieldStrings(m, "environmentalImpact"),
		ManufacturersName:   []string{},
		VideosGuide:         []string{},
		SpecsName:           []string{},
		RelatedCourses:      []string{},
	}
}

func BuildingFromEntity(m map[string]any) models.BuildingScan {
	return models.BuildingScan{
		BuildingType:           fieldString(m, "buildingType"),
		Description:            fieldString(m, "description"),
		KeyFeatures:            fieldString(m, "keyFeatures"),
		YearBuilt:              fieldString(m, "yearBuilt"),
		HistoricalSignificance: fieldString(m, "historicalSignificance"),
		ArchitectDesigner:      fieldString(m, "architectDesigner"),
		BuildingMaterialsUsed:  fieldString(m, "buildingMaterialsUsed"),
		RelatedBuildingCodes:   fieldString(m, "relatedBuildingCodes"),
		SimilarFamousBuildings: fieldString(m, "similarFamousBuildings"),
		SpecializedCourseURLs:  []string{},
	}
}

// fieldString coerces a field to text. Lists are joined one item per line.
func fieldString(m map[string]any, key string) string {
	return strings.TrimSpace(stringify(m[key]))
}

// fieldStrings coerces a field to a list. A lone string becomes one item.
func fieldStrings(m map[string]any, key string) []string {
	out := []string{}
	switch t := m[key].(type) {
	case []any:
		for _, item := range t {
			if s := strings.TrimSpace(stringify(item)); s != "" {
				out = append(out, s)
			}
		}
	case nil:
	default:
		if s := strings.TrimSpace(stringify(t)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := strings.TrimSpace(stringify(item)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	case map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
	return fmt.Sprint(v)
}
