package models

import "time"

// Classification is the label assigned to an uploaded image.
type Classification string

const (
	ClassTool     Classification = "tool"
	ClassBuilding Classification = "building"
	ClassMaterial Classification = "material"
	ClassBoth     Classification = "both"
	ClassNone     Classification = "none"
)

// Classifications lists every valid label.
var Classifications = []Classification{ClassTool, ClassBuilding, ClassMaterial, ClassBoth, ClassNone}

// Valid reports whether c is one of the known labels.
func (c Classification) Valid() bool {
	for _, known := range Classifications {
		if c == known {
			return true
		}
	}
	return false
}

// Category is the kind of entity an analyzer extracts.
type Category string

const (
	CategoryTool     Category = "tool"
	CategoryMaterial Category = "material"
	CategoryBuilding Category = "building"
)

// RecordMeta is shared by every persisted scan record.
type RecordMeta struct {
	ID        int64     `json:"id"`
	ScanID    string    `json:"scanId"`
	ImageURL  string    `json:"imageUrl"`
	CreatedAt time.Time `json:"createdAt"`
}

// ToolScan is one identified tool with its enrichment links.
type ToolScan struct {
	RecordMeta
	ToolName                 string   `json:"toolName"`
	Category                 string   `json:"category"`
	Description              string   `json:"description"`
	PrimaryUses              []string `json:"primaryUses"`
	SkillLevel               string   `json:"skillLevel"`
	Manufacturers            []string `json:"manufacturers"`
	SafetyGuidelines         string   `json:"safetyGuidelines"`
	TutorialURLs             []string `json:"tutorialUrls"`
	SpecSheetURLs            []string `json:"specSheetUrls"`
	CertificationCoursesURLs []string `json:"certificationCoursesUrls"`
	PurchaseRentalURLs       []string `json:"purchaseRentalUrls"`
}

// MaterialScan is one identified material with its enrichment links.
type MaterialScan struct {
	RecordMeta
	MaterialName        string   `json:"materialName"`
	MaterialCategory    string   `json:"materialCategory"`
	MaterialDescription string   `json:"materialDescription"`
	Applications        []string `json:"applications"`
	HandlingNotes       []string `json:"handlingNotes"`
	EnvironmentalImpact []string `json:"environmentalImpact"`
	ManufacturersName   []string `json:"manufacturersName"`
	VideosGuide         []string `json:"videosGuide"`
	SpecsName           []string `json:"specsName"`
	RelatedCourses      []string `json:"relatedCourses"`
}

// BuildingScan is one identified building with its enrichment links.
type BuildingScan struct {
	RecordMeta
	CleanedTitle           string   `json:"cleanedTitle"`
	BuildingType           string   `json:"buildingType"`
	Description            string   `json:"description"`
	KeyFeatures            string   `json:"keyFeatures"`
	YearBuilt              string   `json:"yearBuilt"`
	HistoricalSignificance string   `json:"historicalSignificance"`
	ArchitectDesigner      string   `json:"architectDesigner"`
	BuildingMaterialsUsed  string   `json:"buildingMaterialsUsed"`
	RelatedBuildingCodes   string   `json:"relatedBuildingCodes"`
	SimilarFamousBuildings string   `json:"similarFamousBuildings"`
	SpecializedCourseURLs  []string `json:"specializedCourseUrls"`
}
