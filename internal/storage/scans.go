package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"sitescan/internal/models"
)

// ScanRepository appends scan records. Rows are never updated.
type ScanRepository struct {
	db *sql.DB
}

func NewScanRepository(db *sql.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

// SaveTool inserts the record and fills in its ID and CreatedAt.
func (r *ScanRepository) SaveTool(ctx context.Context, rec *models.ToolScan) error {
	rec.CreatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO tool_scans (scan_id, image_url, tool_name, category, description, primary_uses,
			skill_level, manufacturers, safety_guidelines, tutorial_urls, spec_sheet_urls,
			certification_courses_urls, purchase_rental_urls, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ScanID, rec.ImageURL, rec.ToolName, rec.Category, rec.Description, listJSON(rec.PrimaryUses),
		rec.SkillLevel, listJSON(rec.Manufacturers), rec.SafetyGuidelines, listJSON(rec.TutorialURLs),
		listJSON(rec.SpecSheetURLs), listJSON(rec.CertificationCoursesURLs), listJSON(rec.PurchaseRentalURLs),
		rec.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "storage: insert tool scan")
	}
	rec.ID, err = res.LastInsertId()
	return eris.Wrap(err, "storage: tool scan id")
}

// SaveMaterial inserts the record and fills in its ID and CreatedAt.
func (r *ScanRepository) SaveMaterial(ctx context.Context, rec *models.MaterialScan) error {
	rec.CreatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO material_scans (scan_id, image_url, material_name, material_category,
			material_description, applications, handling_notes, environmental_impact,
			manufacturers_name, videos_guide, specs_name, related_courses, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ScanID, rec.ImageURL, rec.MaterialName, rec.MaterialCategory, rec.MaterialDescription,
		listJSON(rec.Applications), listJSON(rec.HandlingNotes), listJSON(rec.EnvironmentalImpact),
		listJSON(rec.ManufacturersName), listJSON(rec.VideosGuide), listJSON(rec.SpecsName),
		listJSON(rec.RelatedCourses), rec.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "storage: insert material scan")
	}
	rec.ID, err = res.LastInsertId()
	return eris.Wrap(err, "storage: material scan id")
}

// SaveBuilding inserts the record and fills in its ID and CreatedAt.
func (r *ScanRepository) SaveBuilding(ctx context.Context, rec *models.BuildingScan) error {
	rec.CreatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO building_scans (scan_id, image_url, cleaned_title, building_type, description,
			key_features, year_built, historical_significance, architect_designer,
			building_materials_used, related_building_codes, similar_famous_buildings,
			specialized_course_urls, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ScanID, rec.ImageURL, rec.CleanedTitle, rec.BuildingType, rec.Description,
		rec.KeyFeatures, rec.YearBuilt, rec.HistoricalSignificance, rec.ArchitectDesigner,
		rec.BuildingMaterialsUsed, rec.RelatedBuildingCodes, rec.SimilarFamousBuildings,
		listJSON(rec.SpecializedCourseURLs), rec.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "storage: insert building scan")
	}
	rec.ID, err = res.LastInsertId()
	return eris.Wrap(err, "storage: building scan id")
}

// ScanRecords groups every record written for one scan id.
type ScanRecords struct {
	ScanID    string                `json:"scanId"`
	Tools     []models.ToolScan     `json:"tools"`
	Materials []models.MaterialScan `json:"materials"`
	Buildings []models.BuildingScan `json:"buildings"`
}

// Empty reports whether no record was found.
func (s *ScanRecords) Empty() bool {
	return len(s.Tools) == 0 && len(s.Materials) == 0 && len(s.Buildings) == 0
}

// FindByScanID loads all records of a scan, oldest first.
func (r *ScanRepository) FindByScanID(ctx context.Context, scanID string) (*ScanRecords, error) {
	out := &ScanRecords{
		ScanID:    scanID,
		Tools:     []models.ToolScan{},
		Materials: []models.MaterialScan{},
		Buildings: []models.BuildingScan{},
	}

	toolRows, err := r.db.QueryContext(ctx,
		`SELECT id, scan_id, image_url, tool_name, category, description, primary_uses, skill_level,
			manufacturers, safety_guidelines, tutorial_urls, spec_sheet_urls,
			certification_courses_urls, purchase_rental_urls, created_at
		 FROM tool_scans WHERE scan_id = ? ORDER BY id`, scanID)
	if err != nil {
		return nil, eris.Wrap(err, "storage: query tool scans")
	}
	defer toolRows.Close()
	for toolRows.Next() {
		var (
			t                                           models.ToolScan
			uses, makers, tutorials, sheets, certs, buy string
		)
		if err := toolRows.Scan(&t.ID, &t.ScanID, &t.ImageURL, &t.ToolName, &t.Category, &t.Description,
			&uses, &t.SkillLevel, &makers, &t.SafetyGuidelines, &tutorials, &sheets, &certs, &buy,
			&t.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "storage: scan tool row")
		}
		t.PrimaryUses, t.Manufacturers = parseList(uses), parseList(makers)
		t.TutorialURLs, t.SpecSheetURLs = parseList(tutorials), parseList(sheets)
		t.CertificationCoursesURLs, t.PurchaseRentalURLs = parseList(certs), parseList(buy)
		out.Tools = append(out.Tools, t)
	}
	if err := toolRows.Err(); err != nil {
		return nil, eris.Wrap(err, "storage: iterate tool scans")
	}

	matRows, err := r.db.QueryContext(ctx,
		`SELECT id, scan_id, image_url, material_name, material_category, material_description,
			applications, handling_notes, environmental_impact, manufacturers_name, videos_guide,
			specs_name, related_courses, created_at
		 FROM material_scans WHERE scan_id = ? ORDER BY id`, scanID)
	if err != nil {
		return nil, eris.Wrap(err, "storage: query material scans")
	}
	defer matRows.Close()
	for matRows.Next() {
		var (
			m                                                   models.MaterialScan
			apps, notes, impact, makers, videos, specs, courses string
		)
		if err := matRows.Scan(&m.ID, &m.ScanID, &m.ImageURL, &m.MaterialName, &m.MaterialCategory,
			&m.MaterialDescription, &apps, &notes, &impact, &makers, &videos, &specs, &courses,
			&m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "storage: scan material row")
		}
		m.Applications, m.HandlingNotes, m.EnvironmentalImpact = parseList(apps), parseList(notes), parseList(impact)
		m.ManufacturersName, m.VideosGuide = parseList(makers), parseList(videos)
		m.SpecsName, m.RelatedCourses = parseList(specs), parseList(courses)
		out.Materials = append(out.Materials, m)
	}
	if err := matRows.Err(); err != nil {
		return nil, eris.Wrap(err, "storage: iterate material scans")
	}

	bldRows, err := r.db.QueryContext(ctx,
		`SELECT id, scan_id, image_url, cleaned_title, building_type, description, key_features,
			year_built, historical_significance, architect_designer, building_materials_used,
			related_building_codes, similar_famous_buildings, specialized_course_urls, created_at
		 FROM building_scans WHERE scan_id = ? ORDER BY id`, scanID)
	if err != nil {
		return nil, eris.Wrap(err, "storage: query building scans")
	}
	defer bldRows.Close()
	for bldRows.Next() {
		var (
			b       models.BuildingScan
			courses string
		)
		if err := bldRows.Scan(&b.ID, &b.ScanID, &b.ImageURL, &b.CleanedTitle, &b.BuildingType,
			&b.Description, &b.KeyFeatures, &b.YearBuilt, &b.HistoricalSignificance, &b.ArchitectDesigner,
			&b.BuildingMaterialsUsed, &b.RelatedBuildingCodes, &b.SimilarFamousBuildings, &courses,
			&b.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "storage: scan building row")
		}
		b.SpecializedCourseURLs = parseList(courses)
		out.Buildings = append(out.Buildings, b)
	}
	if err := bldRows.Err(); err != nil {
		return nil, eris.Wrap(err, "storage: iterate building scans")
	}

	return out, nil
}

func listJSON(items []string) string {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func parseList(raw string) []string {
	out := []string{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return []string{}
	}
	return out
}
