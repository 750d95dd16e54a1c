package storage

import (
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"

	"sitescan/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the configured database and verifies the connection.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(cfg.Driver) {
	case "sqlite", "sqlite3":
		if cfg.DSN == "" {
			return nil, eris.New("storage: sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", cfg.DSN)
		if err != nil {
			return nil, eris.Wrap(err, "storage: open sqlite database")
		}
		// A single writer avoids SQLITE_BUSY under concurrent entity saves.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, eris.Wrap(err, "storage: enable sqlite foreign keys")
		}
	case "mysql":
		dsn := cfg.DSN
		if !strings.Contains(dsn, "parseTime=") {
			dsn = appendParam(dsn, "parseTime=true")
		}
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, eris.Wrap(err, "storage: open mysql database")
		}
	default:
		return nil, eris.Errorf("storage: unsupported driver: %s", cfg.Driver)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "storage: ping database")
	}
	return db, nil
}

func appendParam(dsn, param string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + param
	}
	return dsn + "?" + param
}

// Migrate ensures the required tables are present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				email TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				created_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS tool_scans (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				scan_id TEXT NOT NULL,
				image_url TEXT NOT NULL,
				tool_name TEXT NOT NULL,
				category TEXT NOT NULL,
				description TEXT NOT NULL,
				primary_uses TEXT NOT NULL,
				skill_level TEXT NOT NULL,
				manufacturers TEXT NOT NULL,
				safety_guidelines TEXT NOT NULL,
				tutorial_urls TEXT NOT NULL,
				spec_sheet_urls TEXT NOT NULL,
				certification_courses_urls TEXT NOT NULL,
				purchase_rental_urls TEXT NOT NULL,
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_tool_scans_scan ON tool_scans(scan_id)`,
			`CREATE TABLE IF NOT EXISTS material_scans (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				scan_id TEXT NOT NULL,
				image_url TEXT NOT NULL,
				material_name TEXT NOT NULL,
				material_category TEXT NOT NULL,
				material_description TEXT NOT NULL,
				applications TEXT NOT NULL,
				handling_notes TEXT NOT NULL,
				environmental_impact TEXT NOT NULL,
				manufacturers_name TEXT NOT NULL,
				videos_guide TEXT NOT NULL,
				specs_name TEXT NOT NULL,
				related_courses TEXT NOT NULL,
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_material_scans_scan ON material_scans(scan_id)`,
			`CREATE TABLE IF NOT EXISTS building_scans (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				scan_id TEXT NOT NULL,
				image_url TEXT NOT NULL,
				cleaned_title TEXT NOT NULL,
				building_type TEXT NOT NULL,
				description TEXT NOT NULL,
				key_features TEXT NOT NULL,
				year_built TEXT NOT NULL,
				historical_significance TEXT NOT NULL,
				architect_designer TEXT NOT NULL,
				building_materials_used TEXT NOT NULL,
				related_building_codes TEXT NOT NULL,
				similar_famous_buildings TEXT NOT NULL,
				specialized_course_urls TEXT NOT NULL,
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_building_scans_scan ON building_scans(scan_id)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				email VARCHAR(255) NOT NULL UNIQUE,
				password_hash VARCHAR(255) NOT NULL,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS tool_scans (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				scan_id CHAR(36) NOT NULL,
				image_url TEXT NOT NULL,
				tool_name VARCHAR(255) NOT NULL,
				category VARCHAR(255) NOT NULL,
				description TEXT NOT NULL,
				primary_uses JSON NOT NULL,
				skill_level VARCHAR(255) NOT NULL,
				manufacturers JSON NOT NULL,
				safety_guidelines TEXT NOT NULL,
				tutorial_urls JSON NOT NULL,
				spec_sheet_urls JSON NOT NULL,
				certification_courses_urls JSON NOT NULL,
				purchase_rental_urls JSON NOT NULL,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_tool_scans_scan (scan_id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS material_scans (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				scan_id CHAR(36) NOT NULL,
				image_url TEXT NOT NULL,
				material_name VARCHAR(255) NOT NULL,
				material_category VARCHAR(255) NOT NULL,
				material_description TEXT NOT NULL,
				applications JSON NOT NULL,
				handling_notes JSON NOT NULL,
				environmental_impact JSON NOT NULL,
				manufacturers_name JSON NOT NULL,
				videos_guide JSON NOT NULL,
				specs_name JSON NOT NULL,
				related_courses JSON NOT NULL,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_material_scans_scan (scan_id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS building_scans (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				scan_id CHAR(36) NOT NULL,
				image_url TEXT NOT NULL,
				cleaned_title VARCHAR(512) NOT NULL,
				building_type VARCHAR(255) NOT NULL,
				description TEXT NOT NULL,
				key_features TEXT NOT NULL,
				year_built VARCHAR(255) NOT NULL,
				historical_significance TEXT NOT NULL,
				architect_designer VARCHAR(512) NOT NULL,
				building_materials_used TEXT NOT NULL,
				related_building_codes TEXT NOT NULL,
				similar_famous_buildings TEXT NOT NULL,
				specialized_course_urls JSON NOT NULL,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_building_scans_scan (scan_id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return eris.Errorf("storage: unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return eris.Wrapf(err, "migrate (%s)", driver)
		}
	}
	return nil
}
