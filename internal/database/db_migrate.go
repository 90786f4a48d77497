package database

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"path"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var EmbeddedMigrationsFS embed.FS

// MigrationFile represents a migration file with its metadata
type MigrationFile struct {
	FileName    string
	Version     int
	Description string
	FilePath    string
}

// Migrate applies all pending embedded migrations
func (db *Database) Migrate() error {
	if err := ensureMigrationsTable(db.mainDB); err != nil {
		return err
	}

	migrations, err := getMigrationFiles(EmbeddedMigrationsFS)
	if err != nil {
		return err
	}

	applied, err := getAppliedMigrations(db.mainDB)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if applied[migration.FileName] {
			continue
		}
		if err := applyMigration(db.mainDB, EmbeddedMigrationsFS, migration); err != nil {
			log.Printf("[DB]: Failed to apply migration %s: %v", migration.FileName, err)
			return err
		}
		log.Printf("[DB]: Applied migration %s", migration.FileName)
	}
	return nil
}

// parseMigrationFileName parses NNNN_description.sql
func parseMigrationFileName(fileName string) (*MigrationFile, error) {
	if !strings.HasSuffix(fileName, ".sql") {
		return nil, fmt.Errorf("migration file must have .sql extension: %s", fileName)
	}
	name := strings.TrimSuffix(fileName, ".sql")
	parts := strings.SplitN(name, "_", 2)
	if len(parts) < 2 || parts[1] == "" {
		return nil, fmt.Errorf("invalid migration file name format: %s (expected format: 0001_description.sql)", fileName)
	}

	version, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid version number in migration file: %s", fileName)
	}

	return &MigrationFile{
		FileName:    fileName,
		Version:     version,
		Description: parts[1],
		FilePath:    path.Join("migrations", fileName),
	}, nil
}

// getMigrationFiles reads and sorts all migration files from fsys
func getMigrationFiles(fsys fs.FS) ([]*MigrationFile, error) {
	files, err := fs.ReadDir(fsys, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []*MigrationFile
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".sql") {
			continue
		}
		migration, err := parseMigrationFileName(f.Name())
		if err != nil {
			log.Printf("[DB]: Warning: skipping invalid migration file %s: %v", f.Name(), err)
			continue
		}
		migrations = append(migrations, migration)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// ensureMigrationsTable creates the schema_migrations table if it doesn't exist
func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL UNIQUE,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

// getAppliedMigrations returns the set of applied migration filenames
func getAppliedMigrations(db *sql.DB) (map[string]bool, error) {
	applied := make(map[string]bool)

	rows, err := db.Query(`SELECT filename FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fname string
		if err := rows.Scan(&fname); err != nil {
			return nil, fmt.Errorf("failed to scan migration filename: %w", err)
		}
		applied[fname] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migration rows: %w", err)
	}
	return applied, nil
}

// applyMigration runs one migration and records it in a single transaction
func applyMigration(db *sql.DB, fsys fs.FS, migration *MigrationFile) error {
	content, err := fs.ReadFile(fsys, migration.FilePath)
	if err != nil {
		return fmt.Errorf("failed to read migration file %s: %w", migration.FilePath, err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration %s: %w", migration.FileName, err)
	}
	if _, err := tx.Exec(string(content)); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to execute migration %s: %w", migration.FileName, err)
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (filename) VALUES (?)`, migration.FileName); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to record migration %s: %w", migration.FileName, err)
	}
	return tx.Commit()
}
