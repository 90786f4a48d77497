package database

import (
	"database/sql"
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/go-while/go-easyweb/internal/config"
)

// Database wraps the SQLite connection used for models and sessions
type Database struct {
	mainDB *sql.DB

	dbconfig config.DatabaseConfig

	// Models created with Define, keyed by table name
	models   map[string]*Model
	modelsMu sync.RWMutex

	StopChan chan struct{} // Channel to signal shutdown (will get closed)
	stopOnce sync.Once
}

// OpenDatabase opens (creating if needed) the SQLite database described by
// dbconfig and applies the embedded migrations.
func OpenDatabase(dbconfig config.DatabaseConfig) (*Database, error) {
	if dbconfig.Path == "" {
		dbconfig = config.NewDefaultDatabaseConfig("")
	}

	db := &Database{
		dbconfig: dbconfig,
		models:   make(map[string]*Model),
		StopChan: make(chan struct{}),
	}

	if err := db.initMainDB(); err != nil {
		return nil, fmt.Errorf("failed to initialize main database: %w", err)
	}

	// Run migrations to ensure all tables exist
	if err := db.Migrate(); err != nil {
		if cerr := db.mainDB.Close(); cerr != nil {
			log.Printf("[DB]: Failed to close database after migration error: %v", cerr)
		}
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	log.Printf("[DB]: Database initialized at %s", dbconfig.Path)
	return db, nil
}

// initMainDB opens the database file and configures the pool
func (db *Database) initMainDB() error {
	dbPath := db.dbconfig.Path
	log.Printf("[DB]: Initializing database at: %s", dbPath)

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := createDirIfNotExists(dir); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	// busy_timeout and foreign_keys are per connection, so they go into the DSN
	mainDB, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=30000&_foreign_keys=on")
	if err != nil {
		return fmt.Errorf("failed to open main database: %w", err)
	}

	// Configure connection pool
	mainDB.SetMaxOpenConns(db.dbconfig.MaxOpenConns)
	mainDB.SetMaxIdleConns(db.dbconfig.MaxIdleConns)
	mainDB.SetConnMaxLifetime(db.dbconfig.ConnMaxLifetime)

	// Test connection
	if err := mainDB.Ping(); err != nil {
		if cerr := mainDB.Close(); cerr != nil {
			return fmt.Errorf("failed to ping main database: %w; also failed to close mainDB: %v", err, cerr)
		}
		return fmt.Errorf("failed to ping main database: %w", err)
	}

	// Apply SQLite pragmas for performance
	if err := db.applySQLitePragmas(mainDB); err != nil {
		if cerr := mainDB.Close(); cerr != nil {
			return fmt.Errorf("failed to apply SQLite pragmas: %w; also failed to close mainDB: %v", err, cerr)
		}
		return fmt.Errorf("failed to apply SQLite pragmas: %w", err)
	}

	db.mainDB = mainDB
	return nil
}

// applySQLitePragmas applies performance and configuration pragmas to SQLite connection
func (db *Database) applySQLitePragmas(conn *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 30000", // 30 seconds
	}
	if db.dbconfig.CacheSize != 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA cache_size = %d", db.dbconfig.CacheSize))
	}
	if db.dbconfig.SyncMode != "" {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA synchronous = %s", db.dbconfig.SyncMode))
	}
	if db.dbconfig.TempStore != "" {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA temp_store = %s", db.dbconfig.TempStore))
	}

	if db.dbconfig.WALMode {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
		pragmas = append(pragmas, "PRAGMA wal_autocheckpoint = 1000")
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma '%s': %w", pragma, err)
		}
	}

	return nil
}

// IsDBshutdown reports whether Shutdown has been called
func (db *Database) IsDBshutdown() bool {
	if db == nil {
		return true
	}
	select {
	case <-db.StopChan:
		return true
	default:
		return false
	}
}

// Shutdown signals background tasks to stop and closes the database
func (db *Database) Shutdown() error {
	db.stopOnce.Do(func() { close(db.StopChan) })

	if db.mainDB == nil {
		return nil
	}
	if err := db.mainDB.Close(); err != nil {
		return fmt.Errorf("failed to close main database: %w", err)
	}
	log.Printf("[DB]: Database closed")
	return nil
}
