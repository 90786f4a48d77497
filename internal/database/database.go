// Package database provides the SQLite layer of go-easyweb: model
// definitions, the session store and migrations.
package database

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver
)

// GetMainDB returns the database connection for direct access
func (db *Database) GetMainDB() *sql.DB {
	return db.mainDB
}

// Path returns the database file path
func (db *Database) Path() string {
	return db.dbconfig.Path
}
