package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"
	"time"
)

// DataType is the SQLite column type of a model attribute
type DataType string

const (
	TypeString  DataType = "VARCHAR(255)"
	TypeText    DataType = "TEXT"
	TypeInteger DataType = "INTEGER"
	TypeFloat   DataType = "REAL"
	TypeBoolean DataType = "BOOLEAN"
	TypeDate    DataType = "DATETIME"
	TypeUUID    DataType = "UUID"
)

var (
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrUnknownColumn     = errors.New("unknown column")
	ErrRecordNotFound    = errors.New("record not found")

	identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Columns every model gets
var reservedColumns = map[string]bool{"id": true, "created_at": true, "updated_at": true}

// Tables owned by the migrations
var reservedTables = map[string]bool{"sessions": true, "schema_migrations": true}

// Attribute describes one model column
type Attribute struct {
	Name    string
	Type    DataType
	NotNull bool
	Unique  bool
}

// Values maps column names to values for inserts, updates and filters
type Values map[string]any

// Row is one record read back from a model table
type Row map[string]any

// Model is a table created by Define
type Model struct {
	Name       string
	Attributes []Attribute

	db      *Database
	columns map[string]bool
}

func validateIdentifier(name string) error {
	if !identifierRe.MatchString(name) {
		return fmt.Errorf("%w: '%s'", ErrInvalidIdentifier, name)
	}
	return nil
}

// Define declares a model and creates its table if it does not exist yet.
// Each table gets an autoincrement id plus created_at and updated_at.
// Redefining a model replaces the registered definition but never alters
// an existing table.
func (db *Database) Define(ctx context.Context, name string, attrs []Attribute) (*Model, error) {
	if err := validateIdentifier(name); err != nil {
		return nil, err
	}
	if reservedTables[strings.ToLower(name)] {
		return nil, fmt.Errorf("%w: table '%s' is reserved", ErrInvalidIdentifier, name)
	}

	m := &Model{
		Name:       name,
		Attributes: attrs,
		db:         db,
		columns:    map[string]bool{"id": true, "created_at": true, "updated_at": true},
	}

	defs := []string{"id INTEGER PRIMARY KEY AUTOINCREMENT"}
	for _, attr := range attrs {
		if err := validateIdentifier(attr.Name); err != nil {
			return nil, err
		}
		if reservedColumns[attr.Name] {
			return nil, fmt.Errorf("%w: '%s' is reserved", ErrInvalidIdentifier, attr.Name)
		}
		if m.columns[attr.Name] {
			return nil, fmt.Errorf("duplicate attribute '%s' in model '%s'", attr.Name, name)
		}
		typ := attr.Type
		if typ == "" {
			typ = TypeString
		}
		def := attr.Name + " " + string(typ)
		if attr.NotNull {
			def += " NOT NULL"
		}
		if attr.Unique {
			def += " UNIQUE"
		}
		defs = append(defs, def)
		m.columns[attr.Name] = true
	}
	defs = append(defs, "created_at DATETIME NOT NULL", "updated_at DATETIME NOT NULL")

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", name, strings.Join(defs, ",\n\t"))
	if _, err := retryableExec(ctx, db.mainDB, ddl); err != nil {
		return nil, fmt.Errorf("failed to sync model '%s': %w", name, err)
	}

	db.modelsMu.Lock()
	db.models[name] = m
	db.modelsMu.Unlock()

	log.Printf("[DB]: Model '%s' synced (%d attributes)", name, len(attrs))
	return m, nil
}

// Model returns a model registered with Define
func (db *Database) Model(name string) (*Model, bool) {
	db.modelsMu.RLock()
	defer db.modelsMu.RUnlock()
	m, ok := db.models[name]
	return m, ok
}

// sortedKeys returns the keys of v in a stable order after checking they are columns
func (m *Model) sortedKeys(v Values) ([]string, error) {
	keys := make([]string, 0, len(v))
	for k := range v {
		if !m.columns[k] {
			return nil, fmt.Errorf("%w '%s' in model '%s'", ErrUnknownColumn, k, m.Name)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// whereClause builds "WHERE a = ? AND b = ?" for equality filters
func (m *Model) whereClause(where Values) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}
	keys, err := m.sortedKeys(where)
	if err != nil {
		return "", nil, err
	}
	conds := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		conds[i] = k + " = ?"
		args[i] = where[k]
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// Create inserts a record and returns its id
func (m *Model) Create(ctx context.Context, values Values) (int64, error) {
	keys, err := m.sortedKeys(values)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	cols := make([]string, 0, len(keys)+2)
	args := make([]any, 0, len(keys)+2)
	for _, k := range keys {
		if reservedColumns[k] {
			continue
		}
		cols = append(cols, k)
		args = append(args, values[k])
	}
	cols = append(cols, "created_at", "updated_at")
	args = append(args, now, now)

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", m.Name, strings.Join(cols, ", "), placeholders)

	result, err := retryableExec(ctx, m.db.mainDB, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", m.Name, err)
	}
	return result.LastInsertId()
}

// FindByID returns the record with the given id
func (m *Model) FindByID(ctx context.Context, id int64) (Row, error) {
	return m.FindOne(ctx, Values{"id": id})
}

// FindOne returns the first record (lowest id) matching where
func (m *Model) FindOne(ctx context.Context, where Values) (Row, error) {
	rows, err := m.find(ctx, where, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrRecordNotFound
	}
	return rows[0], nil
}

// FindAll returns all records matching where ordered by id
func (m *Model) FindAll(ctx context.Context, where Values) ([]Row, error) {
	return m.find(ctx, where, 0)
}

func (m *Model) find(ctx context.Context, where Values, limit int) ([]Row, error) {
	clause, args, err := m.whereClause(where)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT * FROM %s%s ORDER BY id", m.Name, clause)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := retryableQuery(ctx, m.db.mainDB, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", m.Name, err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// Update sets values on all records matching where and returns the number changed
func (m *Model) Update(ctx context.Context, where Values, values Values) (int64, error) {
	keys, err := m.sortedKeys(values)
	if err != nil {
		return 0, err
	}
	sets := make([]string, 0, len(keys)+1)
	args := make([]any, 0, len(keys)+1+len(where))
	for _, k := range keys {
		if reservedColumns[k] {
			continue
		}
		sets = append(sets, k+" = ?")
		args = append(args, values[k])
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC())

	clause, whereArgs, err := m.whereClause(where)
	if err != nil {
		return 0, err
	}
	args = append(args, whereArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s%s", m.Name, strings.Join(sets, ", "), clause)
	result, err := retryableExec(ctx, m.db.mainDB, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", m.Name, err)
	}
	return result.RowsAffected()
}

// Destroy deletes all records matching where and returns the number deleted
func (m *Model) Destroy(ctx context.Context, where Values) (int64, error) {
	clause, args, err := m.whereClause(where)
	if err != nil {
		return 0, err
	}
	result, err := retryableExec(ctx, m.db.mainDB, fmt.Sprintf("DELETE FROM %s%s", m.Name, clause), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to destroy %s: %w", m.Name, err)
	}
	return result.RowsAffected()
}

// Count returns the number of records matching where
func (m *Model) Count(ctx context.Context, where Values) (int64, error) {
	clause, args, err := m.whereClause(where)
	if err != nil {
		return 0, err
	}
	var n int64
	err = retryableQueryRowScan(ctx, m.db.mainDB, fmt.Sprintf("SELECT COUNT(*) FROM %s%s", m.Name, clause), args, &n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", m.Name, err)
	}
	return n, nil
}

// scanRows reads all rows into maps. TEXT values come back as strings.
func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
