package orm

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// Supported database drivers.
const (
	// DriverSQLite is the pure Go driver from modernc.org/sqlite.
	DriverSQLite = "sqlite"
	// DriverSQLite3 is the cgo driver from github.com/mattn/go-sqlite3.
	DriverSQLite3 = "sqlite3"
)

// StoreConfig configures a Store.
type StoreConfig struct {
	// Driver is DriverSQLite or DriverSQLite3. Defaults to DriverSQLite.
	Driver string
	// DSN maps persistence units to data source names.
	DSN map[string]string
	// Dir, if set, holds a database file for each persistence unit without a
	// DSN. Otherwise such units use an in-memory database.
	Dir string
}

// Store keeps the databases of all persistence units. It is safe for
// concurrent use.
type Store struct {
	cfg StoreConfig

	mu     sync.Mutex
	dbs    map[string]*unitDB
	models map[string]EntityModel
}

// unitDB is the database of one persistence unit. Rows go through gorm, which
// shares the unit's connection.
type unitDB struct {
	sql *sql.DB
	gdb *gorm.DB
}

// NewStore returns a store. Databases are opened when first needed.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}
	if cfg.Driver != DriverSQLite && cfg.Driver != DriverSQLite3 {
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
	return &Store{cfg: cfg, dbs: map[string]*unitDB{}, models: map[string]EntityModel{}}, nil
}

func (s *Store) dsn(pu string) string {
	if dsn, ok := s.cfg.DSN[pu]; ok {
		return dsn
	}
	if s.cfg.Dir == "" {
		return ":memory:"
	}
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, pu)
	return filepath.Join(s.cfg.Dir, name+".db")
}

// DB returns the database of the given persistence unit, opening it if needed.
func (s *Store) DB(pu string) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, err := s.dbLocked(pu)
	if err != nil {
		return nil, err
	}
	return db.sql, nil
}

func (s *Store) dbLocked(pu string) (*unitDB, error) {
	if db, ok := s.dbs[pu]; ok {
		return db, nil
	}
	sqlDB, err := sql.Open(s.cfg.Driver, s.dsn(pu))
	if err != nil {
		return nil, fmt.Errorf("failed to open database for persistence unit %s: %w", pu, err)
	}
	// in-memory databases are per connection
	sqlDB.SetMaxOpenConns(1)
	gormDB, err := gorm.Open(&gormsqlite.Dialector{DriverName: s.cfg.Driver, Conn: sqlDB}, &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to open database for persistence unit %s: %w", pu, err)
	}
	db := &unitDB{sql: sqlDB, gdb: gormDB}
	s.dbs[pu] = db
	return db, nil
}

func (s *Store) gormDB(pu string) (*gorm.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, err := s.dbLocked(pu)
	if err != nil {
		return nil, err
	}
	return db.gdb, nil
}

// Units returns the persistence units with an open database, sorted.
func (s *Store) Units() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	units := make([]string, 0, len(s.dbs))
	for pu := range s.dbs {
		units = append(units, pu)
	}
	sort.Strings(units)
	return units
}

// Migrate creates the tables of the given models in each of their persistence
// units.
func (s *Store) Migrate(ctx context.Context, models []EntityModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range models {
		if len(m.PersistenceUnits) == 0 {
			return fmt.Errorf("entity %s has no persistence unit", m.ClassName)
		}
		for _, pu := range m.PersistenceUnits {
			db, err := s.dbLocked(pu)
			if err != nil {
				return err
			}
			if err := db.gdb.WithContext(ctx).Exec(createTableSQL(m)).Error; err != nil {
				return fmt.Errorf("failed to create table %s for %s in persistence unit %s: %w", m.Table, m.ClassName, pu, err)
			}
		}
		s.models[m.ClassName] = m
	}
	return nil
}

func createTableSQL(m EntityModel) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE IF NOT EXISTS %s (", quoteIdent(m.Table))
	for i, c := range m.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s %s", quoteIdent(c.Name), c.SQLType)
		if c.PrimaryKey {
			sb.WriteString(" PRIMARY KEY")
		} else if c.NotNull {
			sb.WriteString(" NOT NULL")
		}
	}
	sb.WriteString(")")
	return sb.String()
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func (s *Store) model(className string) (EntityModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.models[className]
	if !ok {
		return EntityModel{}, fmt.Errorf("entity %s is not migrated", className)
	}
	return m, nil
}

func hasUnit(m EntityModel, pu string) bool {
	for _, u := range m.PersistenceUnits {
		if u == pu {
			return true
		}
	}
	return false
}

// Insert stores a row for the entity in the given persistence unit. values is
// keyed by field name. The primary key is taken from values when given, as a
// uuid.UUID or its string form, and is a new uuid otherwise. The key is
// returned.
func (s *Store) Insert(ctx context.Context, pu, className string, values map[string]any) (uuid.UUID, error) {
	m, err := s.model(className)
	if err != nil {
		return uuid.Nil, err
	}
	if !hasUnit(m, pu) {
		return uuid.Nil, fmt.Errorf("entity %s is not managed in persistence unit %s", className, pu)
	}
	pk, ok := m.PrimaryKey()
	if !ok {
		return uuid.Nil, fmt.Errorf("entity %s has no primary key", className)
	}
	for field := range values {
		if !hasField(m, field) {
			return uuid.Nil, fmt.Errorf("entity %s has no field %s", className, field)
		}
	}
	id := uuid.New()
	if v, ok := values[pk.Field]; ok {
		if id, err = toUUID(v); err != nil {
			return uuid.Nil, fmt.Errorf("invalid %s for %s: %w", pk.Field, className, err)
		}
	}

	row := map[string]any{pk.Name: id.String()}
	for _, c := range m.Columns {
		if v, ok := values[c.Field]; ok && !c.PrimaryKey {
			row[c.Name] = v
		}
	}
	db, err := s.gormDB(pu)
	if err != nil {
		return uuid.Nil, err
	}
	if err := db.WithContext(ctx).Table(m.Table).Create(row).Error; err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert %s: %w", className, err)
	}
	return id, nil
}

func toUUID(v any) (uuid.UUID, error) {
	switch v := v.(type) {
	case uuid.UUID:
		return v, nil
	case string:
		return uuid.Parse(v)
	default:
		return uuid.Nil, fmt.Errorf("unsupported key type %T", v)
	}
}

func hasField(m EntityModel, field string) bool {
	for _, c := range m.Columns {
		if c.Field == field {
			return true
		}
	}
	return false
}

// Count returns the number of rows in the entity's table in the given
// persistence unit.
func (s *Store) Count(ctx context.Context, pu, className string) (int, error) {
	m, err := s.model(className)
	if err != nil {
		return 0, err
	}
	db, err := s.gormDB(pu)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.WithContext(ctx).Table(m.Table).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", className, err)
	}
	return int(n), nil
}

// Close closes all databases.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for pu, db := range s.dbs {
		if err := db.sql.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close database for persistence unit %s: %w", pu, err)
		}
		delete(s.dbs, pu)
	}
	return firstErr
}
