package snapstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

var sqlIdentPartRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// sqlStore keeps snapshots in a single k/v/ea table. Expiry (ea) is unix millis and is
// enforced at read time; expired rows are swept on the next write.
type sqlStore struct {
	db         *sql.DB
	dialect    sqlDialect
	table      string
	prefix     string
	defaultTTL time.Duration
}

type sqlDialect int

const (
	dialectSQLite sqlDialect = iota
	dialectPostgres
	dialectMySQL
)

func dialectFor(driverName string) (sqlDialect, error) {
	switch driverName {
	case "sqlite", "sqlite3":
		return dialectSQLite, nil
	case "pgx", "postgres":
		return dialectPostgres, nil
	case "mysql":
		return dialectMySQL, nil
	default:
		return 0, fmt.Errorf("snapstore: unsupported sql driver %q", driverName)
	}
}

func newSQLStore(ctx context.Context, cfg Config) (Store, error) {
	if cfg.SQLDriverName == "" || cfg.SQLDSN == "" {
		return nil, errors.New("snapstore: sql driver requires driver name and dsn")
	}
	dialect, err := dialectFor(cfg.SQLDriverName)
	if err != nil {
		return nil, err
	}
	table := cfg.SQLTable
	if table == "" {
		table = defaultSQLTable
	}
	if err := validateSQLTableName(table); err != nil {
		return nil, err
	}
	db, err := sql.Open(cfg.SQLDriverName, cfg.SQLDSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	s := &sqlStore{
		db:         db,
		dialect:    dialect,
		table:      table,
		prefix:     cfg.Prefix,
		defaultTTL: ttl,
	}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqlStore) Driver() Driver {
	return DriverSQL
}

// Close closes the connection pool opened for the store.
func (s *sqlStore) Close() error {
	return s.db.Close()
}

func (s *sqlStore) ensureSchema(ctx context.Context) error {
	var stmt string
	switch s.dialect {
	case dialectPostgres:
		stmt = `CREATE TABLE IF NOT EXISTS %s (k TEXT PRIMARY KEY, v BYTEA NOT NULL, ea BIGINT NOT NULL)`
	case dialectMySQL:
		stmt = `CREATE TABLE IF NOT EXISTS %s (k VARBINARY(255) PRIMARY KEY, v LONGBLOB NOT NULL, ea BIGINT NOT NULL) ENGINE=InnoDB`
	default:
		stmt = `CREATE TABLE IF NOT EXISTS %s (k TEXT PRIMARY KEY, v BLOB NOT NULL, ea INTEGER NOT NULL)`
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(stmt, s.table))
	return err
}

func (s *sqlStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query := fmt.Sprintf("SELECT v FROM %s WHERE k = %s AND ea > %s", s.table, s.ph(1), s.ph(2))
	var v []byte
	err := s.db.QueryRowContext(ctx, query, s.rowKey(key), time.Now().UnixMilli()).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cloneBytes(v), true, nil
}

func (s *sqlStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	now := time.Now()
	exp := now.Add(ttl).UnixMilli()
	if _, err := s.db.ExecContext(ctx, s.upsertSQL(), s.rowKey(key), value, exp); err != nil {
		return err
	}
	sweep := fmt.Sprintf("DELETE FROM %s WHERE ea <= %s", s.table, s.ph(1))
	_, err := s.db.ExecContext(ctx, sweep, now.UnixMilli())
	return err
}

func (s *sqlStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE k = %s", s.table, s.ph(1)), s.rowKey(key))
	return err
}

// Flush deletes only rows under the store prefix so several stores can share a table.
func (s *sqlStore) Flush(ctx context.Context) error {
	if s.prefix == "" {
		_, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", s.table))
		return err
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE k LIKE %s", s.table, s.ph(1)), s.prefix+":%")
	return err
}

func (s *sqlStore) rowKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func (s *sqlStore) upsertSQL() string {
	p1, p2, p3 := s.ph(1), s.ph(2), s.ph(3)
	switch s.dialect {
	case dialectMySQL:
		return fmt.Sprintf("INSERT INTO %s (k, v, ea) VALUES (%s, %s, %s) ON DUPLICATE KEY UPDATE v = VALUES(v), ea = VALUES(ea)", s.table, p1, p2, p3)
	default:
		return fmt.Sprintf("INSERT INTO %s (k, v, ea) VALUES (%s, %s, %s) ON CONFLICT (k) DO UPDATE SET v = excluded.v, ea = excluded.ea", s.table, p1, p2, p3)
	}
}

// ph returns the i-th positional placeholder for the dialect.
func (s *sqlStore) ph(i int) string {
	if s.dialect == dialectPostgres {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

func validateSQLTableName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("snapstore: sql table name is required")
	}
	for _, part := range strings.Split(name, ".") {
		if !sqlIdentPartRE.MatchString(part) {
			return fmt.Errorf("snapstore: invalid sql table name %q", name)
		}
	}
	return nil
}
