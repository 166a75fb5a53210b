package credentials

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/ajitpratap0/gridfeed/pkg/errors"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// goose keeps its configuration in package state
var migrateMu sync.Mutex

// Dialect names a supported SQL backend
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) driver() (string, error) {
	switch d {
	case DialectSQLite:
		return "sqlite", nil
	case DialectPostgres:
		return "pgx", nil
	default:
		return "", fmt.Errorf("unsupported credential store dialect %q", d)
	}
}

func (d Dialect) gooseDialect() string {
	if d == DialectSQLite {
		return "sqlite3"
	}
	return "postgres"
}

// SQLStore keeps encrypted credentials in SQLite or PostgreSQL
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	cipher  *Cipher
	logger  *zap.Logger
	now     func() time.Time
}

// OpenSQLStore opens the database, applies pending migrations and returns
// a store sealing secrets with c.
func OpenSQLStore(ctx context.Context, dialect Dialect, dsn string, c *Cipher, logger *zap.Logger) (*SQLStore, error) {
	if c == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "credential store requires a cipher")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	driver, err := dialect.driver()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid credential store")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeStorage, "failed to open credential store")
	}
	if dialect == DialectSQLite {
		// One connection keeps :memory: databases intact and avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeStorage, "failed to connect to credential store")
	}

	store := &SQLStore{
		db:      db,
		dialect: dialect,
		cipher:  c,
		logger:  logger.With(zap.String("component", "credential_store"), zap.String("dialect", string(dialect))),
		now:     time.Now,
	}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(embeddedMigrations)
	goose.SetLogger(gooseLogger{s.logger.Sugar()})
	if err := goose.SetDialect(s.dialect.gooseDialect()); err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to set goose dialect")
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to run credential store migrations")
	}
	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func aad(username, realm string) string {
	return realm + "\x00" + username
}

// Find returns the decrypted credentials stored under (username, realm)
func (s *SQLStore) Find(ctx context.Context, username, realm string) ([]Credential, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT ciphertext, created_at FROM credentials WHERE username = ? AND realm = ?`),
		username, realm)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeStorage, "failed to query credentials")
	}
	defer rows.Close()

	var out []Credential
	for rows.Next() {
		var sealed string
		var created int64
		if err := rows.Scan(&sealed, &created); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeStorage, "failed to scan credential")
		}
		secret, err := s.cipher.Open(sealed, aad(username, realm))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeStorage, "failed to decrypt credential").
				WithDetail("realm", realm)
		}
		out = append(out, Credential{
			Username:  username,
			Realm:     realm,
			Secret:    secret,
			CreatedAt: time.Unix(created, 0).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeStorage, "failed to read credentials")
	}
	return out, nil
}

// Create seals and inserts a secret
func (s *SQLStore) Create(ctx context.Context, secret, username, realm string) error {
	sealed, err := s.cipher.Seal(secret, aad(username, realm))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to encrypt credential")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var count int
	if err := tx.QueryRowContext(ctx,
		s.rebind(`SELECT COUNT(*) FROM credentials WHERE username = ? AND realm = ?`),
		username, realm).Scan(&count); err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to check existing credential")
	}
	if count > 0 {
		return errors.New(errors.ErrorTypeConflict,
			fmt.Sprintf("credential %s already exists in realm %s", username, realm))
	}

	if _, err := tx.ExecContext(ctx,
		s.rebind(`INSERT INTO credentials (realm, username, ciphertext, key_id, created_at) VALUES (?, ?, ?, ?, ?)`),
		realm, username, sealed, s.cipher.KeyID(), s.now().Unix()); err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to insert credential")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to commit credential")
	}

	s.logger.Debug("credential stored", zap.String("realm", realm), zap.String("username", username))
	return nil
}

// Delete removes the secret stored under (username, realm)
func (s *SQLStore) Delete(ctx context.Context, username, realm string) error {
	res, err := s.db.ExecContext(ctx,
		s.rebind(`DELETE FROM credentials WHERE username = ? AND realm = ?`),
		username, realm)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to delete credential")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to delete credential")
	}
	if n == 0 {
		return errors.New(errors.ErrorTypeNotFound,
			fmt.Sprintf("credential %s not found in realm %s", username, realm))
	}
	return nil
}

// List returns summaries ordered by realm then username
func (s *SQLStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT realm, username, created_at FROM credentials ORDER BY realm, username`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeStorage, "failed to list credentials")
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var created int64
		if err := rows.Scan(&sum.Realm, &sum.Username, &created); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeStorage, "failed to scan credential")
		}
		sum.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeStorage, "failed to list credentials")
	}
	return out, nil
}

// Close closes the database
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// gooseLogger routes migration output through zap instead of stdout
type gooseLogger struct {
	s *zap.SugaredLogger
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) { l.s.Errorf(format, v...) }
func (l gooseLogger) Printf(format string, v ...interface{}) { l.s.Debugf(format, v...) }
