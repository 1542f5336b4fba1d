package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Queryable represents a database connection that can execute queries.
// Both *sql.DB and *sql.Tx implement this interface.
type Queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// BaseRepository provides common functionality for all repositories.
type BaseRepository struct {
	q Queryable
}

// NewBaseRepository creates a new base repository bound to q.
func NewBaseRepository(q Queryable) BaseRepository {
	return BaseRepository{q: q}
}

// Q returns the connection or transaction the repository runs on.
func (r *BaseRepository) Q() Queryable {
	return r.q
}

// Now returns the current time in UTC for database timestamps.
func (r *BaseRepository) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// GenerateID creates a new UUID for use as a primary key.
func GenerateID() string {
	return uuid.NewString()
}

// Store groups every repository over one connection or transaction.
type Store struct {
	db   *DB
	inTx bool

	Templates   *TemplateRepository
	Occurrences *OccurrenceRepository
	Events      *EventRepository
	Roles       *RoleRepository
	Bookings    *BookingRepository
	Rules       *RuleRepository
	Instances   *InstanceRepository
	Dispatch    *DispatchRepository
	Groups      *GroupRepository
	Users       *UserRepository
}

// NewStore creates a store running directly on the database.
func NewStore(db *DB) *Store {
	return newStore(db, db, false)
}

func newStore(db *DB, q Queryable, inTx bool) *Store {
	return &Store{
		db:          db,
		inTx:        inTx,
		Templates:   NewTemplateRepository(q),
		Occurrences: NewOccurrenceRepository(q),
		Events:      NewEventRepository(q),
		Roles:       NewRoleRepository(q),
		Bookings:    NewBookingRepository(q),
		Rules:       NewRuleRepository(q),
		Instances:   NewInstanceRepository(q),
		Dispatch:    NewDispatchRepository(q),
		Groups:      NewGroupRepository(q),
		Users:       NewUserRepository(q),
	}
}

// DB returns the underlying database.
func (s *Store) DB() *DB {
	return s.db
}

// InTx runs fn with a store bound to a single transaction. Nested calls reuse
// the outer transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		return fn(newStore(s.db, tx, true))
	})
}

// nullableInt64 converts an optional id to a SQL argument.
func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding json column: %w", err)
	}
	return string(b), nil
}

func decodeJSON(s string, v any) error {
	if s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("decoding json column: %w", err)
	}
	return nil
}
