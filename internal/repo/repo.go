package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"reactboard/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// IsUniqueViolation reports whether err is a UNIQUE constraint failure,
// as opposed to some other storage error. Callers racing on an insert use
// it to tell "lost the race" apart from "the write is broken".
func IsUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func newID() string {
	return uuid.NewString()
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func scanPerson(row *sql.Row) (domain.Person, error) {
	var p domain.Person
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) InsertPerson(ctx context.Context, p domain.Person) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO persons(id,name,email,created_at) VALUES (?,?,?,?)`,
		p.ID, p.Name, p.Email, p.CreatedAt)
	return err
}

func (r Repo) GetPerson(ctx context.Context, id string) (domain.Person, error) {
	return scanPerson(r.DB.QueryRowContext(ctx, `SELECT id,name,email,created_at FROM persons WHERE id=?`, id))
}

func (r Repo) GetPersonByEmail(ctx context.Context, email string) (domain.Person, error) {
	return scanPerson(r.DB.QueryRowContext(ctx, `SELECT id,name,email,created_at FROM persons WHERE email=?`, email))
}

// EnsurePerson returns the person with the given email, creating one if
// absent. Person identity is immutable once created.
func (r Repo) EnsurePerson(ctx context.Context, name, email string) (domain.Person, error) {
	p, err := r.GetPersonByEmail(ctx, email)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return domain.Person{}, err
	}
	p = domain.Person{
		ID:        newID(),
		Name:      name,
		Email:     email,
		CreatedAt: nowRFC3339(),
	}
	if err := r.InsertPerson(ctx, p); err != nil {
		return domain.Person{}, err
	}
	return p, nil
}
