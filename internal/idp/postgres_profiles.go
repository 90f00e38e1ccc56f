package idp

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"sessiongate/internal/identity"
)

// PostgresProfileStore implements identity.ProfileStore using the profiles table.
type PostgresProfileStore struct {
	db *sqlx.DB
}

// NewPostgresProfileStore creates a new PostgresProfileStore.
func NewPostgresProfileStore(db *sqlx.DB) *PostgresProfileStore {
	return &PostgresProfileStore{db: db}
}

// FindProfile loads the profile for id.
func (s *PostgresProfileStore) FindProfile(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	const query = `
		SELECT id, email, display_name, avatar_url, phone, birth_date, status, last_seen_at,
		       theme, locale, created_at, updated_at
		FROM profiles
		WHERE id = $1
	`

	var row profileRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, identity.ErrProfileNotFound
		}
		return nil, err
	}

	return row.toUser(), nil
}

// CreateProfile inserts a new profile.
func (s *PostgresProfileStore) CreateProfile(ctx context.Context, user identity.User) (identity.User, error) {
	const query = `
		INSERT INTO profiles (id, email, display_name, avatar_url, phone, birth_date, status, last_seen_at,
		                      theme, locale, created_at, updated_at)
		VALUES (:id, :email, :display_name, :avatar_url, :phone, :birth_date, :status, :last_seen_at,
		        :theme, :locale, :created_at, :updated_at)
	`

	if _, err := s.db.NamedExecContext(ctx, query, newProfileRow(user)); err != nil {
		if isUniqueViolation(err) {
			return identity.User{}, identity.ErrEmailTaken
		}
		return identity.User{}, err
	}
	return user, nil
}

// UpdateProfile overwrites the editable columns of an existing profile.
func (s *PostgresProfileStore) UpdateProfile(ctx context.Context, user identity.User) (identity.User, error) {
	const query = `
		UPDATE profiles
		SET display_name = :display_name, avatar_url = :avatar_url, phone = :phone, birth_date = :birth_date,
		    status = :status, last_seen_at = :last_seen_at, theme = :theme, locale = :locale,
		    updated_at = :updated_at
		WHERE id = :id
	`

	result, err := s.db.NamedExecContext(ctx, query, newProfileRow(user))
	if err != nil {
		return identity.User{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return identity.User{}, err
	}
	if affected == 0 {
		return identity.User{}, identity.ErrProfileNotFound
	}
	return user, nil
}

// EmailExists reports whether a profile is registered with email.
func (s *PostgresProfileStore) EmailExists(ctx context.Context, email string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM profiles WHERE lower(email) = lower($1))`

	var exists bool
	if err := s.db.GetContext(ctx, &exists, query, email); err != nil {
		return false, err
	}
	return exists, nil
}

type profileRow struct {
	ID          uuid.UUID    `db:"id"`
	Email       string       `db:"email"`
	DisplayName string       `db:"display_name"`
	AvatarURL   string       `db:"avatar_url"`
	Phone       string       `db:"phone"`
	BirthDate   sql.NullTime `db:"birth_date"`
	Status      string       `db:"status"`
	LastSeenAt  sql.NullTime `db:"last_seen_at"`
	Theme       string       `db:"theme"`
	Locale      string       `db:"locale"`
	CreatedAt   time.Time    `db:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at"`
}

func newProfileRow(u identity.User) profileRow {
	return profileRow{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Phone:       u.Phone,
		BirthDate:   nullTime(u.BirthDate),
		Status:      string(u.Status),
		LastSeenAt:  nullTime(u.LastSeenAt),
		Theme:       string(u.Preferences.Theme),
		Locale:      u.Preferences.Locale,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func (r *profileRow) toUser() *identity.User {
	return &identity.User{
		ID:          r.ID,
		Email:       r.Email,
		DisplayName: r.DisplayName,
		AvatarURL:   r.AvatarURL,
		Phone:       r.Phone,
		BirthDate:   timePtr(r.BirthDate),
		Status:      identity.Status(r.Status),
		LastSeenAt:  timePtr(r.LastSeenAt),
		Preferences: identity.Preferences{
			Theme:  identity.Theme(r.Theme),
			Locale: r.Locale,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
