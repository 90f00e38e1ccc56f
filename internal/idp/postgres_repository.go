package idp

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"sessiongate/internal/identity"
)

const uniqueViolation = "23505"

// PostgresRepository implements AccountRepository and SessionRepository using PostgreSQL.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const accountColumns = `id, email, password_hash, display_name, oauth_provider, oauth_provider_id, created_at, updated_at, last_sign_in_at`

// FindAccountByID looks up an account by id.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return r.findAccount(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

// FindAccountByEmail looks up an account by email address.
func (r *PostgresRepository) FindAccountByEmail(ctx context.Context, email string) (*Account, error) {
	return r.findAccount(ctx, `SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)`, email)
}

// FindAccountByOAuth looks up an account by its OAuth provider and provider ID.
func (r *PostgresRepository) FindAccountByOAuth(ctx context.Context, provider, providerID string) (*Account, error) {
	return r.findAccount(ctx, `SELECT `+accountColumns+` FROM accounts WHERE oauth_provider = $1 AND oauth_provider_id = $2`, provider, providerID)
}

func (r *PostgresRepository) findAccount(ctx context.Context, query string, args ...any) (*Account, error) {
	var row accountRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toAccount(), nil
}

// CreateAccount inserts a new account.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account Account) (Account, error) {
	const query = `
		INSERT INTO accounts (id, email, password_hash, display_name, oauth_provider, oauth_provider_id, created_at, updated_at, last_sign_in_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		account.ID,
		account.Email,
		account.PasswordHash,
		account.DisplayName,
		account.OAuthProvider,
		account.OAuthProviderID,
		account.CreatedAt,
		account.UpdatedAt,
		account.LastSignInAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Account{}, identity.ErrEmailTaken
		}
		return Account{}, err
	}

	return account, nil
}

// UpdateAccountLogin records a sign-in and refreshes the display name when one is given.
func (r *PostgresRepository) UpdateAccountLogin(ctx context.Context, id uuid.UUID, displayName string) error {
	const query = `
		UPDATE accounts
		SET display_name = COALESCE(NULLIF($2, ''), display_name), last_sign_in_at = $3, updated_at = $3
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, id, displayName, time.Now().UTC())
	return err
}

// UpdatePasswordHash replaces the stored password hash.
func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	const query = `UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, hash, time.Now().UTC())
	return err
}

// CreateRecovery inserts a recovery grant.
func (r *PostgresRepository) CreateRecovery(ctx context.Context, recovery Recovery, tokenHash string) error {
	const query = `
		INSERT INTO recoveries (token_hash, account_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.ExecContext(ctx, query, tokenHash, recovery.AccountID, recovery.ExpiresAt, recovery.CreatedAt)
	return err
}

// ConsumeRecovery deletes the grant for tokenHash and returns it.
func (r *PostgresRepository) ConsumeRecovery(ctx context.Context, tokenHash string) (*Recovery, error) {
	const query = `
		DELETE FROM recoveries
		WHERE token_hash = $1
		RETURNING account_id, expires_at, created_at
	`

	var row recoveryRow
	if err := r.db.GetContext(ctx, &row, query, tokenHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &Recovery{AccountID: row.AccountID, ExpiresAt: row.ExpiresAt, CreatedAt: row.CreatedAt}, nil
}

// CreateSession inserts a new session.
func (r *PostgresRepository) CreateSession(ctx context.Context, session Session, tokenHash string) error {
	const query = `
		INSERT INTO auth_sessions (id, account_id, session_token_hash, expires_at, created_at, user_agent, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.AccountID,
		tokenHash,
		session.ExpiresAt,
		session.CreatedAt,
		session.UserAgent,
		session.IPAddress,
	)
	return err
}

// FindSessionByTokenHash looks up a session by token hash.
func (r *PostgresRepository) FindSessionByTokenHash(ctx context.Context, tokenHash string) (*Session, error) {
	const query = `
		SELECT id, account_id, expires_at, created_at, user_agent, ip_address
		FROM auth_sessions
		WHERE session_token_hash = $1
	`

	var row sessionRow
	if err := r.db.GetContext(ctx, &row, query, tokenHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &Session{
		ID:        row.ID,
		AccountID: row.AccountID,
		ExpiresAt: row.ExpiresAt,
		CreatedAt: row.CreatedAt,
		UserAgent: row.UserAgent,
		IPAddress: row.IPAddress,
	}, nil
}

// DeleteSessionByTokenHash removes a session.
func (r *PostgresRepository) DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error {
	const query = `DELETE FROM auth_sessions WHERE session_token_hash = $1`
	_, err := r.db.ExecContext(ctx, query, tokenHash)
	return err
}

// DeleteExpiredSessions removes all expired sessions.
func (r *PostgresRepository) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	const query = `DELETE FROM auth_sessions WHERE expires_at < $1`
	result, err := r.db.ExecContext(ctx, query, time.Now())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

type accountRow struct {
	ID              uuid.UUID    `db:"id"`
	Email           string       `db:"email"`
	PasswordHash    string       `db:"password_hash"`
	DisplayName     string       `db:"display_name"`
	OAuthProvider   string       `db:"oauth_provider"`
	OAuthProviderID string       `db:"oauth_provider_id"`
	CreatedAt       time.Time    `db:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
	LastSignInAt    sql.NullTime `db:"last_sign_in_at"`
}

func (r *accountRow) toAccount() *Account {
	a := &Account{
		ID:              r.ID,
		Email:           r.Email,
		PasswordHash:    r.PasswordHash,
		DisplayName:     r.DisplayName,
		OAuthProvider:   r.OAuthProvider,
		OAuthProviderID: r.OAuthProviderID,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.LastSignInAt.Valid {
		t := r.LastSignInAt.Time
		a.LastSignInAt = &t
	}
	return a
}

type sessionRow struct {
	ID        uuid.UUID `db:"id"`
	AccountID uuid.UUID `db:"account_id"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
	UserAgent string    `db:"user_agent"`
	IPAddress string    `db:"ip_address"`
}

type recoveryRow struct {
	AccountID uuid.UUID `db:"account_id"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}
