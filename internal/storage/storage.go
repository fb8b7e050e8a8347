package storage

import (
	"context"
	"errors"
	"fmt"

	"accounts_service/internal/models"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const usersTable = "users"

// Storage-level sentinels. The service layer maps these onto the auth error
// taxonomy; storage itself stays free of transport concerns.
var (
	ErrIdentityNotFound = errors.New("identity not found")
	ErrEmailTaken       = errors.New("email already taken")
)

// Storage is the credential store contract. All operations are atomic with
// respect to the unique-email constraint.
type Storage interface {
	CreateIdentity(ctx context.Context, email, passwordHash string) (models.Identity, error)
	IdentityByEmail(ctx context.Context, email string) (models.Identity, error)
	ConfirmIdentity(ctx context.Context, identityID uuid.UUID) error
	UpdatePasswordHash(ctx context.Context, identityID uuid.UUID, passwordHash string) error
	DeleteIdentity(ctx context.Context, identityID uuid.UUID) error

	Close()
}

type PostgresStorage struct {
	db *pgxpool.Pool
}

func NewPostgresStorage(dbURL string) (*PostgresStorage, error) {
	const op = "storage.NewPostgresStorage"

	conn, err := pgxpool.Connect(context.Background(), dbURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &PostgresStorage{
		db: conn,
	}, nil
}

func (p *PostgresStorage) CreateIdentity(ctx context.Context, email, passwordHash string) (models.Identity, error) {
	const op = "storage.CreateIdentity"

	var identity models.Identity
	query := fmt.Sprintf(`INSERT INTO %s(email, password_hash) VALUES ($1, $2)
	RETURNING id, email, password_hash, is_confirmed, created_at;`, usersTable)

	err := p.db.QueryRow(ctx, query, email, passwordHash).Scan(
		&identity.ID,
		&identity.Email,
		&identity.PasswordHash,
		&identity.Confirmed,
		&identity.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return identity, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}
		return identity, fmt.Errorf("%s: %w", op, err)
	}

	return identity, nil
}

func (p *PostgresStorage) IdentityByEmail(ctx context.Context, email string) (models.Identity, error) {
	const op = "storage.IdentityByEmail"

	var identity models.Identity
	query := fmt.Sprintf("SELECT id, email, password_hash, is_confirmed, created_at FROM %s WHERE email=$1;", usersTable)

	err := p.db.QueryRow(ctx, query, email).Scan(
		&identity.ID,
		&identity.Email,
		&identity.PasswordHash,
		&identity.Confirmed,
		&identity.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return identity, fmt.Errorf("%s: %w", op, ErrIdentityNotFound)
		}
		return identity, fmt.Errorf("%s: %w", op, err)
	}

	return identity, nil
}

func (p *PostgresStorage) ConfirmIdentity(ctx context.Context, identityID uuid.UUID) error {
	const op = "storage.ConfirmIdentity"

	query := fmt.Sprintf("UPDATE %s SET is_confirmed=TRUE WHERE id=$1", usersTable)

	tag, err := p.db.Exec(ctx, query, identityID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrIdentityNotFound)
	}

	return nil
}

func (p *PostgresStorage) UpdatePasswordHash(ctx context.Context, identityID uuid.UUID, passwordHash string) error {
	const op = "storage.UpdatePasswordHash"

	query := fmt.Sprintf("UPDATE %s SET password_hash=$1 WHERE id=$2", usersTable)

	tag, err := p.db.Exec(ctx, query, passwordHash, identityID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrIdentityNotFound)
	}

	return nil
}

func (p *PostgresStorage) DeleteIdentity(ctx context.Context, identityID uuid.UUID) error {
	const op = "storage.DeleteIdentity"

	query := fmt.Sprintf("DELETE FROM %s WHERE id=$1", usersTable)

	tag, err := p.db.Exec(ctx, query, identityID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrIdentityNotFound)
	}

	return nil
}

func (p *PostgresStorage) Close() {
	p.db.Close()
}
