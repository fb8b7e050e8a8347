// Package session tracks the single live access/refresh pair per identity.
//
// The contract is deliberately narrow: destroy everything for an identity,
// or create a fresh pair. A session is never updated in place, so "at most
// one session per identity" holds by construction.
package session

import (
	"context"
	"errors"

	"accounts_service/internal/models"

	"github.com/gofrs/uuid"
)

var ErrNoSession = errors.New("no session")

type Store interface {
	// Create replaces whatever session the identity currently has.
	Create(ctx context.Context, s models.Session) error
	// Get returns ErrNoSession when the identity has no live session.
	Get(ctx context.Context, identityID uuid.UUID) (models.Session, error)
	DestroyAllFor(ctx context.Context, identityID uuid.UUID) error

	Close() error
}
