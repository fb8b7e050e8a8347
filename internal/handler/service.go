package handler

import (
	"context"

	"accounts_service/internal/models"
)

// Service is what the transport layer needs from the auth orchestrator.
type Service interface {
	Signup(ctx context.Context, email, password string) (string, error)
	ConfirmEmail(ctx context.Context, token string) (string, error)
	Login(ctx context.Context, email, password string) (models.TokenPair, error)
	Logout(ctx context.Context, email string) error
	RefreshTokens(ctx context.Context, email string) (models.TokenPair, error)
	ResetPassword(ctx context.Context, email string) (string, error)
	UpdatePassword(ctx context.Context, email, newPassword string) (string, error)
	DeleteUser(ctx context.Context, email string) (string, error)
	Profile(ctx context.Context, email string) (models.Identity, error)

	Authenticate(ctx context.Context, accessToken string) (models.Identity, error)
	AuthenticateRefresh(ctx context.Context, refreshToken string) (models.Identity, error)
	VerifyConfirmation(ctx context.Context, token string) (string, error)
}
