// Package service composes the credential store, password hasher, token
// issuer, session store and notification sender into the auth flows. All
// invariants and the error taxonomy live here; transport stays in handler.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"accounts_service/internal/auth"
	"accounts_service/internal/autherr"
	"accounts_service/internal/metrics"
	"accounts_service/internal/models"
	"accounts_service/internal/notify"
	"accounts_service/internal/session"
	"accounts_service/internal/storage"
)

type TTLConfig struct {
	Confirmation time.Duration
	Access       time.Duration
	Refresh      time.Duration
}

type Service struct {
	log      *slog.Logger
	storage  storage.Storage
	sessions session.Store
	hasher   *auth.Hasher
	issuer   *auth.Issuer
	sender   notify.Sender
	metrics  *metrics.Collector
	ttl      TTLConfig
}

func NewService(
	log *slog.Logger,
	st storage.Storage,
	sessions session.Store,
	hasher *auth.Hasher,
	issuer *auth.Issuer,
	sender notify.Sender,
	collector *metrics.Collector,
	ttl TTLConfig,
) *Service {
	return &Service{
		log:      log,
		storage:  st,
		sessions: sessions,
		hasher:   hasher,
		issuer:   issuer,
		sender:   sender,
		metrics:  collector,
		ttl:      ttl,
	}
}

func (s *Service) record(flow string, err error) {
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
	}
	s.metrics.RecordFlow(flow, outcome)
}

// Signup creates an unconfirmed identity and sends a confirmation link.
// The identity is committed before the mail goes out: a delivery failure
// surfaces as ErrNotificationFailed but never rolls the account back.
func (s *Service) Signup(ctx context.Context, email, password string) (msg string, err error) {
	const op = "service.Signup"
	defer func() { s.record("signup", err) }()

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	identity, err := s.storage.CreateIdentity(ctx, email, passwordHash)
	if err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			return "", autherr.DuplicateEmailf("email must be unique")
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := s.sendConfirmation(ctx, identity.Email, notify.KindSignupConfirmation); err != nil {
		return "", err
	}

	return fmt.Sprintf("Signup successfully, a message containing a confirmation link has been sent to email: %s", identity.Email), nil
}

// ConfirmEmail flips the confirmed flag for the identity named by the token
// claim. Re-confirming an already-confirmed identity is not rejected, but
// each call needs a fresh valid token.
func (s *Service) ConfirmEmail(ctx context.Context, token string) (msg string, err error) {
	const op = "service.ConfirmEmail"
	defer func() { s.record("confirm_email", err) }()

	email, err := s.VerifyConfirmation(ctx, token)
	if err != nil {
		return "", err
	}

	identity, err := s.findIdentity(ctx, op, email)
	if err != nil {
		return "", err
	}

	if err := s.storage.ConfirmIdentity(ctx, identity.ID); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return "Email successfully confirmed", nil
}

// Login verifies credentials and replaces the identity's session with a
// fresh pair. "No such user" and "wrong password" are deliberately
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (pair models.TokenPair, err error) {
	const op = "service.Login"
	defer func() { s.record("login", err) }()

	identity, err := s.storage.IdentityByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrIdentityNotFound) {
			return models.TokenPair{}, autherr.InvalidCredentialsf("Email or password invalid")
		}
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	if !s.hasher.Verify(password, identity.PasswordHash) {
		return models.TokenPair{}, autherr.InvalidCredentialsf("Email or password invalid")
	}

	if !identity.Confirmed {
		if err := s.sendConfirmation(ctx, identity.Email, notify.KindSignupConfirmation); err != nil {
			s.log.Warn("failed to re-send confirmation link",
				slog.String("op", op), slog.String("email", identity.Email), slog.Any("error", err))
		}
		return models.TokenPair{}, autherr.Forbiddenf(
			"Email not confirmed, a message containing a confirmation link has been sent to email: %s", identity.Email)
	}

	return s.replaceSession(ctx, op, identity)
}

// Logout destroys the identity's session. The email comes from a prior
// access-token verification, never from the request body.
func (s *Service) Logout(ctx context.Context, email string) (err error) {
	const op = "service.Logout"
	defer func() { s.record("logout", err) }()

	identity, err := s.findIdentity(ctx, op, email)
	if err != nil {
		return err
	}

	if err := s.sessions.DestroyAllFor(ctx, identity.ID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("identity logged out", slog.String("op", op), slog.String("email", email))

	return nil
}

// RefreshTokens rotates the session pair. The presented refresh token was
// already checked against the stored session by AuthenticateRefresh, so the
// old pair is dead the moment the new session is created.
func (s *Service) RefreshTokens(ctx context.Context, email string) (pair models.TokenPair, err error) {
	const op = "service.RefreshTokens"
	defer func() { s.record("refresh", err) }()

	identity, err := s.findIdentity(ctx, op, email)
	if err != nil {
		return models.TokenPair{}, err
	}

	return s.replaceSession(ctx, op, identity)
}

// ResetPassword sends a confirmation link authorizing a password change.
// The password itself is untouched until UpdatePassword.
func (s *Service) ResetPassword(ctx context.Context, email string) (msg string, err error) {
	const op = "service.ResetPassword"
	defer func() { s.record("reset_password", err) }()

	identity, err := s.findIdentity(ctx, op, email)
	if err != nil {
		return "", err
	}

	if err := s.sendConfirmation(ctx, identity.Email, notify.KindPasswordReset); err != nil {
		return "", err
	}

	return fmt.Sprintf("Reset password. A message containing a confirmation link has been sent to email: %s", identity.Email), nil
}

// UpdatePassword persists a new password hash. The email comes from a
// verified confirmation token.
func (s *Service) UpdatePassword(ctx context.Context, email, newPassword string) (msg string, err error) {
	const op = "service.UpdatePassword"
	defer func() { s.record("update_password", err) }()

	identity, err := s.findIdentity(ctx, op, email)
	if err != nil {
		return "", err
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := s.storage.UpdatePasswordHash(ctx, identity.ID, passwordHash); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return "Password successfully updated", nil
}

// DeleteUser removes the identity and, by ownership, its session.
func (s *Service) DeleteUser(ctx context.Context, email string) (msg string, err error) {
	const op = "service.DeleteUser"
	defer func() { s.record("delete_user", err) }()

	identity, err := s.findIdentity(ctx, op, email)
	if err != nil {
		return "", err
	}

	if err := s.storage.DeleteIdentity(ctx, identity.ID); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := s.sessions.DestroyAllFor(ctx, identity.ID); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return "User successfully deleted", nil
}

// Profile returns the identity for an already-authenticated email.
func (s *Service) Profile(ctx context.Context, email string) (models.Identity, error) {
	const op = "service.Profile"

	return s.findIdentity(ctx, op, email)
}

// Authenticate resolves an identity from an access token taken off the
// access channel. The token must verify and match the stored session pair:
// a logged-out or rotated token fails even before its expiry.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (models.Identity, error) {
	return s.authenticate(ctx, accessToken, false)
}

// AuthenticateRefresh resolves an identity from a refresh token taken off
// the refresh channel.
func (s *Service) AuthenticateRefresh(ctx context.Context, refreshToken string) (models.Identity, error) {
	return s.authenticate(ctx, refreshToken, true)
}

// VerifyConfirmation checks a confirmation token and returns its email
// claim. Confirmation tokens are not bound to a session.
func (s *Service) VerifyConfirmation(_ context.Context, token string) (string, error) {
	claims, err := s.issuer.Verify(token)
	if err != nil {
		return "", autherr.Unauthorizedf("Unauthorized")
	}
	return claims.Email, nil
}

func (s *Service) authenticate(ctx context.Context, token string, refresh bool) (models.Identity, error) {
	const op = "service.authenticate"

	claims, err := s.issuer.Verify(token)
	if err != nil {
		return models.Identity{}, autherr.Unauthorizedf("Unauthorized")
	}

	identity, err := s.findIdentity(ctx, op, claims.Email)
	if err != nil {
		return models.Identity{}, err
	}

	sess, err := s.sessions.Get(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return models.Identity{}, autherr.Unauthorizedf("Unauthorized")
		}
		return models.Identity{}, fmt.Errorf("%s: %w", op, err)
	}

	stored := sess.AccessToken
	if refresh {
		stored = sess.RefreshToken
	}
	if stored != token {
		return models.Identity{}, autherr.Unauthorizedf("Unauthorized")
	}

	return identity, nil
}

// replaceSession converges the identity to exactly one live session:
// destroy whatever exists, mint a pair, create the new session.
func (s *Service) replaceSession(ctx context.Context, op string, identity models.Identity) (models.TokenPair, error) {
	if err := s.sessions.DestroyAllFor(ctx, identity.ID); err != nil {
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	accessToken, err := s.issuer.Issue(identity.Email, s.ttl.Access)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	refreshToken, err := s.issuer.Issue(identity.Email, s.ttl.Refresh)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	err = s.sessions.Create(ctx, models.Session{
		IdentityID:   identity.ID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	return models.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (s *Service) sendConfirmation(ctx context.Context, email string, kind notify.Kind) error {
	token, err := s.issuer.Issue(email, s.ttl.Confirmation)
	if err != nil {
		return fmt.Errorf("service.sendConfirmation: %w", err)
	}

	n := notify.Notification{Kind: kind, Email: email, Token: token}
	if err := s.sender.Send(ctx, n); err != nil {
		s.log.Error("notification delivery failed",
			slog.String("email", email), slog.String("kind", string(kind)), slog.Any("error", err))
		return autherr.NotificationFailedf("failed to send confirmation email to: %s", email)
	}

	return nil
}

func (s *Service) findIdentity(ctx context.Context, op, email string) (models.Identity, error) {
	identity, err := s.storage.IdentityByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrIdentityNotFound) {
			return models.Identity{}, autherr.NotFoundf("User with email: %s not found", email)
		}
		return models.Identity{}, fmt.Errorf("%s: %w", op, err)
	}
	return identity, nil
}
