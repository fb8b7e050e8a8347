package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"accounts_service/internal/auth"
	"accounts_service/internal/autherr"
	"accounts_service/internal/metrics"
	"accounts_service/internal/models"
	"accounts_service/internal/notify"
	"accounts_service/internal/session"
	"accounts_service/internal/storage"

	"github.com/gofrs/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStorage is an in-memory credential store enforcing the unique-email
// constraint, used in place of Postgres.
type memStorage struct {
	mu         sync.Mutex
	identities map[string]models.Identity
}

func newMemStorage() *memStorage {
	return &memStorage{identities: make(map[string]models.Identity)}
}

func (m *memStorage) CreateIdentity(_ context.Context, email, passwordHash string) (models.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.identities[email]; ok {
		return models.Identity{}, storage.ErrEmailTaken
	}

	id, err := uuid.NewV4()
	if err != nil {
		return models.Identity{}, err
	}

	identity := models.Identity{
		ID:           id,
		Email:        email,
		PasswordHash: passwordHash,
		Confirmed:    false,
		CreatedAt:    time.Now().UTC(),
	}
	m.identities[email] = identity

	return identity, nil
}

func (m *memStorage) IdentityByEmail(_ context.Context, email string) (models.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	identity, ok := m.identities[email]
	if !ok {
		return models.Identity{}, storage.ErrIdentityNotFound
	}
	return identity, nil
}

func (m *memStorage) ConfirmIdentity(_ context.Context, identityID uuid.UUID) error {
	return m.mutate(identityID, func(identity *models.Identity) {
		identity.Confirmed = true
	})
}

func (m *memStorage) UpdatePasswordHash(_ context.Context, identityID uuid.UUID, passwordHash string) error {
	return m.mutate(identityID, func(identity *models.Identity) {
		identity.PasswordHash = passwordHash
	})
}

func (m *memStorage) DeleteIdentity(_ context.Context, identityID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for email, identity := range m.identities {
		if identity.ID == identityID {
			delete(m.identities, email)
			return nil
		}
	}
	return storage.ErrIdentityNotFound
}

func (m *memStorage) Close() {}

func (m *memStorage) mutate(identityID uuid.UUID, fn func(*models.Identity)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for email, identity := range m.identities {
		if identity.ID == identityID {
			fn(&identity)
			m.identities[email] = identity
			return nil
		}
	}
	return storage.ErrIdentityNotFound
}

// stubSender records notifications and can be told to fail.
type stubSender struct {
	mu     sync.Mutex
	sent   []notify.Notification
	sendFn func(n notify.Notification) error
}

func (s *stubSender) Send(_ context.Context, n notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sendFn != nil {
		if err := s.sendFn(n); err != nil {
			return err
		}
	}
	s.sent = append(s.sent, n)
	return nil
}

func (s *stubSender) last(t *testing.T) notify.Notification {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.sent, "expected at least one notification")
	return s.sent[len(s.sent)-1]
}

func (s *stubSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type testEnv struct {
	svc      *Service
	storage  *memStorage
	sessions *session.MemoryStore
	sender   *stubSender
	issuer   *auth.Issuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := newMemStorage()
	sessions := session.NewMemoryStore()
	sender := &stubSender{}
	issuer := auth.NewIssuer("test-secret")

	svc := NewService(
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		st,
		sessions,
		auth.NewHasher(4),
		issuer,
		sender,
		metrics.NewCollector(prometheus.NewRegistry()),
		TTLConfig{
			Confirmation: 15 * time.Minute,
			Access:       time.Hour,
			Refresh:      7 * 24 * time.Hour,
		},
	)

	return &testEnv{svc: svc, storage: st, sessions: sessions, sender: sender, issuer: issuer}
}

func (e *testEnv) signupAndConfirm(t *testing.T, email, password string) {
	t.Helper()
	ctx := context.Background()

	_, err := e.svc.Signup(ctx, email, password)
	require.NoError(t, err)

	_, err = e.svc.ConfirmEmail(ctx, e.sender.last(t).Token)
	require.NoError(t, err)
}

func TestSignupReturnsMessageWithEmail(t *testing.T) {
	env := newTestEnv(t)

	msg, err := env.svc.Signup(context.Background(), "a@x.com", "P@ssw0rd1")
	require.NoError(t, err)
	assert.Contains(t, msg, "a@x.com")
	assert.NotContains(t, msg, "P@ssw0rd1")

	n := env.sender.last(t)
	assert.Equal(t, notify.KindSignupConfirmation, n.Kind)
	assert.Equal(t, "a@x.com", n.Email)
	assert.NotEmpty(t, n.Token)
}

func TestSignupDuplicateEmailIsConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Signup(ctx, "a@x.com", "P@ssw0rd1")
	require.NoError(t, err)

	_, err = env.svc.Signup(ctx, "a@x.com", "Differ3nt@pw")
	assert.ErrorIs(t, err, autherr.ErrDuplicateEmail)
}

func TestSignupMailFailureKeepsIdentity(t *testing.T) {
	env := newTestEnv(t)
	env.sender.sendFn = func(notify.Notification) error {
		return errors.New("smtp down")
	}

	_, err := env.svc.Signup(context.Background(), "a@x.com", "P@ssw0rd1")
	assert.ErrorIs(t, err, autherr.ErrNotificationFailed)

	// The identity must survive the delivery failure.
	_, err = env.storage.IdentityByEmail(context.Background(), "a@x.com")
	assert.NoError(t, err)
}

func TestLoginBeforeConfirmationIsForbidden(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Signup(ctx, "a@x.com", "P@ssw0rd1")
	require.NoError(t, err)
	sentAfterSignup := env.sender.count()

	_, err = env.svc.Login(ctx, "a@x.com", "P@ssw0rd1")
	assert.ErrorIs(t, err, autherr.ErrForbidden)

	// The forbidden login re-sends a confirmation link.
	assert.Equal(t, sentAfterSignup+1, env.sender.count())
	assert.Equal(t, 0, env.sessions.Len())
}

func TestConfirmEmailThenLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.signupAndConfirm(t, "a@x.com", "P@ssw0rd1")

	pair, err := env.svc.Login(ctx, "a@x.com", "P@ssw0rd1")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.Equal(t, 1, env.sessions.Len())
}

func TestConfirmEmailIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.signupAndConfirm(t, "a@x.com", "P@ssw0rd1")

	// Re-confirming with a fresh token is not rejected.
	token, err := env.issuer.Issue("a@x.com", time.Minute)
	require.NoError(t, err)
	_, err = env.svc.ConfirmEmail(ctx, token)
	assert.NoError(t, err)
}

func TestConfirmEmailUnknownEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Signup(ctx, "a@x.com", "P@ssw0rd1")
	require.NoError(t, err)

	token, err := env.issuer.Issue("stranger@x.com", time.Minute)
	require.NoError(t, err)

	_, err = env.svc.ConfirmEmail(ctx, token)
	assert.ErrorIs(t, err, autherr.ErrNotFound)

	// The registered identity must stay unconfirmed.
	identity, err := env.storage.IdentityByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, identity.Confirmed)
}

func TestConfirmEmailOnlyConfirmsTokenOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Signup(ctx, "a@x.com", "P@ssw0rd1")
	require.NoError(t, err)
	tokenA := env.sender.last(t).Token

	_, err = env.svc.Signup(ctx, "b@x.com", "P@ssw0rd1")
	require.NoError(t, err)

	_, err = env.svc.ConfirmEmail(ctx, tokenA)
	require.NoError(t, err)

	a, err := env.storage.IdentityByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	b, err := env.storage.IdentityByEmail(ctx, "b@x.com")
	require.NoError(t, err)
	assert.True(t, a.Confirmed)
	assert.False(t, b.Confirmed)
}

func TestConfirmEmailBadTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	expired, err := env.issuer.Issue("a@x.com", -time.Minute)
	require.NoError(t, err)

	for _, token := range []string{expired, "garbage", ""} {
		_, err := env.svc.ConfirmEmail(ctx, token)
		assert.ErrorIs(t, err, autherr.ErrUnauthorized)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.signupAndConfirm(t, "a@x.com", "P@ssw0rd1")

	_, wrongPassword := env.svc.Login(ctx, "a@x.com", "Wr0ng@pass")
	_, unknownEmail := env.svc.Login(ctx, "nobody@x.com", "P@ssw0rd1")

	assert.ErrorIs(t, wrongPassword, autherr.ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, autherr.ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	assert.Equal(t, "Email or password invalid", wrongPassword.Error())
}

func TestLoginReplacesPreviousSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.signupAndConfirm(t, "a@x.com", "P@ssw0rd1")

	first, err := env.svc.Login(ctx, "a@x.com", "P@ssw0rd1")
	require.NoError(t, err)
	second, err := env.svc.Login(ctx, "a@x.com", "P@ssw0rd1")
	require.NoError(t, err)

	assert.Equal(t, 1, env.sessions.Len())

	// Only the latest pair authenticates.
	_, err = env.svc.Authenticate(ctx, first.AccessToken)
	assert.ErrorIs(t, err, autherr.ErrUnauthorized)
	_, err = env.svc.Authenticate(ctx, second.AccessToken)
	assert.NoError(t, err)
}

func TestConcurrentLoginsLeaveSingleSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.signupAndConfirm(t, "a@x.com", "P@ssw0rd1")

	const logins = 16
	pairs := make([]models.TokenPair, logins)
	errs := make([]error, logins)

	var wg sync.WaitGroup
	for i := 0; i < logins; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pairs[i], errs[i] = env.svc.Login(ctx, "a@x.com", "P@ssw0rd1")
		}(i)
	}
	wg.Wait()

	for i := 0; i < logins; i++ {
		require.NoError(t, errs[i])
	}
	require.Equal(t, 1, env.sessions.Len())

	// The surviving session holds a pair returned by one of the logins.
	identity, err := env.storage.IdentityByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	sess, err := env.sessions.Get(ctx, identity.ID)
	require.NoError(t, err)

	found := false
	for _, pair := range pairs {
		if pair.AccessToken == sess.AccessToken && pair.RefreshToken == sess.RefreshToken {
			found = true
			break
		}
	}
	assert.True(t, found, "stored session does not match any returned pair")
}

func TestRefreshRotatesPair(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.signupAndConfirm(t, "a@x.com", "P@ssw0rd1")

	oldPair, err := env.svc.Login(ctx, "a@x.com", "P@ssw0rd1")
	require.NoError(t, err)

	identity, err := env.svc.AuthenticateRefresh(ctx, oldPair.RefreshToken)
	require.NoError(t, err)

	newPair, err := env.svc.RefreshTokens(ctx, identity.Email)
	require.NoError(t, err)
	assert.NotEqual(t, oldPair.RefreshToken, newPair.RefreshToken)
	assert.Equal(t, 1, env.sessions.Len())

	// The pre-rotation pair is dead on both channels.
	_, err = env.svc.AuthenticateRefresh(ctx, oldPair.RefreshToken)
	assert.ErrorIs(t, err, autherr.ErrUnauthorized)
	_, err = env.svc.Authenticate(ctx, oldPair.AccessToken)
	assert.ErrorIs(t, err, autherr.ErrUnauthorized)

	_, err = env.svc.AuthenticateRefresh(ctx, newPair.RefreshToken)
	assert.NoError(t, err)
}

func TestLogoutInvalidatesTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.signupAndConfirm(t, "a@x.com", "P@ssw0rd1")

	pair, err := env.svc.Login(ctx, "a@x.com", "P@ssw0rd1")
	require.NoError(t, err)

	require.NoError(t, env.svc.Logout(ctx, "a@x.com"))
	assert.Equal(t, 0, env.sessions.Len())

	_, err = env.svc.Authenticate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, autherr.ErrUnauthorized)
	_, err = env.svc.AuthenticateRefresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, autherr.ErrUnauthorized)
}

func TestTokenChannelsAreNotInterchangeable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.signupAndConfirm(t, "a@x.com", "P@ssw0rd1")

	pair, err := env.svc.Login(ctx, "a@x.com", "P@ssw0rd1")
	require.NoError(t, err)

	// An access token on the refresh channel fails, and vice versa.
	_, err = env.svc.AuthenticateRefresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, autherr.ErrUnauthorized)
	_, err = env.svc.Authenticate(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, autherr.ErrUnauthorized)

	// A confirmation token matches neither session slot.
	confirmation, err := env.issuer.Issue("a@x.com", time.Minute)
	require.NoError(t, err)
	_, err = env.svc.Authenticate(ctx, confirmation)
	assert.ErrorIs(t, err, autherr.ErrUnauthorized)
}

func TestResetAndUpdatePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.signupAndConfirm(t, "a@x.com", "P@ssw0rd1")

	msg, err := env.svc.ResetPassword(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Contains(t, msg, "a@x.com")

	n := env.sender.last(t)
	assert.Equal(t, notify.KindPasswordReset, n.Kind)

	email, err := env.svc.VerifyConfirmation(ctx, n.Token)
	require.NoError(t, err)

	_, err = env.svc.UpdatePassword(ctx, email, "N3wP@ssword")
	require.NoError(t, err)

	_, err = env.svc.Login(ctx, "a@x.com", "P@ssw0rd1")
	assert.ErrorIs(t, err, autherr.ErrInvalidCredentials)
	_, err = env.svc.Login(ctx, "a@x.com", "N3wP@ssword")
	assert.NoError(t, err)
}

func TestResetPasswordUnknownEmail(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.ResetPassword(context.Background(), "nobody@x.com")
	assert.ErrorIs(t, err, autherr.ErrNotFound)
	assert.Equal(t, fmt.Sprintf("User with email: %s not found", "nobody@x.com"), err.Error())
}

func TestDeleteUserCascadesSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.signupAndConfirm(t, "a@x.com", "P@ssw0rd1")

	_, err := env.svc.Login(ctx, "a@x.com", "P@ssw0rd1")
	require.NoError(t, err)
	require.Equal(t, 1, env.sessions.Len())

	msg, err := env.svc.DeleteUser(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "User successfully deleted", msg)
	assert.Equal(t, 0, env.sessions.Len())

	_, err = env.svc.DeleteUser(ctx, "a@x.com")
	assert.ErrorIs(t, err, autherr.ErrNotFound)
}

func TestEndToEndScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	msg, err := env.svc.Signup(ctx, "a@x.com", "P@ssw0rd1")
	require.NoError(t, err)
	assert.Contains(t, msg, "a@x.com")

	_, err = env.svc.Signup(ctx, "a@x.com", "P@ssw0rd1")
	assert.ErrorIs(t, err, autherr.ErrDuplicateEmail)

	_, err = env.svc.ConfirmEmail(ctx, env.sender.last(t).Token)
	require.NoError(t, err)

	pair, err := env.svc.Login(ctx, "a@x.com", "P@ssw0rd1")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)

	require.NoError(t, env.svc.Logout(ctx, "a@x.com"))
	assert.Equal(t, 0, env.sessions.Len())

	_, err = env.svc.AuthenticateRefresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, autherr.ErrUnauthorized)
}
