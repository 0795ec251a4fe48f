package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lodge-api/internal/mailer"
	"lodge-api/internal/model"
	"lodge-api/pkg/apierror"
)

// memUserStore is an in-memory UserStore for service tests.
type memUserStore struct {
	mu    sync.Mutex
	users map[int64]*model.User
}

func newMemUserStore(users ...model.User) *memUserStore {
	s := &memUserStore{users: make(map[int64]*model.User)}
	for i := range users {
		u := users[i]
		s.users[u.ID] = &u
	}
	return s
}

func (s *memUserStore) FindByID(_ context.Context, id int64) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return *u, nil
	}
	return model.User{}, model.ErrUserNotFound
}

func (s *memUserStore) FindByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return *u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (s *memUserStore) FindByResetToken(_ context.Context, resetToken string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ResetToken != nil && strings.EqualFold(*u.ResetToken, resetToken) {
			return *u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (s *memUserStore) SetResetToken(_ context.Context, userID int64, resetToken string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return model.ErrUserNotFound
	}
	u.ResetToken = &resetToken
	u.ResetTokenExpiration = &expiresAt
	return nil
}

func (s *memUserStore) SetPassword(_ context.Context, userID int64, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return model.ErrUserNotFound
	}
	u.PasswordHash = &passwordHash
	u.ResetToken = nil
	u.ResetTokenExpiration = nil
	return nil
}

// memTokenStore mirrors the repository's rotation semantics, including
// the all-or-nothing revocation on anomalies, under a single mutex so the
// concurrency test exercises real contention.
type memTokenStore struct {
	mu     sync.Mutex
	nextID int64
	rows   []*model.RefreshTokenRow
}

func (s *memTokenStore) Insert(_ context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.rows = append(s.rows, &model.RefreshTokenRow{
		ID: s.nextID, TokenHash: tokenHash, ExpiresAt: expiresAt, UserID: userID,
	})
	return nil
}

func (s *memTokenStore) Rotate(_ context.Context, userID int64, presentedHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *model.RefreshTokenRow
	for _, row := range s.rows {
		if row.UserID != userID {
			continue
		}
		if latest == nil || row.ExpiresAt.After(latest.ExpiresAt) ||
			(row.ExpiresAt.Equal(latest.ExpiresAt) && row.ID > latest.ID) {
			latest = row
		}
	}

	switch {
	case latest == nil, latest.TokenHash != presentedHash:
		s.revokeAllLocked(userID)
		return model.ErrRefreshTokenNotLatest
	case latest.Used:
		s.revokeAllLocked(userID)
		return model.ErrRefreshTokenAlreadyUsed
	}

	latest.Used = true
	return nil
}

func (s *memTokenStore) RevokeAllForUser(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokeAllLocked(userID)
	return nil
}

func (s *memTokenStore) revokeAllLocked(userID int64) {
	for _, row := range s.rows {
		if row.UserID == userID {
			row.Used = true
		}
	}
}

func (s *memTokenStore) activeCount(userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, row := range s.rows {
		if row.UserID == userID && !row.Used {
			n++
		}
	}
	return n
}

// memMailer captures outgoing reset messages.
type memMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (m *memMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *memMailer) last(t *testing.T) mailer.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	return m.sent[len(m.sent)-1]
}

type authFixture struct {
	svc    *AuthService
	users  *memUserStore
	tokens *memTokenStore
	mail   *memMailer
}

func newAuthFixture(t *testing.T, users ...model.User) *authFixture {
	t.Helper()

	f := &authFixture{
		users:  newMemUserStore(users...),
		tokens: &memTokenStore{},
		mail:   &memMailer{},
	}
	signer := newTestSigner(t, 5*time.Minute, 24*time.Hour)
	f.svc = NewAuthService(f.users, f.tokens, signer, f.mail, 10*time.Minute)
	return f
}

func testUser(t *testing.T, id int64, email string, password string) model.User {
	t.Helper()

	u := model.User{ID: id, Name: "Guest " + email, Email: email, RoleID: 2, RoleName: "Member"}
	if password != "" {
		hash, err := HashPassword(password)
		require.NoError(t, err)
		u.PasswordHash = &hash
	}
	return u
}

func requireAPIError(t *testing.T, err error, status int, message string) {
	t.Helper()

	var apiErr *apierror.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, status, apiErr.HTTPStatus)
	assert.Equal(t, message, apiErr.Message)
}

func TestAuthenticateSuccess(t *testing.T) {
	f := newAuthFixture(t, testUser(t, 1, "guest@example.com", "hunter22"))

	pair, err := f.svc.Authenticate(context.Background(), "guest@example.com", "hunter22")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, 1, f.tokens.activeCount(1))
}

func TestAuthenticateEmailCaseAndWhitespaceInsensitive(t *testing.T) {
	f := newAuthFixture(t, testUser(t, 1, "guest@example.com", "hunter22"))

	_, err := f.svc.Authenticate(context.Background(), "  Guest@Example.COM ", "hunter22")
	require.NoError(t, err)
}

func TestAuthenticateFailuresAreIndistinguishable(t *testing.T) {
	f := newAuthFixture(t,
		testUser(t, 1, "guest@example.com", "hunter22"),
		testUser(t, 2, "new@example.com", ""))

	_, wrongPassword := f.svc.Authenticate(context.Background(), "guest@example.com", "wrong")
	_, unknownUser := f.svc.Authenticate(context.Background(), "nobody@example.com", "hunter22")
	_, noPasswordSet := f.svc.Authenticate(context.Background(), "new@example.com", "anything")

	for _, err := range []error{wrongPassword, unknownUser, noPasswordSet} {
		requireAPIError(t, err, 401, "Invalid credentials")
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	f := newAuthFixture(t, testUser(t, 1, "guest@example.com", "hunter22"))

	first, err := f.svc.Authenticate(context.Background(), "guest@example.com", "hunter22")
	require.NoError(t, err)

	second, err := f.svc.Refresh(context.Background(), first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// The old token is spent, the new one is the single active row.
	assert.Equal(t, 1, f.tokens.activeCount(1))
}

func TestRefreshReplayRevokesLineage(t *testing.T) {
	f := newAuthFixture(t, testUser(t, 1, "guest@example.com", "hunter22"))

	first, err := f.svc.Authenticate(context.Background(), "guest@example.com", "hunter22")
	require.NoError(t, err)

	// Login again: the second pair's refresh token is now the latest.
	_, err = f.svc.Authenticate(context.Background(), "guest@example.com", "hunter22")
	require.NoError(t, err)

	_, err = f.svc.Refresh(context.Background(), first.RefreshToken)
	requireAPIError(t, err, 400, "Refresh token is not the latest token")
	assert.Zero(t, f.tokens.activeCount(1))
}

func TestRefreshUsedTokenRevokesLineage(t *testing.T) {
	f := newAuthFixture(t, testUser(t, 1, "guest@example.com", "hunter22"))

	pair, err := f.svc.Authenticate(context.Background(), "guest@example.com", "hunter22")
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(context.Background(), 1))

	_, err = f.svc.Refresh(context.Background(), pair.RefreshToken)
	requireAPIError(t, err, 400, "Refresh token has already been used")
	assert.Zero(t, f.tokens.activeCount(1))
}

func TestRefreshRejectsForgedTokenWithoutTouchingStore(t *testing.T) {
	f := newAuthFixture(t, testUser(t, 1, "guest@example.com", "hunter22"))

	pair, err := f.svc.Authenticate(context.Background(), "guest@example.com", "hunter22")
	require.NoError(t, err)

	_, err = f.svc.Refresh(context.Background(), "not-a-token")
	requireAPIError(t, err, 401, "Invalid refresh token")

	// A garbage token must not revoke anything.
	assert.Equal(t, 1, f.tokens.activeCount(1))

	// The legitimate token still works afterwards.
	_, err = f.svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshRejectsExpiredToken(t *testing.T) {
	f := newAuthFixture(t, testUser(t, 1, "guest@example.com", "hunter22"))
	expiredSigner := newTestSigner(t, 5*time.Minute, -time.Minute)
	f.svc = NewAuthService(f.users, f.tokens, expiredSigner, f.mail, 10*time.Minute)

	pair, err := f.svc.Authenticate(context.Background(), "guest@example.com", "hunter22")
	require.NoError(t, err)

	_, err = f.svc.Refresh(context.Background(), pair.RefreshToken)
	requireAPIError(t, err, 401, "Invalid refresh token")
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	f := newAuthFixture(t, testUser(t, 1, "guest@example.com", "hunter22"))

	pair, err := f.svc.Authenticate(context.Background(), "guest@example.com", "hunter22")
	require.NoError(t, err)

	const attempts = 8
	errs := make(chan error, attempts)
	var start sync.WaitGroup
	start.Add(1)

	for i := 0; i < attempts; i++ {
		go func() {
			start.Wait()
			_, err := f.svc.Refresh(context.Background(), pair.RefreshToken)
			errs <- err
		}()
	}
	start.Done()

	succeeded := 0
	for i := 0; i < attempts; i++ {
		if err := <-errs; err == nil {
			succeeded++
		}
	}

	assert.LessOrEqual(t, succeeded, 1, "at most one concurrent exchange of the same token may win")
}

func TestLogoutRevokesAllRefreshTokens(t *testing.T) {
	f := newAuthFixture(t, testUser(t, 1, "guest@example.com", "hunter22"))

	pair, err := f.svc.Authenticate(context.Background(), "guest@example.com", "hunter22")
	require.NoError(t, err)
	_, err = f.svc.Authenticate(context.Background(), "guest@example.com", "hunter22")
	require.NoError(t, err)
	require.Equal(t, 2, f.tokens.activeCount(1))

	require.NoError(t, f.svc.Logout(context.Background(), 1))
	assert.Zero(t, f.tokens.activeCount(1))

	_, err = f.svc.Refresh(context.Background(), pair.RefreshToken)
	requireAPIError(t, err, 400, "Refresh token is not the latest token")
}

func TestCurrentUser(t *testing.T) {
	f := newAuthFixture(t, testUser(t, 1, "guest@example.com", "hunter22"))

	user, err := f.svc.CurrentUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "guest@example.com", user.Email)
	assert.Equal(t, "Member", user.RoleName)

	_, err = f.svc.CurrentUser(context.Background(), 999)
	requireAPIError(t, err, 401, "Unauthorized")
}

func TestRequestPasswordResetStoresTokenAndMails(t *testing.T) {
	f := newAuthFixture(t, testUser(t, 1, "guest@example.com", "hunter22"))

	require.NoError(t, f.svc.RequestPasswordReset(context.Background(), "Guest@Example.com"))

	msg := f.mail.last(t)
	assert.Equal(t, "guest@example.com", msg.To)
	assert.Equal(t, "Sunset Lodge: Password Reset", msg.Subject)
	assert.NotEmpty(t, msg.ResetToken)

	stored, err := f.users.FindByResetToken(context.Background(), msg.ResetToken)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.ID)
}

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	f := newAuthFixture(t)

	err := f.svc.RequestPasswordReset(context.Background(), "nobody@example.com")
	requireAPIError(t, err, 400, "Email address not found")
}

func TestSetPasswordHappyPathConsumesToken(t *testing.T) {
	f := newAuthFixture(t, testUser(t, 1, "guest@example.com", ""))

	require.NoError(t, f.svc.RequestPasswordReset(context.Background(), "guest@example.com"))
	token := f.mail.last(t).ResetToken

	err := f.svc.SetPassword(context.Background(), "guest@example.com", token, "brand-new-pass")
	require.NoError(t, err)

	_, err = f.svc.Authenticate(context.Background(), "guest@example.com", "brand-new-pass")
	require.NoError(t, err)

	// Single use: the same token finds no user the second time.
	err = f.svc.SetPassword(context.Background(), "guest@example.com", token, "another-pass")
	requireAPIError(t, err, 400, "No user found with this reset token")
}

func TestSetPasswordUnknownToken(t *testing.T) {
	f := newAuthFixture(t, testUser(t, 1, "guest@example.com", ""))

	err := f.svc.SetPassword(context.Background(), "guest@example.com", "bogus-token", "pass")
	requireAPIError(t, err, 400, "No user found with this reset token")
}

func TestSetPasswordEmailMismatch(t *testing.T) {
	f := newAuthFixture(t, testUser(t, 1, "guest@example.com", ""))

	require.NoError(t, f.svc.RequestPasswordReset(context.Background(), "guest@example.com"))
	token := f.mail.last(t).ResetToken

	err := f.svc.SetPassword(context.Background(), "other@example.com", token, "pass")
	requireAPIError(t, err, 400, "Email address does not match user with this reset token")
}

func TestSetPasswordExpiredToken(t *testing.T) {
	f := newAuthFixture(t, testUser(t, 1, "guest@example.com", ""))
	f.svc = NewAuthService(f.users, f.tokens, newTestSigner(t, 5*time.Minute, 24*time.Hour), f.mail, -time.Minute)

	require.NoError(t, f.svc.RequestPasswordReset(context.Background(), "guest@example.com"))
	token := f.mail.last(t).ResetToken

	err := f.svc.SetPassword(context.Background(), "guest@example.com", token, "pass")
	requireAPIError(t, err, 400, "Reset token has expired")
}
