package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"lodge-api/internal/mailer"
	"lodge-api/internal/metrics"
	"lodge-api/internal/model"
	"lodge-api/pkg/apierror"
)

// UserStore is the slice of the user repository the auth flows need.
type UserStore interface {
	FindByID(ctx context.Context, id int64) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByResetToken(ctx context.Context, resetToken string) (model.User, error)
	SetResetToken(ctx context.Context, userID int64, resetToken string, expiresAt time.Time) error
	SetPassword(ctx context.Context, userID int64, passwordHash string) error
}

// TokenStore persists refresh-token lineage state. Rotate must be atomic:
// of any number of concurrent calls presenting the same hash, at most one
// may return nil.
type TokenStore interface {
	Insert(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error
	Rotate(ctx context.Context, userID int64, presentedHash string) error
	RevokeAllForUser(ctx context.Context, userID int64) error
}

type AuthService struct {
	users    UserStore
	tokens   TokenStore
	signer   *TokenSigner
	mail     mailer.Mailer
	resetTTL time.Duration
}

func NewAuthService(users UserStore, tokens TokenStore, signer *TokenSigner, mail mailer.Mailer, resetTTL time.Duration) *AuthService {
	return &AuthService{users: users, tokens: tokens, signer: signer, mail: mail, resetTTL: resetTTL}
}

// Authenticate verifies credentials and issues a fresh token pair. Unknown
// email, unset password and wrong password all collapse into the same
// response so the endpoint cannot be used to enumerate accounts.
func (s *AuthService) Authenticate(ctx context.Context, email string, password string) (model.TokenPair, error) {
	user, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			metrics.LoginsTotal.WithLabelValues("failure").Inc()
			return model.TokenPair{}, invalidCredentials()
		}
		return model.TokenPair{}, fmt.Errorf("look up user: %w", err)
	}

	if user.PasswordHash == nil || !VerifyPassword(*user.PasswordHash, password) {
		metrics.LoginsTotal.WithLabelValues("failure").Inc()
		return model.TokenPair{}, invalidCredentials()
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return model.TokenPair{}, err
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	return pair, nil
}

// Refresh exchanges a refresh token for a new pair, rotating the lineage.
// Presenting anything other than the current latest, unused token revokes
// every refresh token the user holds.
func (s *AuthService) Refresh(ctx context.Context, rawToken string) (model.TokenPair, error) {
	claims, err := s.signer.Verify(rawToken)
	if err != nil {
		metrics.RefreshesTotal.WithLabelValues("invalid").Inc()
		return model.TokenPair{}, apierror.New("UNAUTHORIZED", "Invalid refresh token", "", http.StatusUnauthorized)
	}

	err = s.tokens.Rotate(ctx, claims.UserID, HashToken(rawToken))
	switch {
	case errors.Is(err, model.ErrRefreshTokenNotLatest):
		metrics.RefreshesTotal.WithLabelValues("not_latest").Inc()
		metrics.RevocationsTotal.Inc()
		slog.Warn("stale refresh token presented; lineage revoked", "user_id", claims.UserID)
		return model.TokenPair{}, apierror.New("INVALID_PARAMETER",
			"Refresh token is not the latest token", "", http.StatusBadRequest)
	case errors.Is(err, model.ErrRefreshTokenAlreadyUsed):
		metrics.RefreshesTotal.WithLabelValues("already_used").Inc()
		metrics.RevocationsTotal.Inc()
		slog.Warn("refresh token replayed; lineage revoked", "user_id", claims.UserID)
		return model.TokenPair{}, apierror.New("INVALID_PARAMETER",
			"Refresh token has already been used", "", http.StatusBadRequest)
	case err != nil:
		return model.TokenPair{}, fmt.Errorf("rotate refresh token: %w", err)
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("load user for refresh: %w", err)
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return model.TokenPair{}, err
	}

	metrics.RefreshesTotal.WithLabelValues("success").Inc()
	return pair, nil
}

// CurrentUser resolves the bearer principal to its user record.
func (s *AuthService) CurrentUser(ctx context.Context, userID int64) (model.SessionUser, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.SessionUser{}, apierror.New("UNAUTHORIZED", "Unauthorized", "", http.StatusUnauthorized)
		}
		return model.SessionUser{}, fmt.Errorf("load current user: %w", err)
	}

	return model.SessionUser{Name: user.Name, Email: user.Email, RoleName: user.RoleName}, nil
}

// Logout revokes every refresh token the user holds. The access token used
// to call this stays valid until its natural expiry; it is stateless.
func (s *AuthService) Logout(ctx context.Context, userID int64) error {
	if err := s.tokens.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("revoke tokens on logout: %w", err)
	}
	metrics.RevocationsTotal.Inc()
	return nil
}

// RequestPasswordReset stores a fresh single-use reset token on the user
// row and mails it out. Repeated requests supersede the previous token.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return apierror.New("INVALID_PARAMETER", "Email address not found", "", http.StatusBadRequest)
		}
		return fmt.Errorf("look up user for reset: %w", err)
	}

	resetToken := uuid.NewString()
	expiresAt := time.Now().UTC().Add(s.resetTTL)
	if err := s.users.SetResetToken(ctx, user.ID, resetToken, expiresAt); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	if err := s.mail.Send(ctx, mailer.Message{
		To:         user.Email,
		Name:       user.Name,
		Subject:    "Sunset Lodge: Password Reset",
		ResetToken: resetToken,
	}); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}

	return nil
}

// SetPassword consumes a reset token and stores the new password hash.
// The token is cleared in the same statement, so a second attempt with the
// same token finds no user.
func (s *AuthService) SetPassword(ctx context.Context, email string, resetToken string, password string) error {
	user, err := s.users.FindByResetToken(ctx, strings.ToLower(strings.TrimSpace(resetToken)))
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return apierror.New("INVALID_PARAMETER", "No user found with this reset token", "", http.StatusBadRequest)
		}
		return fmt.Errorf("look up user by reset token: %w", err)
	}

	if !strings.EqualFold(strings.TrimSpace(email), user.Email) {
		return apierror.New("INVALID_PARAMETER",
			"Email address does not match user with this reset token", "", http.StatusBadRequest)
	}

	if user.ResetTokenExpiration == nil || user.ResetTokenExpiration.Before(time.Now().UTC()) {
		return apierror.New("INVALID_PARAMETER", "Reset token has expired", "", http.StatusBadRequest)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.users.SetPassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("store password: %w", err)
	}
	return nil
}

// ValidateAccessToken is the hook the session-boundary middleware uses.
func (s *AuthService) ValidateAccessToken(raw string) (*model.AuthClaims, error) {
	return s.signer.Verify(raw)
}

func (s *AuthService) issuePair(ctx context.Context, user model.User) (model.TokenPair, error) {
	access, err := s.signer.IssueAccessToken(user)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}

	refresh, expiresAt, err := s.signer.IssueRefreshToken(user)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}

	if err := s.tokens.Insert(ctx, user.ID, HashToken(refresh), expiresAt); err != nil {
		return model.TokenPair{}, fmt.Errorf("persist refresh token: %w", err)
	}

	return model.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func invalidCredentials() error {
	return apierror.New("UNAUTHORIZED", "Invalid credentials", "", http.StatusUnauthorized)
}
