package service

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"lodge-api/internal/model"
)

// Issuer is the fixed iss claim stamped on every token.
const Issuer = "sunsetlodge"

type signedClaims struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenSigner mints and verifies RS256 tokens. The private key never
// leaves the process; verification needs only the public half, so other
// services could validate tokens without being able to mint them.
type TokenSigner struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenSigner loads private_key.pem and public_key.pem from pemPath.
func NewTokenSigner(pemPath string, accessTTL time.Duration, refreshTTL time.Duration) (*TokenSigner, error) {
	privPEM, err := os.ReadFile(filepath.Join(pemPath, "private_key.pem"))
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	pubPEM, err := os.ReadFile(filepath.Join(pemPath, "public_key.pem"))
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privPEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	return &TokenSigner{
		privateKey: privateKey,
		publicKey:  publicKey,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// IssueAccessToken mints a short-lived bearer token carrying the user's
// display name and role. Access tokens are stateless: nothing is stored.
func (s *TokenSigner) IssueAccessToken(user model.User) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, signedClaims{
		Name: user.Name,
		Role: user.RoleName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	})
	return token.SignedString(s.privateKey)
}

// IssueRefreshToken mints a long-lived token and reports its expiry so the
// caller can persist the hash alongside it.
func (s *TokenSigner) IssueRefreshToken(user model.User) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(s.refreshTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, signedClaims{
		Name: user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks signature, expiry and issuer, and extracts the claims.
// Any failure maps to model.ErrUnauthorized; callers decide the HTTP shape.
func (s *TokenSigner) Verify(raw string) (*model.AuthClaims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &signedClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return s.publicKey, nil
	}, jwt.WithIssuer(Issuer), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return nil, model.ErrUnauthorized
	}

	claims, ok := parsed.Claims.(*signedClaims)
	if !ok {
		return nil, model.ErrUnauthorized
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, model.ErrUnauthorized
	}

	return &model.AuthClaims{UserID: userID, Name: claims.Name, Role: claims.Role}, nil
}

// HashToken returns the hex SHA-256 of a raw signed token. Only this hash
// is persisted, so a leaked database does not yield usable tokens.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
