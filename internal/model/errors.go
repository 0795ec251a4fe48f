package model

import "errors"

var (
	// User related errors
	ErrUserNotFound = errors.New("user not found")

	// Refresh token errors. NotLatest and AlreadyUsed carry the full
	// lineage revocation side effect when surfaced by the rotation.
	ErrRefreshTokenNotLatest   = errors.New("refresh token is not the latest token")
	ErrRefreshTokenAlreadyUsed = errors.New("refresh token has already been used")

	// Access related errors
	ErrUnauthorized = errors.New("unauthorized")
)
