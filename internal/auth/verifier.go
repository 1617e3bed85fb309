// JamWave Signaling - Presence and Call Signaling for JamWave
// Copyright 2026 JamWave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jamwave/signaling

// Package auth verifies the token carried by the authenticate event.
//
// The signaling server does not issue tokens; the application's auth
// provider does. This package only checks that the presented token is a
// valid HS256 JWT signed with the shared secret and that its subject matches
// the identity the client claims.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken covers malformed, expired or badly signed tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrSubjectMismatch means the token is valid but was issued for a
	// different user identity than the one the client declared.
	ErrSubjectMismatch = errors.New("token subject does not match declared user")
)

// Verifier checks an authenticate payload.
type Verifier interface {
	Verify(userID, token string) error
}

// JWTVerifier validates HS256 tokens against a shared secret.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for the given shared secret.
func NewJWTVerifier(secret string) (*JWTVerifier, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 characters, got %d", len(secret))
	}
	return &JWTVerifier{secret: []byte(secret)}, nil
}

// Verify parses and validates the token and checks its subject claim
// against the declared userID.
func (v *JWTVerifier) Verify(userID, token string) error {
	if userID == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidToken)
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil || subject == "" {
		return fmt.Errorf("%w: missing subject claim", ErrInvalidToken)
	}
	if subject != userID {
		return ErrSubjectMismatch
	}
	return nil
}

// NoopVerifier trusts the declared identity. Selected with auth_mode=none;
// development only.
type NoopVerifier struct{}

// Verify accepts any non-empty user identity.
func (NoopVerifier) Verify(userID, _ string) error {
	if userID == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidToken)
	}
	return nil
}
