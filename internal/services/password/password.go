// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package password hashes and compares account passwords with bcrypt.
package password

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrMismatch is returned when a password does not match its hash.
	ErrMismatch = errors.New("password does not match")
	// ErrTooLong is returned for passwords over bcrypt's 72-byte input limit.
	ErrTooLong = errors.New("password exceeds 72 bytes")
)

// Hasher produces salted bcrypt hashes. The salt is embedded in the hash.
type Hasher struct {
	cost  int
	dummy func() []byte
}

// NewHasher creates a hasher with the given bcrypt cost.
// Costs outside bcrypt's range fall back to bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{
		cost: cost,
		// dummy hash used for constant-time login to prevent timing attacks
		dummy: sync.OnceValue(func() []byte {
			h, _ := bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), cost)
			return h
		}),
	}
}

// Hash hashes a password with a fresh random salt.
// Empty passwords are accepted. Over 72 bytes returns ErrTooLong.
func (h *Hasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", ErrTooLong
	}
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Compare recomputes the hash of password with the salt stored in hash.
func (h *Hasher) Compare(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return nil
	}
	// no stored hash can come from an over-long password
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) || errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return ErrMismatch
	}
	return fmt.Errorf("failed to compare password: %w", err)
}

// CompareDummy spends one comparison against a fixed hash so that a missing
// account costs as much as a wrong password.
func (h *Hasher) CompareDummy(password string) {
	_ = bcrypt.CompareHashAndPassword(h.dummy(), []byte(password))
}
