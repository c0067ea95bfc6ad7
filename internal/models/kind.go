// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"errors"
	"strings"
)

// ErrInvalidKind is returned when a role string names no known account kind.
var ErrInvalidKind = errors.New("invalid account kind")

// Kind is the disjoint account category. Users rent, tenants own properties.
type Kind string

const (
	KindUser   Kind = "user"
	KindTenant Kind = "tenant"
)

// ParseKind converts a role string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindUser:
		return KindUser, nil
	case KindTenant:
		return KindTenant, nil
	}
	return "", ErrInvalidKind
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindUser || k == KindTenant
}

func (k Kind) String() string {
	return string(k)
}
