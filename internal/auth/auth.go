// Package auth carries the plugin access token and the checks a host applies to it.
//
// It intentionally avoids policy decisions and storage concerns.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var (
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrNoBearer     = errors.New("auth: missing bearer token")
)

const bearerPrefix = "Bearer "

// Token is an access token that never prints its value.
type Token string

func (t Token) String() string {
	if t == "" {
		return ""
	}
	return "[redacted]"
}

func (t Token) Value() string { return string(t) }

func (t Token) Empty() bool { return strings.TrimSpace(string(t)) == "" }

// BearerHeader returns an Authorization header for t, or nil when t is empty.
func BearerHeader(t Token) http.Header {
	if t.Empty() {
		return nil
	}
	h := http.Header{}
	h.Set("Authorization", bearerPrefix+t.Value())
	return h
}

// FromRequest extracts the bearer token from an Authorization header.
func FromRequest(r *http.Request) (Token, error) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) < len(bearerPrefix) || !strings.EqualFold(raw[:len(bearerPrefix)], bearerPrefix) {
		return "", ErrNoBearer
	}
	tok := strings.TrimSpace(raw[len(bearerPrefix):])
	if tok == "" {
		return "", ErrNoBearer
	}
	return Token(tok), nil
}

// Validator validates an authentication token.
type Validator interface {
	Validate(token string) error
}

// StaticToken is a simple validator for a single shared token.
// It is intended only for development and tests.
type StaticToken struct {
	Token string
}

func (s StaticToken) Validate(token string) error {
	if s.Token == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(token string) error

func (f FuncValidator) Validate(token string) error {
	return f(token)
}
