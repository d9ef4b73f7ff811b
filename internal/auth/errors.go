package auth

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("auth: not found")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrDuplicateEmail     = errors.New("auth: email already registered")
	ErrWeakPassword       = errors.New("auth: password does not meet policy")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrAccountInactive    = errors.New("auth: account is inactive")
	ErrEmailNotVerified   = errors.New("auth: email not verified")
	ErrNoRoleAssigned     = errors.New("auth: account has no role assigned")
	ErrForbiddenRole      = errors.New("auth: role grant not permitted")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrTokenRevoked       = errors.New("auth: token revoked")
	ErrUnauthorized       = errors.New("auth: unauthorized")
	ErrForbidden          = errors.New("auth: forbidden")
)

// WeakPasswordError carries every violated policy rule, not just the first.
type WeakPasswordError struct {
	Violations []string
}

func (e *WeakPasswordError) Error() string {
	return fmt.Sprintf("%v: %s", ErrWeakPassword, strings.Join(e.Violations, "; "))
}

// Is makes errors.Is(err, ErrWeakPassword) hold for wrapped policy failures.
func (e *WeakPasswordError) Is(target error) bool { return target == ErrWeakPassword }
