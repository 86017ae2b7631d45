package cmsauth

import (
	"context"
	"time"

	"github.com/MrEthical07/cmsauth/permission"
)

// Principal is what a [UserProvider] returns for verified credentials.
type Principal struct {
	UserID    string
	SuperUser bool
	// Permission is the user's global permission, applied to every resource.
	Permission permission.Value
}

// Identity is the authenticated state stored in the session under
// [IdentityKey]. Field names double as [Auth.UserData] keys.
type Identity struct {
	UserID     string `json:"user_id"`
	SuperUser  bool   `json:"super_user"`
	Permission int    `json:"permission"`
	CSRFToken  string `json:"csrf_token"`
	IP         string `json:"ip"`
}

// IdentityKey is the session payload key holding the [Identity].
const IdentityKey = "auth"

// PermissionValue returns the global permission carried by the identity.
func (i Identity) PermissionValue() permission.Value {
	if i.SuperUser {
		return permission.Super()
	}
	return permission.New(permission.Decimal(i.Permission))
}

// toMap mirrors the JSON field names.
func (i Identity) toMap() map[string]any {
	return map[string]any{
		"user_id":    i.UserID,
		"super_user": i.SuperUser,
		"permission": i.Permission,
		"csrf_token": i.CSRFToken,
		"ip":         i.IP,
	}
}

// UserProvider verifies login credentials. It returns false, nil for unknown
// identifiers and wrong secrets alike.
type UserProvider interface {
	VerifyCredentials(ctx context.Context, identifier, secret string) (Principal, bool, error)
}

// PermissionSource returns the resource-specific grant of a user. A missing
// grant is reported as false, nil.
type PermissionSource interface {
	GetPermission(ctx context.Context, userID string, resourceID int) (permission.Input, bool, error)
}

// LoginAttempt is the failed-login counter of one IP.
type LoginAttempt struct {
	Attempts    int
	LastAttempt time.Time
}

// AttemptStore persists per-IP failed-login counters.
type AttemptStore interface {
	GetLoginAttempt(ctx context.Context, ip string) (LoginAttempt, bool, error)
	// SetLoginAttempt records one more failed attempt at time at and returns the
	// updated counter.
	SetLoginAttempt(ctx context.Context, ip string, at time.Time) (LoginAttempt, error)
	ClearLoginAttempt(ctx context.Context, ip string) error
}

// LoginStatus is the outcome of [Auth.Authenticate].
type LoginStatus uint8

const (
	LoginFailed LoginStatus = iota
	LoginSucceeded
	// LoginLockedOut means the IP must wait LoginResult.RetryAfter seconds.
	LoginLockedOut
)

func (s LoginStatus) String() string {
	switch s {
	case LoginSucceeded:
		return "succeeded"
	case LoginLockedOut:
		return "locked_out"
	}
	return "failed"
}

// LoginResult reports a login outcome. RetryAfter is positive only for
// [LoginLockedOut].
type LoginResult struct {
	Status     LoginStatus
	RetryAfter int64
}

// OK reports whether the login succeeded.
func (r LoginResult) OK() bool {
	return r.Status == LoginSucceeded
}
