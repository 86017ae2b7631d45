package cmsauth

import (
	"errors"

	"github.com/MrEthical07/cmsauth/db"
	"github.com/MrEthical07/cmsauth/session"
)

var (
	// ErrUnavailable wraps backing store failures. A request that receives it
	// cannot proceed.
	ErrUnavailable = db.ErrUnavailable
	// ErrSessionNotActive is returned when session data is accessed outside an active session.
	ErrSessionNotActive = session.ErrNotActive
	// ErrMissingSalt is returned by Build when no session salt is configured.
	ErrMissingSalt = session.ErrMissingSalt
	// ErrUserProviderRequired is returned by Build without a [UserProvider].
	ErrUserProviderRequired = errors.New("user provider required")
	// ErrDatabaseRequired is returned by Build without a database handle.
	ErrDatabaseRequired = errors.New("database required")
	// ErrEngineNotReady is returned by operations on a nil or closed engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrUnknownResource reports a resource name the registry does not know.
	ErrUnknownResource = errors.New("unknown resource")
	// ErrCSRFUnavailable is returned when a CSRF token could not be minted.
	ErrCSRFUnavailable = errors.New("csrf token unavailable")
)
