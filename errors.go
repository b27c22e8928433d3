package nx595e

import "errors"

// Errors returned by the client. Every error returned wraps exactly one of
// these, so callers can classify failures with errors.Is.
var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrAuthentication       = errors.New("authentication failed")
	ErrUnsupportedPanel     = errors.New("unsupported panel")
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrSessionExpired       = errors.New("session expired")
	ErrNetwork              = errors.New("network error")
	ErrInvalidCommand       = errors.New("invalid command")
	ErrUnknownBank          = errors.New("unknown bank")
	ErrParse                = errors.New("could not parse panel response")
)
