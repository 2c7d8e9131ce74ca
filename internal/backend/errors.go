package backend

import (
	"errors"
	"net/http"
)

var (
	ErrMissingCredentials = errors.New("email and password are required")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEndpointNotFound   = errors.New("backend endpoint not found")
	ErrServer             = errors.New("backend server error")
	ErrNetwork            = errors.New("backend unreachable")
	ErrMalformedResponse  = errors.New("malformed backend response")
	ErrUnexpectedStatus   = errors.New("unexpected backend status")
)

// Category names the failure class of err for logs and metrics.
func Category(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMissingCredentials):
		return "missing_credentials"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrEndpointNotFound):
		return "not_found"
	case errors.Is(err, ErrServer):
		return "server_error"
	case errors.Is(err, ErrNetwork):
		return "network_error"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrUnexpectedStatus):
		return "unexpected_status"
	default:
		return "unknown"
	}
}

// Unavailable reports whether err means the backend could not answer the
// question, as opposed to answering it negatively.
func Unavailable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrInvalidCredentials) && !errors.Is(err, ErrMissingCredentials)
}

func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrInvalidCredentials
	case code == http.StatusNotFound:
		return ErrEndpointNotFound
	case code >= 500:
		return ErrServer
	default:
		return ErrUnexpectedStatus
	}
}
