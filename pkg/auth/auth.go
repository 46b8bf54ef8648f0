package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrMissingKey indicates that the Authorization header was not provided.
	ErrMissingKey = errors.New("missing API key")
	// ErrInvalidPrefix indicates the header did not use the required Key prefix.
	ErrInvalidPrefix = errors.New("invalid authorization prefix")
	// ErrInvalidKey indicates the key does not match the configured access key.
	ErrInvalidKey = errors.New("invalid API key")
)

// ExtractKey parses an "Authorization: Key <token>" header.
func ExtractKey(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingKey
	}

	if !strings.HasPrefix(header, "Key ") {
		return "", ErrInvalidPrefix
	}

	token := strings.TrimPrefix(header, "Key ")
	if token == "" {
		return "", ErrMissingKey
	}

	return token, nil
}

// Middleware rejects requests whose key does not match expected. An empty
// expected key disables the check.
func Middleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if expected == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := ExtractKey(r)
			if err == nil && subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
				err = ErrInvalidKey
			}
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", "Key")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
