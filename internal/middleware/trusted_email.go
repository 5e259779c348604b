package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

const maxBodyPeek = 1 << 20

// TrustedEmailDomain rejects registrations whose email domain is not
// on the allow-list. Entries starting with a dot are suffix matches.
// The request body is peeked and restored for the handler.
func TrustedEmailDomain(domains []string) func(http.Handler) http.Handler {
	allowed := make([]string, 0, len(domains))
	for _, d := range domains {
		allowed = append(allowed, strings.ToLower(d))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyPeek))
			if err != nil {
				respondError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var payload struct {
				Email string `json:"email"`
			}
			if err := json.Unmarshal(body, &payload); err != nil || payload.Email == "" {
				respondError(w, http.StatusBadRequest, "email is required")
				return
			}

			if !domainAllowed(payload.Email, allowed) {
				respondError(w, http.StatusBadRequest, "email provider is not allowed")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func domainAllowed(email string, allowed []string) bool {
	_, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" {
		return false
	}
	domain = strings.ToLower(domain)

	for _, d := range allowed {
		if strings.HasPrefix(d, ".") {
			if strings.HasSuffix(domain, d) {
				return true
			}
			continue
		}
		if domain == d {
			return true
		}
	}
	return false
}
