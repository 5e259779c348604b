package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/kgdatatech/securestack/internal/csrf"
)

// CSRFHeader is the header the SPA echoes the cookie value into.
const CSRFHeader = "X-CSRF-Token"

// CSRFRejectionCounter is notified on every rejected request.
type CSRFRejectionCounter interface {
	RecordCSRFRejection()
}

// CSRFGuard enforces the double-submit check on state-changing
// requests: the XSRF-TOKEN cookie and the X-CSRF-Token header must
// both be present, equal, and carry a valid HMAC.
func CSRFGuard(minter *csrf.Minter, counter CSRFRejectionCounter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(CookieCSRF)
			header := r.Header.Get(CSRFHeader)
			if err != nil || cookie.Value == "" || header == "" ||
				subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 ||
				!minter.Verify(header) {
				if counter != nil {
					counter.RecordCSRFRejection()
				}
				respondError(w, http.StatusForbidden, "invalid CSRF token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
