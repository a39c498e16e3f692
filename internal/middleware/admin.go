package middleware

import (
	"net/http"

	"github.com/openclaw/wager-server-go/internal/audit"
	apperrors "github.com/openclaw/wager-server-go/internal/errors"
	"github.com/openclaw/wager-server-go/internal/util"
)

const AdminUser = "admin"

// AdminAuthMiddleware guards operator routes with HTTP basic auth checked
// against a bcrypt hash. An empty hash disables the routes.
type AdminAuthMiddleware struct {
	passwordHash string
}

func NewAdminAuthMiddleware(passwordHash string) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{passwordHash: passwordHash}
}

func (m *AdminAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.passwordHash == "" {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "Admin not configured",
			})
			return
		}

		user, password, ok := r.BasicAuth()
		if !ok || !util.ConstantTimeEqual(user, AdminUser) || !util.CheckPasswordHash(password, m.passwordHash) {
			audit.LogFromRequest(r, audit.Event{Type: audit.EventAdminFailure})
			w.Header().Set("WWW-Authenticate", `Basic realm="wager-admin"`)
			writeError(w, apperrors.Unauthorized("Unauthorized"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
