package middleware

import (
	"context"
	"errors"
	"net/http"

	authguard "github.com/coreledger/authguard"
	"github.com/coreledger/authguard/rbac"
)

type principalContextKey struct{}

// PrincipalFromContext returns the principal injected by
// [RequireAuth], if any.
func PrincipalFromContext(ctx context.Context) (*authguard.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*authguard.Principal)
	return p, ok
}

// RequireAuth authenticates the Authorization header and injects the
// principal into the request context. Requests without a valid
// credential get 401; a valid credential on a locked account gets 423.
func RequireAuth(engine *authguard.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := authguard.WithClientIP(r.Context(), remoteIP(r))
			if deviceID := r.Header.Get("X-Device-ID"); deviceID != "" {
				ctx = authguard.WithDeviceID(ctx, deviceID)
			}
			ctx = authguard.WithUserAgent(ctx, r.UserAgent())

			principal, err := engine.Authenticate(ctx, r.Header.Get("Authorization"))
			if err != nil {
				if errors.Is(err, authguard.ErrAccountLocked) {
					http.Error(w, "account locked", http.StatusLocked)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx = context.WithValue(ctx, principalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission layers one permission check on top of
// [RequireAuth]. It must run inside RequireAuth; without a principal
// in context it answers 401.
func RequirePermission(engine *authguard.Engine, resource rbac.Resource, action rbac.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if err := engine.AuthorizeAction(r.Context(), principal, resource, action); err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireStepUp gates a sensitive route on a fresh MFA verification
// or a trusted device. Callers that still need step-up get 403 with
// an X-StepUp-Required header so clients can branch into the
// challenge flow.
func RequireStepUp(engine *authguard.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			need, err := engine.RequiresStepUp(r.Context(), principal.ID)
			if err != nil || need {
				w.Header().Set("X-StepUp-Required", "true")
				http.Error(w, "step-up required", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func remoteIP(r *http.Request) string {
	// RemoteAddr is host:port; trim the port, minding IPv6 brackets.
	addr := r.RemoteAddr
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
		if addr[i] == ']' {
			break
		}
	}
	return addr
}
