package middleware

import (
	"net/http"

	"github.com/MrEthical07/cmsauth"
)

// Guard allows the request only if the authenticated user holds the
// capability its method maps to on resource. Anonymous requests get 401,
// authenticated ones without the capability get 403.
func Guard(resource string, opts ...Option) func(http.Handler) http.Handler {
	o := buildOptions(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth, ok := AuthFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			allowed, err := auth.Authorize(r.Context(), resource, r.Method)
			if err != nil {
				o.log.Error(err, "authorize failed", "resource", resource)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			if allowed {
				next.ServeHTTP(w, r)
				return
			}

			// A failed identity check has already logged the session out.
			if _, known, _ := auth.UserData(r.Context(), "user_id"); !known {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			http.Error(w, "forbidden", http.StatusForbidden)
		})
	}
}

// RequireCSRF rejects state-changing requests whose echoed token does not
// match the CSRF cookie. The token is read from the header, then the form
// field, named by Config.CSRF.FormField.
func RequireCSRF(engine *cmsauth.Engine) func(http.Handler) http.Handler {
	field := "csrf_token"
	if engine != nil && engine.Config().CSRF.FormField != "" {
		field = engine.Config().CSRF.FormField
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			auth, ok := AuthFromContext(r.Context())
			if !ok {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			token := r.Header.Get(field)
			if token == "" {
				token = r.PostFormValue(field)
			}
			if !auth.CheckCSRF(token) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
