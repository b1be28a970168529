package apitest

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// record appends the request line and runs the OnRequest hook.
func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		line := r.Method + " " + r.URL.Path
		if r.URL.RawQuery != "" {
			line += "?" + r.URL.RawQuery
		}
		s.mu.Lock()
		s.requests = append(s.requests, line)
		hook := s.onRequest
		s.mu.Unlock()

		if hook != nil {
			hook(r)
		}
		next.ServeHTTP(w, r)
	})
}

// injectFailures answers with a queued failure when one matches the route.
func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rctx := chi.NewRouteContext()
		pattern := r.URL.Path
		if s.router.Match(rctx, r.Method, r.URL.Path) {
			pattern = rctx.RoutePattern()
		}

		s.mu.Lock()
		key := r.Method + " " + pattern
		queue := s.failures[key]
		var f *failure
		if len(queue) > 0 {
			f = &queue[0]
			s.failures[key] = queue[1:]
		}
		s.mu.Unlock()

		if f != nil {
			writeDetail(w, f.status, f.detail)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerAuth rejects requests without a token issued by login or IssueToken.
func (s *Server) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		_, valid := s.tokens[token]
		s.mu.Unlock()
		if !ok || !valid {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}
