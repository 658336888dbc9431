package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/lmsstorage/internal/common"
	"github.com/dmitrijs2005/lmsstorage/internal/netx"
	"github.com/dmitrijs2005/lmsstorage/internal/server/auth"
	"github.com/dmitrijs2005/lmsstorage/internal/server/reqmeta"
	"github.com/gorilla/mux"
)

type ctxKey string

const userIDKey ctxKey = "userID"

func withUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// userIDFrom returns the authenticated caller, or "" outside authMiddleware.
func userIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// authMiddleware resolves the bearer token into the caller's user id.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(common.AuthorizationHeaderName)
		if !strings.HasPrefix(header, common.BearerPrefix) {
			writeJSONError(w, http.StatusUnauthorized, "missing token")
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, common.BearerPrefix))
		if token == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing token")
			return
		}

		userID, err := auth.GetUserIDFromToken(token, s.opts.SecretKey)
		if err != nil {
			s.logger.Debug(r.Context(), "token rejected", "error", err)
			writeJSONError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), userID)))
	})
}

// clientInfoMiddleware stores the caller's address and user agent for the
// access log.
func (s *Server) clientInfoMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := reqmeta.WithClientInfo(r.Context(), reqmeta.ClientInfo{
			IPAddress: netx.ClientIP(r, s.opts.TrustedProxies),
			UserAgent: r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware counts requests by route template so file ids do not
// explode label cardinality.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		s.metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
