package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"

	"github.com/garnizeh/estate/internal/access"
	"github.com/garnizeh/estate/internal/apperr"
	"github.com/garnizeh/estate/pkg/repository"
)

type ctxKey string

const ctxCaller ctxKey = "caller"

// package-level logger used by middleware and helpers; can be set via SetLogger from caller
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger installs a logger for the api package. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// CallerFrom returns the authenticated caller, or nil for anonymous requests.
func CallerFrom(ctx context.Context) *access.Caller {
	c, _ := ctx.Value(ctxCaller).(*access.Caller)
	return c
}

// WithCaller attaches c to ctx.
func WithCaller(ctx context.Context, c *access.Caller) context.Context {
	return context.WithValue(ctx, ctxCaller, c)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote", r.RemoteAddr),
		)
	})
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, If-Match")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic", slog.Any("err", err), slog.String("path", r.URL.Path))
				writeJSON(w, http.StatusInternalServerError, envelope{Error: &errorBody{Kind: apperr.KindInternal, Message: "internal error"}})
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// TimeoutMiddleware bounds the request context. Handlers waiting on the store
// or the language model observe the deadline.
func TimeoutMiddleware(d time.Duration) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Authenticator resolves bearer tokens to callers. The user is reloaded on
// every request so role changes and deletions take effect immediately.
type Authenticator struct {
	users  repository.UserRepo
	secret []byte
}

func NewAuthenticator(users repository.UserRepo, secret string) *Authenticator {
	return &Authenticator{users: users, secret: []byte(secret)}
}

// Optional attaches the caller when a token is present. A malformed or
// expired token is still rejected.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return a.middleware(next, false)
}

// Required rejects requests without a valid token.
func (a *Authenticator) Required(next http.Handler) http.Handler {
	return a.middleware(next, true)
}

func (a *Authenticator) middleware(next http.Handler, required bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if required {
				respondError(w, r, apperr.Unauthenticated("missing Authorization header"))
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || strings.TrimSpace(tokenString) == "" {
			respondError(w, r, apperr.Unauthenticated("invalid Authorization header"))
			return
		}

		caller, err := a.authenticate(r.Context(), strings.TrimSpace(tokenString))
		if err != nil {
			respondError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

func (a *Authenticator) authenticate(ctx context.Context, tokenString string) (*access.Caller, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Unauthenticated("token expired")
		}
		return nil, apperr.Unauthenticated("invalid token")
	}
	if claims.Subject == "" {
		return nil, apperr.Unauthenticated("invalid token")
	}

	u, err := a.users.GetUser(ctx, claims.Subject)
	if err != nil {
		return nil, apperr.Internal("load user", err)
	}
	if u == nil {
		return nil, apperr.Unauthenticated("user no longer exists")
	}
	return access.FromUser(u), nil
}

// IssueToken signs an HS256 token for userID.
func IssueToken(secret, userID string, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
