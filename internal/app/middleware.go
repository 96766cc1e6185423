package app

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"
	"golang.org/x/crypto/bcrypt"

	"github.com/mobilsoft/backoffice/internal/observability"
	"github.com/mobilsoft/backoffice/internal/platform/httpx"
	"github.com/mobilsoft/backoffice/internal/shared"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack installs the process-wide middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		SSLRedirect:           cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         !cfg.Config.IsProduction(),
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware)
	}
	return middlewares
}

// RateLimit limits requests per bearer token and client IP.
func RateLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP, keyByToken),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded")
		}),
	)
}

func keyByToken(r *http.Request) (string, error) {
	token := bearerToken(r)
	if token == "" {
		return "", nil
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8]), nil
}

// TokenAuth checks the bearer token against a bcrypt hash. Verified tokens are
// remembered by digest so bcrypt runs once per token. An empty hash lets every
// request through.
type TokenAuth struct {
	hash   []byte
	logger *slog.Logger

	mu       sync.Mutex
	verified map[[sha256.Size]byte]struct{}
}

// NewTokenAuth returns an authenticator for hash.
func NewTokenAuth(hash string, logger *slog.Logger) *TokenAuth {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenAuth{hash: []byte(hash), logger: logger, verified: make(map[[sha256.Size]byte]struct{})}
}

// Middleware rejects requests without a valid bearer token.
func (a *TokenAuth) Middleware(next http.Handler) http.Handler {
	if len(a.hash) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" || !a.check(token) {
			a.logger.Warn("rejected api request", slog.String("path", r.URL.Path), slog.String("request_id", middleware.GetReqID(r.Context())))
			w.Header().Set("WWW-Authenticate", `Bearer realm="backoffice"`)
			httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrUnauthorized, shared.ErrInvalidCredentials))
			return
		}
		digest := sha256.Sum256([]byte(token))
		ctx := shared.ContextWithActor(r.Context(), "token:"+hex.EncodeToString(digest[:4]))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *TokenAuth) check(token string) bool {
	digest := sha256.Sum256([]byte(token))
	a.mu.Lock()
	_, ok := a.verified[digest]
	a.mu.Unlock()
	if ok {
		return true
	}
	if bcrypt.CompareHashAndPassword(a.hash, []byte(token)) != nil {
		return false
	}
	a.mu.Lock()
	a.verified[digest] = struct{}{}
	a.mu.Unlock()
	return true
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
