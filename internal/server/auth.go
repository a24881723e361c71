package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"path"
	"regexp"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"sprintdeck/internal/storage"
)

type AuthConfig struct {
	// JWTSecret enables multi-user mode. Empty means single-user: every
	// request runs in the unowned scope with no credential required.
	JWTSecret string

	// OrchestratorKey is the shared secret the sprint driver presents on the
	// checkpoint and resume endpoints. Empty means no driver is allowed.
	OrchestratorKey string

	Logger *log.Logger
}

type Principal struct {
	OwnerID string
	Source  string
}

type principalKey struct{}

func (c AuthConfig) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func ownerFromContext(ctx context.Context) string {
	if p, ok := ctx.Value(principalKey{}).(Principal); ok {
		return p.OwnerID
	}
	return ""
}

type jwtClaims struct {
	jwt.RegisteredClaims
}

func authenticateJWT(token, secret string) (Principal, error) {
	if strings.TrimSpace(secret) == "" {
		return Principal{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !parsed.Valid {
		return Principal{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return Principal{}, errors.New("subject claim required")
	}
	return Principal{OwnerID: claims.Subject, Source: "jwt"}, nil
}

func authenticateAPIKey(ctx context.Context, store storage.Storage, key string) (Principal, error) {
	if strings.TrimSpace(key) == "" {
		return Principal{}, errors.New("api key required")
	}
	apiKey, err := store.GetAPIKeyByHash(ctx, storage.HashAPIKey(key))
	if err != nil {
		return Principal{}, err
	}
	return Principal{OwnerID: apiKey.OwnerID, Source: "api_key"}, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// driverPathPattern matches the endpoints the sprint driver calls with the
// shared orchestrator key instead of a user credential.
var driverPathPattern = regexp.MustCompile(`^/sprints/\d+/(checkpoint|resume)$`)

func isDriverPath(basePath, urlPath string) bool {
	rel := strings.TrimPrefix(urlPath, basePath)
	return driverPathPattern.MatchString(rel)
}

// checkDriverKey validates the driver bearer against the shared secret. An
// unset secret is a server misconfiguration, not a client error.
func checkDriverKey(cfg AuthConfig, authz string) huma.StatusError {
	if strings.TrimSpace(cfg.OrchestratorKey) == "" {
		return newAPIError(http.StatusServiceUnavailable, "orchestrator_unconfigured",
			"orchestrator key is not configured", nil)
	}
	token, ok := bearerToken(authz)
	if !ok {
		return newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil)
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(cfg.OrchestratorKey)) != 1 {
		return newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil)
	}
	return nil
}

func newAuthMiddleware(basePath string, cfg AuthConfig, store storage.Storage) func(http.Handler) http.Handler {
	healthPath := path.Join(basePath, "health")
	openapiPath := path.Join(basePath, "openapi.json")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			// Only enforce for API base path.
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if req.URL.Path == healthPath || req.URL.Path == openapiPath {
				next.ServeHTTP(w, req)
				return
			}

			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			apiKeyHeader := strings.TrimSpace(req.Header.Get("X-Api-Key"))

			if isDriverPath(basePath, req.URL.Path) {
				if err := checkDriverKey(cfg, authz); err != nil {
					respondStatusError(w, err)
					return
				}
				// The driver runs in the single-user scope unless it carries
				// an api key for a specific owner alongside the shared key.
				principal := Principal{Source: "driver"}
				if apiKeyHeader != "" {
					p, err := authenticateAPIKey(req.Context(), store, apiKeyHeader)
					if err != nil {
						respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
						return
					}
					principal.OwnerID = p.OwnerID
				}
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
				return
			}

			if cfg.JWTSecret == "" {
				// Single-user mode.
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), Principal{Source: "single_user"})))
				return
			}

			if authz != "" {
				token, ok := bearerToken(authz)
				if !ok {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				principal, err := authenticateJWT(token, cfg.JWTSecret)
				if err != nil {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
				return
			}

			if apiKeyHeader != "" {
				principal, err := authenticateAPIKey(req.Context(), store, apiKeyHeader)
				if err != nil {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
				return
			}

			respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
