package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/terra-clan/quiz-engine/internal/auth"
	"github.com/terra-clan/quiz-engine/internal/models"
	"github.com/terra-clan/quiz-engine/internal/storage"
)

// AuthMiddleware authenticates admin callers. An API key is looked up first;
// a bearer token of an admin user is accepted as a full-permission client.
type AuthMiddleware struct {
	repo   storage.Repository
	tokens *auth.Service
	log    *zap.Logger
}

// NewAuthMiddleware creates new auth middleware
func NewAuthMiddleware(repo storage.Repository, tokens *auth.Service, log *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{repo: repo, tokens: tokens, log: log}
}

// Authenticate verifies the API key from the Authorization or X-API-Key header
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := extractAPIKey(r)
		if apiKey == "" {
			respondError(w, http.StatusUnauthorized, "missing_api_key", "provide Authorization header with Bearer token or X-API-Key header")
			return
		}

		client, err := m.repo.GetClientByApiKey(r.Context(), apiKey)
		if err != nil {
			m.log.Error("failed to lookup api client", zap.Error(err), zap.String("key_prefix", models.MaskKey(apiKey)))
			respondError(w, http.StatusInternalServerError, "internal_error", "authentication error")
			return
		}

		if client == nil {
			client = m.adminUserClient(r.Context(), apiKey)
		}

		if client == nil {
			m.log.Warn("invalid api key attempt",
				zap.String("key_prefix", models.MaskKey(apiKey)),
				zap.String("remote_addr", r.RemoteAddr),
			)
			respondError(w, http.StatusUnauthorized, "invalid_api_key", "the provided api key is not valid")
			return
		}

		if !client.IsActive {
			m.log.Warn("inactive client attempt", zap.String("client", client.Name))
			respondError(w, http.StatusUnauthorized, "client_inactive", "this api key has been deactivated")
			return
		}

		if client.ID != 0 {
			// Update last_used_at asynchronously (don't block request)
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := m.repo.UpdateClientLastUsed(ctx, apiKey); err != nil {
					m.log.Warn("failed to update client last_used_at", zap.Error(err), zap.String("client", client.Name))
				}
			}()
		}

		m.log.Debug("authenticated admin request", zap.String("client", client.Name))

		next.ServeHTTP(w, r.WithContext(ContextWithClient(r.Context(), client)))
	})
}

// adminUserClient accepts a user access token whose account is an admin
func (m *AuthMiddleware) adminUserClient(ctx context.Context, token string) *models.ApiClient {
	if m.tokens == nil {
		return nil
	}
	claims, err := m.tokens.Parse(token)
	if err != nil {
		return nil
	}
	user, err := m.repo.GetUser(ctx, claims.Sub)
	if err != nil || user == nil || !user.IsAdmin {
		return nil
	}
	return &models.ApiClient{
		Name:        "user:" + user.ID,
		IsActive:    true,
		CreatedAt:   user.CreatedAt,
		Permissions: []string{"*"},
	}
}

// RequirePermission returns middleware that checks for specific permission
func (m *AuthMiddleware) RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := ClientFromContext(r.Context())
			if client == nil {
				respondError(w, http.StatusUnauthorized, "not_authenticated", "authentication required")
				return
			}

			if !client.HasPermission(permission) {
				m.log.Warn("permission denied",
					zap.String("client", client.Name),
					zap.String("required", permission),
					zap.Strings("has", client.Permissions),
				)
				respondError(w, http.StatusForbidden, "permission_denied",
					"client does not have required permission: "+permission)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractAPIKey extracts API key from request headers
func extractAPIKey(r *http.Request) string {
	if key := bearerToken(r); key != "" {
		return key
	}
	return r.Header.Get("X-API-Key")
}

// UserAuth authenticates end users by their access token
type UserAuth struct {
	tokens *auth.Service
	log    *zap.Logger
}

// NewUserAuth creates the user token middleware
func NewUserAuth(tokens *auth.Service, log *zap.Logger) *UserAuth {
	return &UserAuth{tokens: tokens, log: log}
}

// RequireUser rejects requests without a valid access token. Websocket
// upgrades may pass the token as the access_token query parameter since
// browsers cannot set headers on them.
func (m *UserAuth) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" && websocket.IsWebSocketUpgrade(r) {
			token = r.URL.Query().Get("access_token")
		}
		if token == "" {
			respondError(w, http.StatusUnauthorized, "missing_token", "provide Authorization header with Bearer token")
			return
		}

		claims, err := m.tokens.Parse(token)
		if err != nil {
			m.log.Debug("rejected access token", zap.Error(err), zap.String("remote_addr", r.RemoteAddr))
			respondError(w, http.StatusUnauthorized, "invalid_token", "the access token is invalid or expired")
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
	})
}

// bearerToken reads "Bearer xxx" or a raw token from the Authorization header
func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return h
}
