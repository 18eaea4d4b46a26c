package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// AuthConfig selects how bearer tokens are verified. With UserinfoURL
// set, tokens are checked against the identity provider's userinfo
// endpoint. Otherwise Secret enables local HS256 validation.
type AuthConfig struct {
	UserinfoURL string
	Secret      string
	Timeout     time.Duration
}

type contextKey string

const userKey contextKey = "user"

// Username returns the authenticated user stored by the auth middleware.
func Username(ctx context.Context) string {
	u, _ := ctx.Value(userKey).(string)
	return u
}

type authenticator struct {
	cfg  AuthConfig
	http *http.Client
}

func newAuthenticator(cfg AuthConfig) *authenticator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &authenticator{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

// middleware rejects requests without a valid bearer token and stores
// the resolved username in the request context.
func (a *authenticator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		user, err := a.resolve(r.Context(), token)
		if err != nil {
			log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Rejected request")
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *authenticator) resolve(ctx context.Context, token string) (string, error) {
	if a.cfg.UserinfoURL != "" {
		return a.userinfo(ctx, token)
	}
	return a.localValidate(token)
}

// userinfo asks the identity provider who the token belongs to. Any
// OIDC provider with a userinfo endpoint works, the hub never sees
// credentials.
func (a *authenticator) userinfo(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.UserinfoURL, nil)
	if err != nil {
		return "", fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("userinfo returned %s", resp.Status)
	}

	var info struct {
		PreferredUsername string `json:"preferred_username"`
		Sub               string `json:"sub"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("decode userinfo: %w", err)
	}
	if info.PreferredUsername != "" {
		return info.PreferredUsername, nil
	}
	if info.Sub != "" {
		return info.Sub, nil
	}
	return "", fmt.Errorf("userinfo carries no username")
}

// localValidate checks the token signature against the shared secret.
func (a *authenticator) localValidate(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(a.cfg.Secret), nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", fmt.Errorf("invalid token claims")
	}
	if name, _ := claims["preferred_username"].(string); name != "" {
		return name, nil
	}
	if sub, _ := claims["sub"].(string); sub != "" {
		return sub, nil
	}
	return "", fmt.Errorf("token carries no username")
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return auth[len(prefix):]
	}
	return ""
}
