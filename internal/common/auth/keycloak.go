// internal/common/auth/keycloak.go
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cooin-core/internal/common/errors"
	commonhttp "cooin-core/internal/common/http"
)

// Identity is the verified identity of the calling user. The core only needs
// the user id for authorization checks on respond/block.
type Identity struct {
	UserID   string
	Username string
	Roles    []string
}

// Verifier resolves a bearer token to a caller identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// KeycloakVerifier validates tokens against Keycloak's introspection endpoint.
type KeycloakVerifier struct {
	baseURL      string
	realm        string
	clientID     string
	clientSecret string
	httpClient   *commonhttp.Client
}

// NewKeycloakVerifier creates a new instance of KeycloakVerifier.
func NewKeycloakVerifier(baseURL, realm, clientID, clientSecret string) *KeycloakVerifier {
	return &KeycloakVerifier{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		realm:        realm,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   commonhttp.NewClient(10 * time.Second),
	}
}

type introspectionResponse struct {
	Active            bool   `json:"active"`
	Subject           string `json:"sub"`
	PreferredUsername string `json:"preferred_username"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

// Verify validates the token via RFC 7662 introspection and returns the
// caller identity. Inactive or malformed tokens fail with NotAuthorized.
func (k *KeycloakVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	introspectURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token/introspect", k.baseURL, k.realm)

	data := url.Values{}
	data.Set("token", token)
	data.Set("client_id", k.clientID)
	data.Set("client_secret", k.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, introspectURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create introspection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token introspection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("token introspection returned %d: %s", resp.StatusCode, string(body))
	}

	var introspection introspectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&introspection); err != nil {
		return nil, fmt.Errorf("failed to decode introspection response: %w", err)
	}

	if !introspection.Active || introspection.Subject == "" {
		return nil, errors.NewNotAuthorizedError("token is not active")
	}

	return &Identity{
		UserID:   introspection.Subject,
		Username: introspection.PreferredUsername,
		Roles:    introspection.RealmAccess.Roles,
	}, nil
}

// StaticVerifier resolves tokens from a fixed map. Used in tests and local
// development where no Keycloak is available.
type StaticVerifier struct {
	Tokens map[string]Identity
}

func (s *StaticVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	id, ok := s.Tokens[token]
	if !ok {
		return nil, errors.NewNotAuthorizedError("unknown token")
	}
	return &id, nil
}
