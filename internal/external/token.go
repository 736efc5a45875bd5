package external

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"screeningcomms/internal/types"
)

const (
	clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
	assertionLifetime   = 5 * time.Minute

	// SandboxToken is the bearer presented to sandbox endpoints.
	SandboxToken = "token"
)

// TokenSource yields a bearer token for one notify API submission.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenConfig configures the OAuth client-credentials grant.
type TokenConfig struct {
	TokenURL   string
	APIKey     string
	KID        string
	PrivateKey []byte // PEM encoded RSA key
	Logger     *slog.Logger
}

// OAuthTokenSource obtains access tokens with a signed JWT client assertion
// (RS512). A fresh token is requested for every call; nothing is cached.
type OAuthTokenSource struct {
	base   *BaseClient
	cfg    TokenConfig
	key    *rsa.PrivateKey
	now    func() time.Time
	logger *slog.Logger
}

// NewOAuthTokenSource parses the private key and returns a token source.
func NewOAuthTokenSource(base *BaseClient, cfg TokenConfig) (*OAuthTokenSource, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(cfg.PrivateKey)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeAuthNotifyToken, "invalid notify private key", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OAuthTokenSource{base: base, cfg: cfg, key: key, now: time.Now, logger: logger}, nil
}

// assertion builds the signed client assertion:
// sub = iss = api key, aud = token endpoint, fresh jti, exp = now + 5 minutes.
func (s *OAuthTokenSource) assertion() (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    s.cfg.APIKey,
		Subject:   s.cfg.APIKey,
		Audience:  jwt.ClaimStrings{s.cfg.TokenURL},
		ID:        uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(s.now().Add(assertionLifetime)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS512, claims)
	token.Header["kid"] = s.cfg.KID
	return token.SignedString(s.key)
}

// Token performs the client-credentials grant. Any status other than 200
// is reported as ErrCodeAuthNotifyToken carrying the response body.
func (s *OAuthTokenSource) Token(ctx context.Context) (string, error) {
	signed, err := s.assertion()
	if err != nil {
		return "", types.NewAppError(types.ErrCodeAuthNotifyToken, "failed to sign client assertion", err)
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_assertion_type", clientAssertionType)
	form.Set("client_assertion", signed)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("oauth: failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.base.Do(req)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeAuthNotifyToken, "token request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeAuthNotifyToken, "failed to read token response", err)
	}
	if resp.StatusCode != http.StatusOK {
		s.logger.ErrorContext(ctx, "notify token request rejected", "status", resp.StatusCode)
		return "", types.NewAppErrorWithDetails(types.ErrCodeAuthNotifyToken,
			fmt.Sprintf("token endpoint returned %d", resp.StatusCode), nil,
			map[string]any{"body": string(body)})
	}

	var tok struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &tok); err != nil || tok.AccessToken == "" {
		return "", types.NewAppError(types.ErrCodeAuthNotifyToken, "token response has no access_token", err)
	}
	return tok.AccessToken, nil
}

// StaticTokenSource always returns the same bearer.
type StaticTokenSource string

// Token returns the static bearer.
func (s StaticTokenSource) Token(context.Context) (string, error) {
	return string(s), nil
}

// IsSandbox reports whether endpoint starts with one of the sandbox
// prefixes.
func IsSandbox(endpoint string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(endpoint, p) {
			return true
		}
	}
	return false
}

// NewNotifyTokenSource picks the static sandbox bearer when batchURL is a
// sandbox endpoint and the OAuth grant otherwise.
func NewNotifyTokenSource(base *BaseClient, batchURL string, sandboxPrefixes []string, cfg TokenConfig) (TokenSource, error) {
	if IsSandbox(batchURL, sandboxPrefixes) {
		return StaticTokenSource(SandboxToken), nil
	}
	return NewOAuthTokenSource(base, cfg)
}
