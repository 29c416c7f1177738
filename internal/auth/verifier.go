package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/media-admin/livefeed/internal/config"
)

// VerifierConfig holds configuration for JWT verification.
type VerifierConfig struct {
	Algorithm string // "RS256" or "HS256"

	// HS256
	SecretKey string

	// RS256: a static key for tokens without kid, a JWKS for the rest.
	PublicKeyPEM string
	JWKSURL      string

	JWKSRefreshInterval time.Duration
	JWKSCacheTimeout    time.Duration

	// Leeway tolerates clock skew on exp, nbf and iat.
	Leeway time.Duration
}

var (
	knownRoles  = []string{RoleViewer, RoleAdmin}
	knownScopes = []string{ScopeRead, ScopeControl, ScopeEvents}
)

// tokenClaims is the payload layout issued for dashboard users.
type tokenClaims struct {
	Roles  []string `json:"roles"`
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// Verifier checks bearer tokens against one configured algorithm.
type Verifier struct {
	algorithm string
	parser    *jwt.Parser
	secret    []byte
	publicKey *rsa.PublicKey
	jwks      *jwksCache
}

// NewVerifier creates a verifier. With a JWKS URL the key set is fetched
// once up front so a misconfigured endpoint fails at startup.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	v := &Verifier{
		algorithm: cfg.Algorithm,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{cfg.Algorithm}),
			jwt.WithLeeway(cfg.Leeway),
		),
	}

	switch cfg.Algorithm {
	case "HS256":
		if cfg.SecretKey == "" {
			return nil, errors.New("HS256 requires a secret key")
		}
		v.secret = []byte(cfg.SecretKey)
	case "RS256":
		if cfg.PublicKeyPEM == "" && cfg.JWKSURL == "" {
			return nil, errors.New("RS256 requires a public key or a JWKS URL")
		}
		if cfg.PublicKeyPEM != "" {
			key, err := parseRSAPublicKey(cfg.PublicKeyPEM)
			if err != nil {
				return nil, fmt.Errorf("failed to load public key from PEM: %w", err)
			}
			v.publicKey = key
		}
		if cfg.JWKSURL != "" {
			v.jwks = newJWKSCache(cfg.JWKSURL, &http.Client{Timeout: 10 * time.Second},
				cfg.JWKSRefreshInterval, cfg.JWKSCacheTimeout)
			if err := v.jwks.refresh(); err != nil {
				return nil, fmt.Errorf("failed to fetch initial JWKS: %w", err)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported algorithm: %q", cfg.Algorithm)
	}

	return v, nil
}

// NewVerifierFromConfig builds a verifier from the auth section of the
// configuration, with a one hour JWKS refresh and cache lifetime.
func NewVerifierFromConfig(cfg config.AuthConfig) (*Verifier, error) {
	return NewVerifier(VerifierConfig{
		Algorithm:           cfg.Algorithm,
		SecretKey:           cfg.SecretKey,
		PublicKeyPEM:        cfg.PublicKeyPEM,
		JWKSURL:             cfg.JWKSURL,
		JWKSRefreshInterval: time.Hour,
		JWKSCacheTimeout:    time.Hour,
		Leeway:              30 * time.Second,
	})
}

// VerifyToken parses and validates tokenString. Every failure wraps
// ErrInvalidToken.
func (v *Verifier) VerifyToken(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	var tc tokenClaims
	if _, err := v.parser.ParseWithClaims(tokenString, &tc, v.key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if tc.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}
	if !allKnown(tc.Roles, knownRoles) {
		return nil, fmt.Errorf("%w: invalid roles %v", ErrInvalidToken, tc.Roles)
	}
	if !allKnown(tc.Scopes, knownScopes) {
		return nil, fmt.Errorf("%w: invalid scopes %v", ErrInvalidToken, tc.Scopes)
	}

	return &Claims{Subject: tc.Subject, Roles: tc.Roles, Scopes: tc.Scopes}, nil
}

// key is the jwt.Keyfunc. The parser has already checked the algorithm.
func (v *Verifier) key(token *jwt.Token) (any, error) {
	if v.secret != nil {
		return v.secret, nil
	}

	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		if v.publicKey == nil {
			return nil, errors.New("token has no kid and no static key is configured")
		}
		return v.publicKey, nil
	}
	if v.jwks == nil {
		return nil, fmt.Errorf("token names key %q but no JWKS is configured", kid)
	}
	return v.jwks.key(kid)
}

// allKnown reports whether values is non-empty and every entry is in allowed.
func allKnown(values, allowed []string) bool {
	if len(values) == 0 {
		return false
	}
	for _, v := range values {
		if !slices.Contains(allowed, v) {
			return false
		}
	}
	return true
}

func parseRSAPublicKey(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("expected an RSA public key, got %T", pub)
	}
	return rsaPub, nil
}
