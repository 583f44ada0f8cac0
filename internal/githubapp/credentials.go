package githubapp

import (
	"crypto/rsa"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// assertionLifetime is the validity window GitHub allows for app JWTs.
	assertionLifetime = 10 * time.Minute
	// assertionBackdate absorbs clock skew between us and GitHub.
	assertionBackdate = 60 * time.Second
)

// Credentials holds the GitHub App identity: the numeric app ID used as the
// JWT issuer plus the RSA private key GitHub generated for the app. Loaded
// once at startup and immutable afterwards.
type Credentials struct {
	AppID string
	key   *rsa.PrivateKey

	now func() time.Time
}

// SignedAssertion is a short-lived app JWT. It is cheap to regenerate and
// only ever used to mint installation tokens, so it is never cached.
type SignedAssertion struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// LoadCredentials builds Credentials from an app ID and key material. The
// key may be given inline as a PEM string or as a path to a PEM file; the
// inline form wins when both are set.
func LoadCredentials(appID, keyPEM, keyPath string) (*Credentials, error) {
	if appID == "" {
		return nil, &ConfigError{Reason: "app id is not set"}
	}

	pemBytes := []byte(keyPEM)
	if keyPEM == "" {
		if keyPath == "" {
			return nil, &ConfigError{Reason: "no private key configured"}
		}
		b, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, &ConfigError{Reason: fmt.Sprintf("reading private key %s: %v", keyPath, err)}
		}
		pemBytes = b
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("parsing private key: %v", err)}
	}

	return &Credentials{AppID: appID, key: key, now: time.Now}, nil
}

// Sign produces a fresh app JWT: {iat: now-60s, exp: now+10m, iss: appID},
// signed RS256. The backdated iat keeps GitHub from rejecting the token
// when our clock runs slightly ahead of theirs.
func (c *Credentials) Sign() (SignedAssertion, error) {
	now := c.now()
	issuedAt := now.Add(-assertionBackdate)
	expiresAt := now.Add(assertionLifetime)

	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		Issuer:    c.AppID,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.key)
	if err != nil {
		return SignedAssertion{}, fmt.Errorf("signing app assertion: %w", err)
	}

	return SignedAssertion{Token: token, IssuedAt: issuedAt, ExpiresAt: expiresAt}, nil
}
