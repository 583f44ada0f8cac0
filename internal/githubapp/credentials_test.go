package githubapp

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeyPEM(t *testing.T) (string, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	return string(pem.EncodeToMemory(block)), key
}

func TestLoadCredentials(t *testing.T) {
	pemStr, _ := testKeyPEM(t)

	t.Run("MissingAppID", func(t *testing.T) {
		_, err := LoadCredentials("", pemStr, "")
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
	})

	t.Run("MissingKey", func(t *testing.T) {
		_, err := LoadCredentials("12345", "", "")
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
	})

	t.Run("GarbageKey", func(t *testing.T) {
		_, err := LoadCredentials("12345", "not a pem", "")
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
	})

	t.Run("InlinePEM", func(t *testing.T) {
		creds, err := LoadCredentials("12345", pemStr, "")
		require.NoError(t, err)
		assert.Equal(t, "12345", creds.AppID)
	})
}

func TestSignClaims(t *testing.T) {
	pemStr, key := testKeyPEM(t)
	creds, err := LoadCredentials("98765", pemStr, "")
	require.NoError(t, err)

	fixed := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	creds.now = func() time.Time { return fixed }

	assertion, err := creds.Sign()
	require.NoError(t, err)

	assert.Equal(t, fixed.Add(-60*time.Second), assertion.IssuedAt)
	assert.Equal(t, fixed.Add(10*time.Minute), assertion.ExpiresAt)

	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(assertion.Token, &claims, func(tok *jwt.Token) (interface{}, error) {
		return &key.PublicKey, nil
	}, jwt.WithTimeFunc(func() time.Time { return fixed }))
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	assert.Equal(t, "98765", claims.Issuer)
	assert.Equal(t, fixed.Add(-60*time.Second).Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, fixed.Add(10*time.Minute).Unix(), claims.ExpiresAt.Unix())
	assert.Equal(t, "RS256", parsed.Method.Alg())
}
