package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	service := NewService("test-secret")
	service.RegisterAPICredentials("owner-key", "owner-secret")

	token, err := service.GenerateToken(Credentials{
		APIKey:    "owner-key",
		APISecret: "owner-secret",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token.Token)

	claims, err := service.ValidateToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, "owner-key", claims.ClientID)
	assert.Contains(t, claims.Permissions, "dca")
}

func TestGenerateTokenRejectsBadCredentials(t *testing.T) {
	service := NewService("test-secret")
	service.RegisterAPICredentials("owner-key", "owner-secret")

	tests := []struct {
		name  string
		creds Credentials
	}{
		{"wrong secret", Credentials{APIKey: "owner-key", APISecret: "nope"}},
		{"unknown key", Credentials{APIKey: "other", APISecret: "owner-secret"}},
		{"empty", Credentials{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.GenerateToken(tc.creds)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewService("secret-a")
	issuer.RegisterAPICredentials("owner-key", "owner-secret")

	token, err := issuer.GenerateToken(Credentials{APIKey: "owner-key", APISecret: "owner-secret"})
	require.NoError(t, err)

	verifier := NewService("secret-b")
	_, err = verifier.ValidateToken(token.Token)
	assert.Error(t, err)
}
