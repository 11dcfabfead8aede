package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123"

func TestIssueAndParse(t *testing.T) {
	tokens := NewTokens(secret)
	tok, err := tokens.Issue("alice", time.Minute)
	require.NoError(t, err)

	sub, err := tokens.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", sub)
}

func TestParseRejects(t *testing.T) {
	tokens := NewTokens(secret)

	expired, err := tokens.Issue("alice", -time.Minute)
	require.NoError(t, err)
	_, err = tokens.Parse(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	foreign, err := NewTokens("another-secret-value").Issue("alice", time.Minute)
	require.NoError(t, err)
	_, err = tokens.Parse(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "alice"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = tokens.Parse(none)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = tokens.Parse("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
