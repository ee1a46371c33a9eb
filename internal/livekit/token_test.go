package livekit

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseClaims(t *testing.T, tokenStr, secret string) *Claims {
	t.Helper()
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)
	return claims
}

func TestRoomToken(t *testing.T) {
	tokenStr, err := RoomToken("api-key", "api-secret", "call-room-1", "agent-noah")
	require.NoError(t, err)

	claims := parseClaims(t, tokenStr, "api-secret")
	assert.Equal(t, "api-key", claims.Issuer)
	assert.Equal(t, "agent-noah", claims.Subject)
	require.NotNil(t, claims.Video)
	assert.True(t, claims.Video.RoomJoin)
	assert.Equal(t, "call-room-1", claims.Video.Room)
	assert.False(t, claims.Video.Agent)
}

func TestAgentToken(t *testing.T) {
	tokenStr, err := AgentToken("api-key", "api-secret", "noah")
	require.NoError(t, err)

	claims := parseClaims(t, tokenStr, "api-secret")
	assert.Equal(t, "agent-noah", claims.Subject)
	require.NotNil(t, claims.Video)
	assert.True(t, claims.Video.Agent)
}

func TestAccessTokenTTL(t *testing.T) {
	tokenStr, err := NewAccessToken("api-key", "api-secret").
		SetIdentity("user-1").
		SetGrant(&VideoGrant{RoomJoin: true, Room: "r"}).
		SetTTL(10 * time.Minute).
		ToJWT()
	require.NoError(t, err)

	claims := parseClaims(t, tokenStr, "api-secret")
	ttl := claims.ExpiresAt.Sub(claims.NotBefore.Time)
	assert.Equal(t, 10*time.Minute, ttl)
}

func TestAccessTokenValidation(t *testing.T) {
	_, err := NewAccessToken("", "").ToJWT()
	assert.Error(t, err)

	_, err = NewAccessToken("api-key", "api-secret").
		SetGrant(&VideoGrant{RoomJoin: true, Room: "r"}).
		ToJWT()
	assert.Error(t, err, "room join grant requires an identity")
}

func TestAccessTokenWrongSecret(t *testing.T) {
	tokenStr, err := RoomToken("api-key", "api-secret", "r", "u")
	require.NoError(t, err)

	claims := &Claims{}
	_, err = jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("other-secret"), nil
	})
	assert.Error(t, err)
}

func TestAgentEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "wss", in: "wss://lk.example.com", want: "wss://lk.example.com/agent"},
		{name: "https upgraded", in: "https://lk.example.com", want: "wss://lk.example.com/agent"},
		{name: "trailing slash", in: "ws://localhost:7880/", want: "ws://localhost:7880/agent"},
		{name: "bad scheme", in: "ftp://lk.example.com", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := agentEndpoint(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
