// Package livekit implements the agent worker protocol: access tokens,
// worker registration over WebSocket, and the room-side RPC channel.
package livekit

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// VideoGrant describes the room permissions embedded in an access token.
type VideoGrant struct {
	RoomJoin bool   `json:"roomJoin,omitempty"`
	Room     string `json:"room,omitempty"`
	Agent    bool   `json:"agent,omitempty"`
}

// Claims is the JWT claim set for server API access.
type Claims struct {
	jwt.RegisteredClaims
	Video    *VideoGrant       `json:"video,omitempty"`
	Metadata string            `json:"metadata,omitempty"`
	Attrs    map[string]string `json:"attributes,omitempty"`
}

// AccessToken mints signed JWTs for a key/secret pair.
type AccessToken struct {
	apiKey    string
	apiSecret string
	identity  string
	grant     *VideoGrant
	ttl       time.Duration
}

// NewAccessToken creates a token builder. TTL defaults to 6 hours, which
// covers the longest expected call plus worker lifetime slack.
func NewAccessToken(apiKey, apiSecret string) *AccessToken {
	return &AccessToken{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		ttl:       6 * time.Hour,
	}
}

func (t *AccessToken) SetIdentity(identity string) *AccessToken {
	t.identity = identity
	return t
}

func (t *AccessToken) SetGrant(grant *VideoGrant) *AccessToken {
	t.grant = grant
	return t
}

func (t *AccessToken) SetTTL(ttl time.Duration) *AccessToken {
	t.ttl = ttl
	return t
}

// ToJWT signs and serializes the token.
func (t *AccessToken) ToJWT() (string, error) {
	if t.apiKey == "" || t.apiSecret == "" {
		return "", errors.New("api key and secret are required")
	}
	if t.identity == "" && t.grant != nil && t.grant.RoomJoin {
		return "", errors.New("identity is required for a room join grant")
	}

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.apiKey,
			Subject:   t.identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		Video: t.grant,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(t.apiSecret))
}

// AgentToken mints the token the worker uses to register itself.
func AgentToken(apiKey, apiSecret, agentName string) (string, error) {
	return NewAccessToken(apiKey, apiSecret).
		SetIdentity("agent-" + agentName).
		SetGrant(&VideoGrant{Agent: true}).
		ToJWT()
}

// RoomToken mints a token for joining a specific room.
func RoomToken(apiKey, apiSecret, room, identity string) (string, error) {
	return NewAccessToken(apiKey, apiSecret).
		SetIdentity(identity).
		SetGrant(&VideoGrant{RoomJoin: true, Room: room}).
		ToJWT()
}
