// Package memory integrates the Zep memory store: session bootstrap,
// context retrieval, and per-turn message ingestion.
package memory

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"companion-agent/internal/common/errors"
	"companion-agent/internal/common/httpx"
	"companion-agent/internal/common/logger"
	"companion-agent/internal/common/metrics"
)

const serviceName = "zep"

// Message is a single conversational message for ingestion. RoleType is
// "user" or "assistant"; Role optionally refines the speaker (for example
// "family_member" on the onboarding path).
type Message struct {
	Content  string `json:"content"`
	Role     string `json:"role,omitempty"`
	RoleType string `json:"role_type"`
}

// Session is a memory session record.
type Session struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Client calls the Zep v2 API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        logger.Logger
}

// NewClient builds a Zep client.
func NewClient(baseURL, apiKey string, log logger.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpx.NewClient(15 * time.Second),
		log:        log,
	}
}

func (c *Client) headers() map[string]string {
	return map[string]string{"Authorization": "Api-Key " + c.apiKey}
}

// AddSession creates a new memory session for the user.
func (c *Client) AddSession(ctx context.Context, sessionID, userID string) error {
	err := httpx.DoJSON(ctx, c.httpClient, httpx.Request{
		Method: http.MethodPost,
		URL:    c.baseURL + "/sessions",
		Body: map[string]string{
			"session_id": sessionID,
			"user_id":    userID,
		},
		Headers: c.headers(),
		Service: serviceName,
	}, nil)
	if err != nil {
		return errors.NewSessionCreateError(err)
	}
	return nil
}

// Sessions lists the user's sessions, most recent first.
func (c *Client) Sessions(ctx context.Context, userID string) ([]Session, error) {
	var resp struct {
		Sessions []Session `json:"sessions"`
	}
	err := httpx.DoJSON(ctx, c.httpClient, httpx.Request{
		Method:  http.MethodGet,
		URL:     fmt.Sprintf("%s/users/%s/sessions", c.baseURL, url.PathEscape(userID)),
		Headers: c.headers(),
		Service: serviceName,
	}, &resp)
	if err != nil {
		if httpx.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.NewMemoryFetchFailedError(err)
	}

	sort.Slice(resp.Sessions, func(i, j int) bool {
		return resp.Sessions[i].CreatedAt.After(resp.Sessions[j].CreatedAt)
	})
	return resp.Sessions, nil
}

// Memory returns the assembled context block for a session.
func (c *Client) Memory(ctx context.Context, sessionID string) (string, error) {
	var resp struct {
		Context string `json:"context"`
	}
	err := httpx.DoJSON(ctx, c.httpClient, httpx.Request{
		Method:  http.MethodGet,
		URL:     fmt.Sprintf("%s/memory/%s", c.baseURL, url.PathEscape(sessionID)),
		Headers: c.headers(),
		Service: serviceName,
	}, &resp)
	if err != nil {
		return "", errors.NewMemoryFetchFailedError(err)
	}
	return resp.Context, nil
}

// AddMessages ingests messages into a session. Roles listed in ignoreRoles
// are kept in the session history and used to contextualize the other
// messages, but are not ingested into the knowledge graph. Assistant turns
// always ride along so short user replies ("Ja.") keep their meaning.
func (c *Client) AddMessages(ctx context.Context, sessionID string, msgs []Message, ignoreRoles []string) error {
	start := time.Now()
	err := httpx.DoJSON(ctx, c.httpClient, httpx.Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/memory/%s", c.baseURL, url.PathEscape(sessionID)),
		Body: map[string]interface{}{
			"messages":       msgs,
			"ignore_roles":   ignoreRoles,
			"return_context": true,
		},
		Headers: c.headers(),
		Service: serviceName,
	}, nil)
	if err != nil {
		metrics.MemoryIngestTotal.WithLabelValues("error").Inc()
		return errors.NewMemoryIngestFailedError(err)
	}

	metrics.MemoryIngestTotal.WithLabelValues("ok").Inc()
	c.log.Debug("Ingested messages into memory", map[string]interface{}{
		"sessionId": sessionID,
		"count":     len(msgs),
		"duration":  time.Since(start).String(),
	})
	return nil
}

// LatestContext returns the context of the user's most recent session, or
// "" when the user has no sessions yet.
func (c *Client) LatestContext(ctx context.Context, userID string) (string, error) {
	sessions, err := c.Sessions(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(sessions) == 0 {
		return "", nil
	}
	return c.Memory(ctx, sessions[0].SessionID)
}
