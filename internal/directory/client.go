// Package directory talks to the companion platform API for user and
// family-member lookups.
package directory

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"companion-agent/internal/common/errors"
	"companion-agent/internal/common/httpx"
	"companion-agent/internal/common/logger"
)

const serviceName = "directory"

// User is a platform user record.
type User struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
	Language    string `json:"language,omitempty"`
}

// SearchResult is a phone-number lookup result. Type discriminates between
// the primary user ("user") and a registered family member
// ("family_member"); family members carry the owning user's ID in UserID.
type SearchResult struct {
	Type        string `json:"type"`
	ID          string `json:"id,omitempty"`
	UserID      string `json:"userId,omitempty"`
	Name        string `json:"name,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Language    string `json:"language,omitempty"`
}

// IsFamilyMember reports whether the lookup matched a family member.
func (r *SearchResult) IsFamilyMember() bool {
	return r.Type == "family_member"
}

// OwnerID returns the ID of the primary user the result belongs to.
func (r *SearchResult) OwnerID() string {
	if r.IsFamilyMember() {
		return r.UserID
	}
	return r.ID
}

// Client calls the platform directory API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        logger.Logger
}

// NewClient builds a directory client.
func NewClient(baseURL string, timeout time.Duration, log logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpx.NewClient(timeout),
		log:        log,
	}
}

// GetUser fetches a user by ID.
func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	start := time.Now()
	var user User
	err := httpx.DoJSON(ctx, c.httpClient, httpx.Request{
		Method:  http.MethodGet,
		URL:     fmt.Sprintf("%s/users/%s", c.baseURL, url.PathEscape(userID)),
		Service: serviceName,
	}, &user)
	if err != nil {
		if httpx.IsNotFound(err) {
			return nil, errors.NewUserNotFoundError(fmt.Sprintf("userId: %s", userID))
		}
		return nil, errors.NewUserLookupFailedError(err)
	}

	c.log.Debug("Fetched platform user", map[string]interface{}{
		"userId":   userID,
		"duration": time.Since(start).String(),
	})
	return &user, nil
}

// SearchByPhone resolves a phone number to a user or family-member record.
func (c *Client) SearchByPhone(ctx context.Context, phoneNumber string) (*SearchResult, error) {
	start := time.Now()
	endpoint := fmt.Sprintf("%s/users/search?phoneNumber=%s", c.baseURL, url.QueryEscape(phoneNumber))

	var result SearchResult
	err := httpx.DoJSON(ctx, c.httpClient, httpx.Request{
		Method:  http.MethodGet,
		URL:     endpoint,
		Service: serviceName,
	}, &result)
	if err != nil {
		if httpx.IsNotFound(err) {
			return nil, errors.NewUserNotFoundError(fmt.Sprintf("phoneNumber: %s", phoneNumber))
		}
		return nil, errors.NewUserLookupFailedError(err)
	}

	c.log.Debug("Resolved caller by phone number", map[string]interface{}{
		"type":     result.Type,
		"duration": time.Since(start).String(),
	})
	return &result, nil
}
