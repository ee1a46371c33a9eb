package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"companion-agent/internal/common/errors"
	"companion-agent/internal/common/httpx"
	"companion-agent/internal/common/logger"
)

const serviceName = "n8n"

// Workflow is an n8n workflow record, trimmed to what the agent uses.
type Workflow struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"createdAt"`
	Nodes     []Node `json:"nodes"`
}

// Node is a workflow node; Parameters stay raw so the user filter can do
// a substring scan over whatever shape the template used.
type Node struct {
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// ScheduledCall describes a scheduled phone-call workflow to create.
type ScheduledCall struct {
	Cron        string
	PhoneNumber string
	UserID      string
	Message     string
	Title       string
}

// Client calls the n8n REST API.
type Client struct {
	baseURL     string
	apiKey      string
	callbackURL string
	templates   *TemplateStore
	httpClient  *http.Client
	log         logger.Logger
}

// NewClient builds an n8n client.
func NewClient(baseURL, apiKey, callbackURL string, templates *TemplateStore, log logger.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		apiKey:      apiKey,
		callbackURL: callbackURL,
		templates:   templates,
		httpClient:  httpx.NewClient(15 * time.Second),
		log:         log,
	}
}

func (c *Client) headers() map[string]string {
	return map[string]string{"X-N8N-API-KEY": c.apiKey}
}

// CreateScheduled renders the scheduled-call template, creates the
// workflow, and activates it. Both calls must succeed.
func (c *Client) CreateScheduled(ctx context.Context, call ScheduledCall) (*Workflow, error) {
	payload, err := c.templates.Render("elderly-companion", TemplateParams{
		PhoneNumber:  call.PhoneNumber,
		UserID:       call.UserID,
		Cron:         call.Cron,
		CallbackURL:  c.callbackURL,
		Message:      call.Message,
		WorkflowName: call.Title,
	})
	if err != nil {
		return nil, err
	}

	var created Workflow
	err = httpx.DoJSON(ctx, c.httpClient, httpx.Request{
		Method:  http.MethodPost,
		URL:     c.baseURL + "/api/v1/workflows",
		Body:    payload,
		Headers: c.headers(),
		Service: serviceName,
	}, &created)
	if err != nil {
		return nil, errors.NewWorkflowCreateFailedError(err)
	}

	err = httpx.DoJSON(ctx, c.httpClient, httpx.Request{
		Method:  http.MethodPost,
		URL:     fmt.Sprintf("%s/api/v1/workflows/%s/activate", c.baseURL, url.PathEscape(created.ID)),
		Headers: c.headers(),
		Service: serviceName,
	}, nil)
	if err != nil {
		return nil, errors.NewWorkflowCreateFailedError(fmt.Errorf("activating workflow %s: %w", created.ID, err))
	}

	c.log.Info("Scheduled workflow created and activated", map[string]interface{}{
		"workflowId": created.ID,
		"name":       created.Name,
	})
	created.Active = true
	return &created, nil
}

// UserWorkflows lists the workflows whose node parameters reference the
// user's ID.
func (c *Client) UserWorkflows(ctx context.Context, userID string) ([]Workflow, error) {
	var resp struct {
		Data []Workflow `json:"data"`
	}
	err := httpx.DoJSON(ctx, c.httpClient, httpx.Request{
		Method:  http.MethodGet,
		URL:     c.baseURL + "/api/v1/workflows",
		Headers: c.headers(),
		Service: serviceName,
	}, &resp)
	if err != nil {
		return nil, errors.NewWorkflowListFailedError(err)
	}

	var matched []Workflow
	for _, wf := range resp.Data {
		for _, node := range wf.Nodes {
			if len(node.Parameters) > 0 && strings.Contains(string(node.Parameters), userID) {
				matched = append(matched, wf)
				break
			}
		}
	}
	return matched, nil
}

// BelongsToUser reports whether the workflow references the user's ID.
func (c *Client) BelongsToUser(ctx context.Context, workflowID, userID string) (bool, error) {
	workflows, err := c.UserWorkflows(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, wf := range workflows {
		if wf.ID == workflowID {
			return true, nil
		}
	}
	return false, nil
}

// DeleteScheduled removes a workflow. Ownership must be verified first.
func (c *Client) DeleteScheduled(ctx context.Context, workflowID string) error {
	err := httpx.DoJSON(ctx, c.httpClient, httpx.Request{
		Method:  http.MethodDelete,
		URL:     fmt.Sprintf("%s/api/v1/workflows/%s", c.baseURL, url.PathEscape(workflowID)),
		Headers: c.headers(),
		Service: serviceName,
	}, nil)
	if err != nil {
		return errors.NewWorkflowDeleteFailedError(workflowID, err)
	}
	c.log.Info("Scheduled workflow deleted", map[string]interface{}{"workflowId": workflowID})
	return nil
}
