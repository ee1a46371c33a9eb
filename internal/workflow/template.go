// Package workflow manages scheduled phone-call workflows on an n8n
// instance: template rendering, creation + activation, listing, deletion.
package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"companion-agent/internal/common/errors"
)

// TemplateParams carries the values substituted into a workflow template.
type TemplateParams struct {
	PhoneNumber  string
	UserID       string
	Cron         string
	CallbackURL  string
	Message      string
	WorkflowName string
}

// workflowSchema is the minimal shape a rendered template must satisfy
// before it is posted to n8n.
const workflowSchema = `{
	"type": "object",
	"required": ["name", "nodes", "connections"],
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"nodes": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["name", "type"],
				"properties": {
					"name": {"type": "string"},
					"type": {"type": "string"},
					"parameters": {"type": "object"}
				}
			}
		},
		"connections": {"type": "object"},
		"settings": {"type": "object"}
	}
}`

// TemplateStore loads workflow templates from disk and renders them.
type TemplateStore struct {
	dir    string
	schema *gojsonschema.Schema
}

// NewTemplateStore builds a store rooted at dir.
func NewTemplateStore(dir string) (*TemplateStore, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(workflowSchema))
	if err != nil {
		return nil, fmt.Errorf("compiling workflow schema: %w", err)
	}
	return &TemplateStore{dir: dir, schema: schema}, nil
}

// Render loads the named template, substitutes the placeholders literally,
// validates the result, and returns the workflow payload.
//
// The placeholders use n8n's expression syntax but are substituted before
// upload, so each created workflow is self-contained.
func (s *TemplateStore) Render(name string, params TemplateParams) (map[string]interface{}, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, name+".json"))
	if err != nil {
		return nil, errors.NewTemplateNotFoundError(name)
	}

	replacer := strings.NewReplacer(
		"{{ $json.phoneNumber }}", params.PhoneNumber,
		"{{ $json.userId }}", params.UserID,
		"{{ $json.cron }}", params.Cron,
		"{{ $json.ELDERLY_COMPANION_API }}", params.CallbackURL,
		"{{ $json.message }}", params.Message,
		"{{ $json.workflowName }}", params.WorkflowName,
	)
	rendered := replacer.Replace(string(raw))

	result, err := s.schema.Validate(gojsonschema.NewStringLoader(rendered))
	if err != nil {
		return nil, errors.NewTemplateInvalidError(err.Error())
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}
		return nil, errors.NewTemplateInvalidError(strings.Join(details, "; "))
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(rendered), &payload); err != nil {
		return nil, errors.NewTemplateInvalidError(err.Error())
	}
	return payload, nil
}
