package workflow

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stderrors "companion-agent/internal/common/errors"
)

const testTemplate = `{
  "name": "{{ $json.workflowName }}",
  "nodes": [
    {
      "name": "Schedule",
      "type": "n8n-nodes-base.scheduleTrigger",
      "parameters": {
        "rule": {"interval": [{"field": "cronExpression", "expression": "{{ $json.cron }}"}]}
      }
    },
    {
      "name": "Start Call",
      "type": "n8n-nodes-base.httpRequest",
      "parameters": {
        "url": "{{ $json.ELDERLY_COMPANION_API }}/calls/outbound",
        "jsonBody": "{\"phoneNumber\": \"{{ $json.phoneNumber }}\", \"userId\": \"{{ $json.userId }}\", \"message\": \"{{ $json.message }}\"}"
      }
    }
  ],
  "connections": {}
}`

func newTestStore(t *testing.T) *TemplateStore {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "elderly-companion.json"), []byte(testTemplate), 0o644))
	store, err := NewTemplateStore(dir)
	require.NoError(t, err)
	return store
}

func TestRenderSubstitutesAllPlaceholders(t *testing.T) {
	store := newTestStore(t)

	payload, err := store.Render("elderly-companion", TemplateParams{
		PhoneNumber:  "+31612345678",
		UserID:       "user-123",
		Cron:         "0 9 * * 1",
		CallbackURL:  "https://api.example.com",
		Message:      "Vraag hoe het met de fysiotherapie gaat",
		WorkflowName: "Wekelijkse maandagochtend-belafspraak",
	})
	require.NoError(t, err)

	assert.Equal(t, "Wekelijkse maandagochtend-belafspraak", payload["name"])

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	rendered := string(raw)
	assert.Contains(t, rendered, "+31612345678")
	assert.Contains(t, rendered, "user-123")
	assert.Contains(t, rendered, "0 9 * * 1")
	assert.Contains(t, rendered, "https://api.example.com/calls/outbound")
	assert.NotContains(t, rendered, "{{ $json.", "all placeholders must be substituted")
}

func TestRenderUnknownTemplate(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Render("does-not-exist", TemplateParams{})
	require.Error(t, err)

	stdErr, ok := err.(*stderrors.StandardError)
	require.True(t, ok)
	assert.Equal(t, stderrors.ErrCodeTemplateNotFound, stdErr.Code)
	assert.False(t, stdErr.Retryable)
}

func TestRenderRejectsInvalidTemplate(t *testing.T) {
	dir := t.TempDir()
	bad := `{"name": "x", "nodes": [], "connections": {}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty-nodes.json"), []byte(bad), 0o644))
	store, err := NewTemplateStore(dir)
	require.NoError(t, err)

	_, err = store.Render("empty-nodes", TemplateParams{})
	require.Error(t, err)

	stdErr, ok := err.(*stderrors.StandardError)
	require.True(t, ok)
	assert.Equal(t, stderrors.ErrCodeTemplateInvalid, stdErr.Code)
	assert.True(t, strings.Contains(stdErr.Details, "nodes"))
}
