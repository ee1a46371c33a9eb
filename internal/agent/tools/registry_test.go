package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"companion-agent/internal/common/logger"
	"companion-agent/internal/common/metrics"
	"companion-agent/internal/media"
	"companion-agent/internal/search"
	"companion-agent/internal/workflow"
)

type fakeRPC struct {
	method  string
	payload string
	result  string
	err     error
}

func (f *fakeRPC) PerformRPC(ctx context.Context, identity, method, payload string, timeout time.Duration) (string, error) {
	f.method = method
	f.payload = payload
	if f.err != nil {
		return "", f.err
	}
	return f.result, nil
}

type fakeResponder struct {
	instructions []string
}

func (f *fakeResponder) Respond(instructions string) error {
	f.instructions = append(f.instructions, instructions)
	return nil
}

func searchServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"` + content + `"}}]}`))
	}))
	t.Cleanup(server.Close)
	return server
}

const tasksTemplate = `{
  "name": "{{ $json.workflowName }}",
  "nodes": [{"name": "Start Call", "type": "n8n-nodes-base.httpRequest",
             "parameters": {"jsonBody": "{\"phoneNumber\": \"{{ $json.phoneNumber }}\", \"userId\": \"{{ $json.userId }}\", \"cron\": \"{{ $json.cron }}\"}"}}],
  "connections": {}
}`

func workflowClient(t *testing.T, serverURL string) *workflow.Client {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "elderly-companion.json"), []byte(tasksTemplate), 0o644))
	store, err := workflow.NewTemplateStore(dir)
	require.NoError(t, err)
	return workflow.NewClient(serverURL, "key", "https://cb.example.com", store, logger.NewTestLogger(t))
}

func baseDeps(t *testing.T) Deps {
	t.Helper()
	return Deps{
		Log:                 logger.NewTestLogger(t),
		ParticipantIdentity: "user-123",
		UserPhoneNumber:     "+31612345678",
	}
}

func TestWebSearchForwardsToDevice(t *testing.T) {
	deps := baseDeps(t)
	deps.Search = search.NewClient(searchServer(t, "resultaat").URL, "k", "sonar", time.Second, deps.Log)
	rpc := &fakeRPC{result: "shown on device"}
	deps.RPC = rpc

	reg := NewRegistry(deps)
	out := reg.Dispatch(context.Background(), "web_search", json.RawMessage(`{"query":"nieuws vandaag"}`))

	assert.Equal(t, "shown on device", out)
	assert.Equal(t, "web_search", rpc.method)
	assert.Contains(t, rpc.payload, "resultaat", "raw payload is forwarded to the device")
}

func TestWebSearchSIPCallerGetsInlineResults(t *testing.T) {
	deps := baseDeps(t)
	deps.Search = search.NewClient(searchServer(t, "resultaat").URL, "k", "sonar", time.Second, deps.Log)
	deps.SIPCaller = true
	rpc := &fakeRPC{}
	deps.RPC = rpc

	reg := NewRegistry(deps)
	out := reg.Dispatch(context.Background(), "web_search", json.RawMessage(`{"query":"nieuws"}`))

	assert.Contains(t, out, "resultaat")
	assert.Empty(t, rpc.method, "SIP callers must not trigger device RPC")
}

func TestWebSearchSpeaksInterstitialBeforeLookup(t *testing.T) {
	deps := baseDeps(t)
	deps.Search = search.NewClient(searchServer(t, "resultaat").URL, "k", "sonar", time.Second, deps.Log)
	deps.RPC = &fakeRPC{result: "shown on device"}
	responder := &fakeResponder{}
	deps.Session = responder

	reg := NewRegistry(deps)
	reg.Dispatch(context.Background(), "web_search", json.RawMessage(`{"query":"weer in Utrecht"}`))

	require.Len(t, responder.instructions, 1, "user hears an interstitial while the search runs")
	assert.Contains(t, responder.instructions[0], "weer in Utrecht")
	assert.Contains(t, responder.instructions[0], "Dutch")
}

func TestWebSearchFailureReturnsFallbackString(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	deps := baseDeps(t)
	deps.Search = search.NewClient(server.URL, "k", "sonar", time.Second, deps.Log)
	deps.RPC = &fakeRPC{}

	reg := NewRegistry(deps)
	out := reg.Dispatch(context.Background(), "web_search", json.RawMessage(`{"query":"x"}`))
	assert.Equal(t, "Error searching the web", out)
}

func TestGetLocalTime(t *testing.T) {
	deps := baseDeps(t)
	rpc := &fakeRPC{result: "14:32"}
	deps.RPC = rpc

	reg := NewRegistry(deps)
	out := reg.Dispatch(context.Background(), "get_local_time", json.RawMessage(`{}`))

	assert.Equal(t, "14:32", out)
	assert.Equal(t, "get_local_time", rpc.method)
	assert.Equal(t, "{}", rpc.payload)
}

func TestReminderNotificationPayload(t *testing.T) {
	deps := baseDeps(t)
	rpc := &fakeRPC{result: "scheduled"}
	deps.RPC = rpc

	reg := NewRegistry(deps)
	args := `{"repeats":true,"weekDay":2,"day":15,"year":2026,"hour":8,"minute":0,"month":9,"message":"Medicatie innemen","title":"Medicijnen"}`
	out := reg.Dispatch(context.Background(), "schedule_reminder_notification", json.RawMessage(args))
	assert.Equal(t, "scheduled", out)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(rpc.payload), &payload))
	assert.Equal(t, true, payload["repeats"])
	assert.Equal(t, "Medicatie innemen", payload["message"])
	assert.Equal(t, "Medicijnen", payload["title"])

	components, ok := payload["dateComponents"].(map[string]interface{})
	require.True(t, ok, "payload must nest calendar fields under dateComponents")
	assert.Equal(t, float64(2), components["weekDay"])
	assert.Equal(t, float64(15), components["day"])
	assert.Equal(t, float64(9), components["month"])
	assert.Equal(t, float64(8), components["hour"])
}

func TestScheduleTaskUsesCallerIdentityAndPhone(t *testing.T) {
	var createdBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/workflows":
			raw, _ := io.ReadAll(r.Body)
			createdBody = string(raw)
			w.Write([]byte(`{"id":"wf-1","name":"Belafspraak"}`))
		default:
			w.Write([]byte(`{}`))
		}
	}))
	defer server.Close()

	deps := baseDeps(t)
	deps.Workflow = workflowClient(t, server.URL)

	reg := NewRegistry(deps)
	out := reg.Dispatch(context.Background(), "schedule_task",
		json.RawMessage(`{"cron_expression":"0 9 * * 1","message":"Vraag naar het weekend","title":"Belafspraak"}`))

	assert.Contains(t, out, "I've scheduled the call for you")
	assert.Contains(t, createdBody, "+31612345678")
	assert.Contains(t, createdBody, "user-123")
	assert.Contains(t, createdBody, "0 9 * * 1")
}

func TestGetScheduledTasksProjection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[
			{"id":"wf-1","name":"Belafspraak","active":true,"createdAt":"2026-08-01T09:00:00Z",
			 "nodes":[{"name":"n","type":"t","parameters":{"jsonBody":"user-123"}}]}
		]}`))
	}))
	defer server.Close()

	deps := baseDeps(t)
	deps.Workflow = workflowClient(t, server.URL)

	reg := NewRegistry(deps)
	out := reg.Dispatch(context.Background(), "get_scheduled_tasks", json.RawMessage(`{}`))

	var tasks []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "wf-1", tasks[0]["id"])
	assert.Equal(t, "Belafspraak", tasks[0]["name"])
	assert.Equal(t, true, tasks[0]["active"])
	assert.Equal(t, "2026-08-01T09:00:00Z", tasks[0]["created_at"])
}

func TestDeleteScheduledTaskRequiresOwnership(t *testing.T) {
	var deleted bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodDelete {
			deleted = true
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Write([]byte(`{"data":[
			{"id":"wf-mine","name":"m","active":true,
			 "nodes":[{"name":"n","type":"t","parameters":{"jsonBody":"user-123"}}]}
		]}`))
	}))
	defer server.Close()

	deps := baseDeps(t)
	deps.Workflow = workflowClient(t, server.URL)
	reg := NewRegistry(deps)

	out := reg.Dispatch(context.Background(), "delete_scheduled_task", json.RawMessage(`{"workflow_id":"wf-other"}`))
	assert.Contains(t, out, "couldn't find that scheduled task")
	assert.False(t, deleted)

	out = reg.Dispatch(context.Background(), "delete_scheduled_task", json.RawMessage(`{"workflow_id":"wf-mine"}`))
	assert.Contains(t, out, "successfully deleted")
	assert.True(t, deleted)
}

func TestMovieRecommendationFallsBackWithoutCatalogue(t *testing.T) {
	deps := baseDeps(t)
	deps.Search = search.NewClient(searchServer(t, "Kijk De Tweeling op Netflix").URL, "k", "sonar", time.Second, deps.Log)
	deps.Media = media.NewClient("http://unused", "", "NL", "nl-NL", 5, deps.Log)
	responder := &fakeResponder{}
	deps.Session = responder

	reg := NewRegistry(deps)
	out := reg.Dispatch(context.Background(), "movie_recommendation",
		json.RawMessage(`{"query":"nederlandse film","genre":"drama"}`))

	assert.Contains(t, out, "Entertainment search results (web):")
	assert.Contains(t, out, "De Tweeling")
	require.Len(t, responder.instructions, 1, "user hears an interstitial while the lookup runs")
	assert.Contains(t, responder.instructions[0], "nederlandse film")
}

func TestDispatchRecordsToolOutcome(t *testing.T) {
	okBefore := testutil.ToFloat64(metrics.ToolInvocationsTotal.WithLabelValues("get_local_time", "ok"))
	fallbackBefore := testutil.ToFloat64(metrics.ToolInvocationsTotal.WithLabelValues("get_local_time", "fallback"))

	deps := baseDeps(t)
	deps.RPC = &fakeRPC{result: "14:32"}
	reg := NewRegistry(deps)
	reg.Dispatch(context.Background(), "get_local_time", json.RawMessage(`{}`))

	deps.RPC = &fakeRPC{err: errors.New("device offline")}
	reg = NewRegistry(deps)
	out := reg.Dispatch(context.Background(), "get_local_time", json.RawMessage(`{}`))
	assert.Contains(t, out, "error")

	assert.Equal(t, okBefore+1, testutil.ToFloat64(metrics.ToolInvocationsTotal.WithLabelValues("get_local_time", "ok")))
	assert.Equal(t, fallbackBefore+1, testutil.ToFloat64(metrics.ToolInvocationsTotal.WithLabelValues("get_local_time", "fallback")))
}

func TestDispatchUnknownTool(t *testing.T) {
	reg := NewRegistry(baseDeps(t))
	out := reg.Dispatch(context.Background(), "teleport_user", json.RawMessage(`{}`))
	assert.Equal(t, "That capability is not available right now.", out)
}

func TestDefsAdvertiseAllTools(t *testing.T) {
	reg := NewRegistry(baseDeps(t))
	defs := reg.Defs()
	require.Len(t, defs, 7)

	names := make([]string, 0, len(defs))
	for _, d := range defs {
		assert.Equal(t, "function", d.Type)
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{
		"web_search",
		"get_local_time",
		"schedule_reminder_notification",
		"schedule_task",
		"get_scheduled_tasks",
		"delete_scheduled_task",
		"movie_recommendation",
	}, names)
}
