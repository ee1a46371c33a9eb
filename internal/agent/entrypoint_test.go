package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"companion-agent/internal/common/config"
	"companion-agent/internal/common/logger"
	"companion-agent/internal/directory"
	"companion-agent/internal/livekit"
	"companion-agent/internal/media"
	"companion-agent/internal/memory"
	"companion-agent/internal/realtime"
	"companion-agent/internal/search"
)

type fakeRoom struct {
	participant *livekit.Participant
	states      []string
	rpcMethods  []string
	closed      bool
}

func (r *fakeRoom) WaitForParticipant(ctx context.Context) (*livekit.Participant, error) {
	return r.participant, nil
}

func (r *fakeRoom) PerformRPC(ctx context.Context, identity, method, payload string, timeout time.Duration) (string, error) {
	r.rpcMethods = append(r.rpcMethods, method)
	return "ok", nil
}

func (r *fakeRoom) PublishState(state string) error {
	r.states = append(r.states, state)
	return nil
}

func (r *fakeRoom) Close() error {
	r.closed = true
	return nil
}

// platformServer fakes both the directory API and the Zep API on one mux.
func platformServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/users/search", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("phoneNumber") {
		case "+31687654321":
			w.Write([]byte(`{"type":"family_member","id":"fam-1","userId":"user-1","name":"Pieter","language":"nl"}`))
		default:
			w.Write([]byte(`{"type":"user","id":"user-1","name":"Johanna"}`))
		}
	})
	mux.HandleFunc("/users/user-1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"user-1","name":"Johanna","phoneNumber":"+31612345678"}`))
	})
	mux.HandleFunc("/users/user-1/sessions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sessions":[{"session_id":"old-session","user_id":"user-1","created_at":"2026-08-01T10:00:00Z"}]}`))
	})
	mux.HandleFunc("/memory/old-session", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"context":"FACTS: houdt van tuinieren"}`))
	})
	mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/memory/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"context":""}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestEntrypoint(t *testing.T, room *fakeRoom, model *fakeModel) *Entrypoint {
	t.Helper()
	server := platformServer(t)
	log := logger.NewTestLogger(t)

	cfg := &config.Config{}
	cfg.LiveKit.URL = "ws://localhost:7880"
	cfg.LiveKit.APIKey = "key"
	cfg.LiveKit.APISecret = "secret"
	cfg.LiveKit.AgentName = "noah"
	cfg.Realtime.Voice = "ash"

	e := NewEntrypoint(
		cfg,
		directory.NewClient(server.URL, 5*time.Second, log),
		memory.NewClient(server.URL, "key", log),
		nil, // no redis cache in tests
		nil,
		search.NewClient(server.URL, "key", "sonar", time.Second, log),
		media.NewClient(server.URL, "", "NL", "nl-NL", 5, log),
		nil,
		nil,
		log,
	)
	e.connectRoom = func(ctx context.Context, serverURL, roomName, token string) (RoomConn, error) {
		return room, nil
	}
	e.connectModel = func(ctx context.Context) (Model, error) {
		return model, nil
	}
	return e
}

func TestHandleAppCaller(t *testing.T) {
	room := &fakeRoom{participant: &livekit.Participant{
		Identity:   "user-1",
		Attributes: map[string]string{"initialRequest": "Ik wil praten over mijn tuin."},
	}}
	model := newFakeModel()
	model.events <- realtime.Event{Kind: realtime.EventClosed}

	e := newTestEntrypoint(t, room, model)
	require.NoError(t, e.Handle(context.Background(), &livekit.Job{ID: "job-1", Room: "room-1"}))

	require.Len(t, model.configured, 1)
	assert.Contains(t, model.configured[0].Instructions, "Johanna")
	assert.Len(t, model.configured[0].Tools, 7, "companion sessions advertise the full tool set")

	var sawSkills, sawContext, sawRequest bool
	for _, msg := range model.appended {
		if msg.Role == "system" {
			sawSkills = true
		}
		if strings.Contains(msg.Content, "<user_context>") && strings.Contains(msg.Content, "houdt van tuinieren") {
			sawContext = true
		}
		if strings.Contains(msg.Content, "<user_request>") && strings.Contains(msg.Content, "mijn tuin") {
			sawRequest = true
		}
	}
	assert.True(t, sawSkills, "capability context is seeded")
	assert.True(t, sawContext, "memory context is seeded")
	assert.True(t, sawRequest, "initialRequest attribute is seeded")

	assert.True(t, room.closed)
}

func TestHandleSIPFamilyMember(t *testing.T) {
	room := &fakeRoom{participant: &livekit.Participant{Identity: "sip_+31687654321"}}
	model := newFakeModel()
	model.events <- realtime.Event{Kind: realtime.EventClosed}

	e := newTestEntrypoint(t, room, model)
	require.NoError(t, e.Handle(context.Background(), &livekit.Job{ID: "job-1", Room: "room-1"}))

	require.Len(t, model.configured, 1)
	assert.Contains(t, model.configured[0].Instructions, "Pieter")
	assert.Contains(t, model.configured[0].Instructions, "Johanna")
	assert.Empty(t, model.configured[0].Tools, "family callers get no tools")

	for _, msg := range model.appended {
		assert.NotContains(t, msg.Content, "<user_context>", "family callers never see the user's memory")
	}
}

func TestHandleSIPPrimaryUser(t *testing.T) {
	room := &fakeRoom{participant: &livekit.Participant{Identity: "sip_+31612345678"}}
	model := newFakeModel()
	model.events <- realtime.Event{Kind: realtime.EventClosed}

	e := newTestEntrypoint(t, room, model)
	require.NoError(t, e.Handle(context.Background(), &livekit.Job{ID: "job-1", Room: "room-1"}))

	require.Len(t, model.configured, 1)
	assert.Contains(t, model.configured[0].Instructions, "Johanna")
	assert.Len(t, model.configured[0].Tools, 7, "a SIP caller that is the user still gets the companion")
}
