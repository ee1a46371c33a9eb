package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"companion-agent/internal/common/logger"
)

var upgrader = websocket.Upgrader{}

// fakeRealtimeServer echoes canned server events and records client frames.
type fakeRealtimeServer struct {
	t       *testing.T
	server  *httptest.Server
	frames  chan map[string]interface{}
	scripts [][]byte
}

func newFakeRealtimeServer(t *testing.T, scripts ...string) *fakeRealtimeServer {
	f := &fakeRealtimeServer{t: t, frames: make(chan map[string]interface{}, 16)}
	for _, s := range scripts {
		f.scripts = append(f.scripts, []byte(s))
	}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "realtime=v1", r.Header.Get("OpenAI-Beta"))
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "))
		assert.NotEmpty(t, r.URL.Query().Get("model"))

		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for _, script := range f.scripts {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, script))
		}
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame map[string]interface{}
			require.NoError(t, json.Unmarshal(raw, &frame))
			f.frames <- frame
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeRealtimeServer) connect(t *testing.T) *Session {
	t.Helper()
	session, err := Connect(context.Background(), Options{
		BaseURL: "ws" + strings.TrimPrefix(f.server.URL, "http"),
		APIKey:  "test-key",
		Model:   "gpt-4o-realtime-preview",
	}, logger.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

func (f *fakeRealtimeServer) nextFrame(t *testing.T) map[string]interface{} {
	t.Helper()
	select {
	case frame := <-f.frames:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client frame")
		return nil
	}
}

func nextEvent(t *testing.T, session *Session) Event {
	t.Helper()
	select {
	case ev := <-session.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session event")
		return Event{}
	}
}

func TestConfigureSendsSessionUpdate(t *testing.T) {
	f := newFakeRealtimeServer(t)
	session := f.connect(t)

	require.NoError(t, session.Configure(SessionConfig{
		Voice:        "ash",
		Instructions: "Je bent Noah.",
	}))

	frame := f.nextFrame(t)
	assert.Equal(t, "session.update", frame["type"])
	sess := frame["session"].(map[string]interface{})
	assert.Equal(t, "ash", sess["voice"])
	assert.Equal(t, "Je bent Noah.", sess["instructions"])
}

func TestAppendMessageAndRespond(t *testing.T) {
	f := newFakeRealtimeServer(t)
	session := f.connect(t)

	require.NoError(t, session.AppendMessage("user", "Hallo"))
	frame := f.nextFrame(t)
	assert.Equal(t, "conversation.item.create", frame["type"])
	item := frame["item"].(map[string]interface{})
	assert.Equal(t, "message", item["type"])
	assert.Equal(t, "user", item["role"])

	require.NoError(t, session.Respond("Greet the user and offer your assistance."))
	frame = f.nextFrame(t)
	assert.Equal(t, "response.create", frame["type"])
	resp := frame["response"].(map[string]interface{})
	assert.Equal(t, "Greet the user and offer your assistance.", resp["instructions"])

	require.NoError(t, session.Respond(""))
	frame = f.nextFrame(t)
	assert.Equal(t, "response.create", frame["type"])
	assert.Nil(t, frame["response"])
}

func TestSendToolResult(t *testing.T) {
	f := newFakeRealtimeServer(t)
	session := f.connect(t)

	require.NoError(t, session.SendToolResult("call-1", "12:30"))

	frame := f.nextFrame(t)
	assert.Equal(t, "conversation.item.create", frame["type"])
	item := frame["item"].(map[string]interface{})
	assert.Equal(t, "function_call_output", item["type"])
	assert.Equal(t, "call-1", item["call_id"])
	assert.Equal(t, "12:30", item["output"])

	frame = f.nextFrame(t)
	assert.Equal(t, "response.create", frame["type"])
}

func TestServerEventsSurface(t *testing.T) {
	f := newFakeRealtimeServer(t,
		`{"type":"conversation.item.input_audio_transcription.completed","transcript":"Hoe laat is het?"}`,
		`{"type":"response.done","response":{"output":[
			{"type":"function_call","name":"get_local_time","call_id":"call-7","arguments":"{}"},
			{"type":"message","role":"assistant","content":[{"type":"text","text":"Het is half een."}]}
		]}}`,
		`{"type":"error","error":{"code":"session_expired","message":"expired"}}`,
	)
	session := f.connect(t)

	ev := nextEvent(t, session)
	assert.Equal(t, EventUserTranscript, ev.Kind)
	assert.Equal(t, "Hoe laat is het?", ev.Text)

	ev = nextEvent(t, session)
	assert.Equal(t, EventFunctionCall, ev.Kind)
	assert.Equal(t, "get_local_time", ev.Name)
	assert.Equal(t, "call-7", ev.CallID)

	ev = nextEvent(t, session)
	assert.Equal(t, EventAssistantDone, ev.Kind)
	assert.Equal(t, "Het is half een.", ev.Text)

	ev = nextEvent(t, session)
	assert.Equal(t, EventError, ev.Kind)
	require.Error(t, ev.Err)
	assert.Contains(t, ev.Err.Error(), "REALTIME_SESSION_FAILED")
}

func TestCloseEmitsClosedEvent(t *testing.T) {
	f := newFakeRealtimeServer(t)
	session := f.connect(t)

	require.NoError(t, session.Close())

	for ev := range session.Events() {
		if ev.Kind == EventClosed {
			return
		}
	}
	t.Fatal("never saw the closed event")
}
