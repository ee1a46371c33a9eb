package livekit

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

// fakeServer accepts one worker connection and exposes the frames the
// worker sends plus a way to push server frames.
type fakeServer struct {
	*httptest.Server
	received chan Envelope
	outgoing chan Envelope
	auth     chan string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		received: make(chan Envelope, 32),
		outgoing: make(chan Envelope, 32),
		auth:     make(chan string, 1),
	}

	upgrader := websocket.Upgrader{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/agent" {
			http.NotFound(w, r)
			return
		}
		select {
		case fs.auth <- r.Header.Get("Authorization"):
		default:
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)

		go func() {
			for env := range fs.outgoing {
				raw, _ := json.Marshal(env)
				if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
					return
				}
			}
		}()

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env Envelope
			if err := json.Unmarshal(raw, &env); err == nil {
				fs.received <- env
			}
		}
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) push(t *testing.T, msgType string, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	fs.outgoing <- Envelope{Type: msgType, Payload: raw}
}

func (fs *fakeServer) next(t *testing.T) Envelope {
	t.Helper()
	select {
	case env := <-fs.received:
		return env
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for worker frame")
		return Envelope{}
	}
}

func newTestWorker(url string, handler JobHandler) *Worker {
	return NewWorker(WorkerOptions{
		URL:            url,
		APIKey:         "key",
		APISecret:      "test-secret-at-least-32-characters",
		AgentName:      "noah",
		Version:        "1.0.0",
		MaxConcurrency: 1,
	}, handler, logger.NewNoOpLogger())
}

func TestWorkerRegistersOnConnect(t *testing.T) {
	fs := newFakeServer(t)
	w := newTestWorker(fs.URL, func(ctx context.Context, job *Job) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	env := fs.next(t)
	assert.Equal(t, MsgRegister, env.Type)

	var reg RegisterPayload
	require.NoError(t, json.Unmarshal(env.Payload, &reg))
	assert.Equal(t, "noah", reg.AgentName)
	assert.Equal(t, "1.0.0", reg.Version)
	assert.Equal(t, "room", reg.JobType)

	assert.True(t, strings.HasPrefix(<-fs.auth, "Bearer "))
}

func TestWorkerAnswersAvailability(t *testing.T) {
	fs := newFakeServer(t)
	w := newTestWorker(fs.URL, func(ctx context.Context, job *Job) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	fs.next(t) // register
	fs.push(t, MsgAvailability, AvailabilityPayload{JobID: "job-1", Room: "room-1"})

	env := fs.next(t)
	assert.Equal(t, MsgAvailabilityResponse, env.Type)

	var resp AvailabilityResponsePayload
	require.NoError(t, json.Unmarshal(env.Payload, &resp))
	assert.Equal(t, "job-1", resp.JobID)
	assert.True(t, resp.Available)
}

func TestWorkerDeclinesWhenSaturated(t *testing.T) {
	fs := newFakeServer(t)
	block := make(chan struct{})
	w := newTestWorker(fs.URL, func(ctx context.Context, job *Job) error {
		<-block
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer close(block)
	go w.Run(ctx)

	fs.next(t) // register
	fs.push(t, MsgJobAssignment, JobAssignmentPayload{JobID: "job-1", Room: "room-1"})
	fs.next(t) // job_update running

	// MaxConcurrency is 1 and job-1 is still held open.
	fs.push(t, MsgAvailability, AvailabilityPayload{JobID: "job-2", Room: "room-2"})

	env := fs.next(t)
	assert.Equal(t, MsgAvailabilityResponse, env.Type)

	var resp AvailabilityResponsePayload
	require.NoError(t, json.Unmarshal(env.Payload, &resp))
	assert.False(t, resp.Available)
}

func TestWorkerRunsAssignedJob(t *testing.T) {
	fs := newFakeServer(t)
	jobs := make(chan *Job, 1)
	w := newTestWorker(fs.URL, func(ctx context.Context, job *Job) error {
		jobs <- job
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	fs.next(t) // register
	fs.push(t, MsgJobAssignment, JobAssignmentPayload{
		JobID: "job-1",
		Room:  "room-1",
		Token: "tok",
		URL:   "ws://media.example",
	})

	running := fs.next(t)
	assert.Equal(t, MsgJobUpdate, running.Type)

	var update JobUpdatePayload
	require.NoError(t, json.Unmarshal(running.Payload, &update))
	assert.Equal(t, "running", update.Status)

	select {
	case job := <-jobs:
		assert.Equal(t, "job-1", job.ID)
		assert.Equal(t, "room-1", job.Room)
		assert.Equal(t, "tok", job.Token)
		assert.Equal(t, "ws://media.example", job.URL)
	case <-time.After(5 * time.Second):
		t.Fatal("handler never received the job")
	}

	done := fs.next(t)
	require.NoError(t, json.Unmarshal(done.Payload, &update))
	assert.Equal(t, "success", update.Status)
}

func TestWorkerReportsJobFailure(t *testing.T) {
	fs := newFakeServer(t)
	w := newTestWorker(fs.URL, func(ctx context.Context, job *Job) error {
		return context.DeadlineExceeded
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	fs.next(t) // register
	fs.push(t, MsgJobAssignment, JobAssignmentPayload{JobID: "job-1", Room: "room-1"})
	fs.next(t) // running

	env := fs.next(t)
	var update JobUpdatePayload
	require.NoError(t, json.Unmarshal(env.Payload, &update))
	assert.Equal(t, "failed", update.Status)
	assert.Contains(t, update.Error, "deadline")
}

func TestWorkerAnswersPing(t *testing.T) {
	fs := newFakeServer(t)
	w := newTestWorker(fs.URL, func(ctx context.Context, job *Job) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	fs.next(t) // register
	fs.push(t, MsgPing, struct{}{})

	env := fs.next(t)
	assert.Equal(t, MsgPong, env.Type)
}

func TestWorkerConnectProbe(t *testing.T) {
	fs := newFakeServer(t)
	w := newTestWorker(fs.URL, nil)

	require.NoError(t, w.Connect(context.Background()))

	bad := newTestWorker("ws://127.0.0.1:1", nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, bad.Connect(ctx))
}
