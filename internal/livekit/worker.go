package livekit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"companion-agent/internal/common/logger"
	"companion-agent/internal/common/metrics"
)

// Job is a room assignment handed to the job handler.
type Job struct {
	ID    string
	Room  string
	Token string
	URL   string
}

// JobHandler runs a single room job. The context is canceled on shutdown.
type JobHandler func(ctx context.Context, job *Job) error

// WorkerOptions configures the agent worker.
type WorkerOptions struct {
	URL            string
	APIKey         string
	APISecret      string
	AgentName      string
	Version        string
	MaxConcurrency int
	PingInterval   time.Duration
}

// Worker registers with the server and dispatches room jobs to its handler.
type Worker struct {
	opts    WorkerOptions
	handler JobHandler
	log     logger.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	activeJobs int
	workerID   string
}

// NewWorker builds a worker. MaxConcurrency defaults to 5 and the ping
// interval to 30s when unset.
func NewWorker(opts WorkerOptions, handler JobHandler, log logger.Logger) *Worker {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 5
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &Worker{opts: opts, handler: handler, log: log}
}

// Run connects, registers, and serves jobs until the context is canceled.
// Connection loss triggers reconnection with exponential backoff.
func (w *Worker) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		err := w.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.log.WithError(err).Warn("Worker connection lost, reconnecting", map[string]interface{}{
			"backoff": backoff.String(),
		})
		metrics.WorkerReconnectsTotal.Inc()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

// Connect performs a single connect+register round. Used by startup retry
// to verify the server is reachable before entering the serve loop.
func (w *Worker) Connect(ctx context.Context) error {
	conn, err := w.dial(ctx)
	if err != nil {
		return err
	}
	conn.Close()
	return nil
}

func (w *Worker) runOnce(ctx context.Context) error {
	conn, err := w.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	if err := w.register(); err != nil {
		return err
	}

	pingDone := make(chan struct{})
	go w.pingLoop(ctx, pingDone)
	defer close(pingDone)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(w.opts.PingInterval * 3))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("reading worker socket: %w", err)
		}
		if err := w.handleMessage(ctx, raw); err != nil {
			w.log.WithError(err).Error("Failed to handle server message", nil)
		}
	}
}

func (w *Worker) dial(ctx context.Context) (*websocket.Conn, error) {
	token, err := AgentToken(w.opts.APIKey, w.opts.APISecret, w.opts.AgentName)
	if err != nil {
		return nil, fmt.Errorf("minting agent token: %w", err)
	}

	endpoint, err := agentEndpoint(w.opts.URL)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := map[string][]string{"Authorization": {"Bearer " + token}}
	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing %s: %w (status %d)", endpoint, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dialing %s: %w", endpoint, err)
	}
	return conn, nil
}

func (w *Worker) register() error {
	if err := w.send(MsgRegister, RegisterPayload{
		AgentName: w.opts.AgentName,
		Version:   w.opts.Version,
		JobType:   "room",
	}); err != nil {
		return fmt.Errorf("sending registration: %w", err)
	}
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, raw []byte) error {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decoding envelope: %w", err)
	}

	switch env.Type {
	case MsgRegistered:
		var p RegisteredPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		w.mu.Lock()
		w.workerID = p.WorkerID
		w.mu.Unlock()
		w.log.Info("Worker registered", map[string]interface{}{
			"workerId":  p.WorkerID,
			"agentName": w.opts.AgentName,
		})

	case MsgAvailability:
		var p AvailabilityPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		w.mu.Lock()
		available := w.activeJobs < w.opts.MaxConcurrency
		w.mu.Unlock()
		return w.send(MsgAvailabilityResponse, AvailabilityResponsePayload{
			JobID:     p.JobID,
			Available: available,
		})

	case MsgJobAssignment:
		var p JobAssignmentPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		w.acceptJob(ctx, &Job{ID: p.JobID, Room: p.Room, Token: p.Token, URL: p.URL})

	case MsgPing:
		return w.send(MsgPong, struct{}{})

	case MsgPong:
		// keepalive ack

	default:
		w.log.Debug("Ignoring unknown message type", map[string]interface{}{"type": env.Type})
	}
	return nil
}

func (w *Worker) acceptJob(ctx context.Context, job *Job) {
	w.mu.Lock()
	w.activeJobs++
	w.mu.Unlock()
	metrics.ActiveSessions.Inc()

	w.log.Info("Job accepted", map[string]interface{}{
		"jobId": job.ID,
		"room":  job.Room,
	})
	_ = w.send(MsgJobUpdate, JobUpdatePayload{JobID: job.ID, Status: "running"})

	go func() {
		defer func() {
			w.mu.Lock()
			w.activeJobs--
			w.mu.Unlock()
			metrics.ActiveSessions.Dec()
		}()

		err := w.handler(ctx, job)
		update := JobUpdatePayload{JobID: job.ID, Status: "success"}
		if err != nil {
			update.Status = "failed"
			update.Error = err.Error()
			w.log.WithError(err).Error("Job failed", map[string]interface{}{
				"jobId": job.ID,
				"room":  job.Room,
			})
		}
		_ = w.send(MsgJobUpdate, update)
	}()
}

func (w *Worker) pingLoop(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(w.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if err := w.send(MsgPing, struct{}{}); err != nil {
				return
			}
			w.mu.Lock()
			active := w.activeJobs
			max := w.opts.MaxConcurrency
			w.mu.Unlock()
			_ = w.send(MsgWorkerStatus, WorkerStatusPayload{
				ActiveJobs: active,
				Load:       float64(active) / float64(max),
			})
		}
	}
}

func (w *Worker) send(msgType string, payload interface{}) error {
	raw, err := encode(msgType, payload)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return fmt.Errorf("worker not connected")
	}
	w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteMessage(websocket.TextMessage, raw)
}

// agentEndpoint turns the configured server URL into the agent WS endpoint.
func agentEndpoint(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/agent"
	return u.String(), nil
}
