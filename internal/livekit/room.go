package livekit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	stderrors "companion-agent/internal/common/errors"
	"companion-agent/internal/common/logger"
	"companion-agent/internal/common/metrics"
)

// Participant is a remote room participant.
type Participant struct {
	Identity   string
	Name       string
	Attributes map[string]string
}

// Room is the agent-side room connection used for participant discovery
// and device RPC. Audio flows through the realtime model session; the room
// socket carries control traffic only.
type Room struct {
	name string
	log  logger.Logger

	mu           sync.Mutex
	conn         *websocket.Conn
	participants map[string]*Participant
	joined       chan *Participant
	pendingRPC   map[string]chan RPCResponsePayload
	closed       bool
	done         chan struct{}
}

// ConnectRoom joins a room with the given token and starts the read loop.
func ConnectRoom(ctx context.Context, serverURL, roomName, token string, log logger.Logger) (*Room, error) {
	endpoint, err := roomEndpoint(serverURL, roomName)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := map[string][]string{"Authorization": {"Bearer " + token}}
	conn, _, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("joining room %s: %w", roomName, err)
	}

	r := &Room{
		name:         roomName,
		log:          log,
		conn:         conn,
		participants: make(map[string]*Participant),
		joined:       make(chan *Participant, 8),
		pendingRPC:   make(map[string]chan RPCResponsePayload),
		done:         make(chan struct{}),
	}
	go r.readLoop()
	return r, nil
}

// Name returns the room name.
func (r *Room) Name() string {
	return r.name
}

// WaitForParticipant blocks until a remote participant is present or the
// context expires.
func (r *Room) WaitForParticipant(ctx context.Context) (*Participant, error) {
	r.mu.Lock()
	for _, p := range r.participants {
		r.mu.Unlock()
		return p, nil
	}
	r.mu.Unlock()

	select {
	case p := <-r.joined:
		return p, nil
	case <-r.done:
		return nil, stderrors.NewNoParticipantError(r.name)
	case <-ctx.Done():
		return nil, stderrors.NewNoParticipantError(r.name)
	}
}

// PerformRPC invokes a method on a participant's device and waits for the
// response up to timeout.
func (r *Room) PerformRPC(ctx context.Context, identity, method, payload string, timeout time.Duration) (string, error) {
	requestID := uuid.New().String()
	respCh := make(chan RPCResponsePayload, 1)

	r.mu.Lock()
	r.pendingRPC[requestID] = respCh
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.pendingRPC, requestID)
		r.mu.Unlock()
	}()

	err := r.send(MsgRPCRequest, RPCRequestPayload{
		RequestID:           requestID,
		DestinationIdentity: identity,
		Method:              method,
		Payload:             payload,
		ResponseTimeoutMS:   int(timeout.Milliseconds()),
	})
	if err != nil {
		metrics.DeviceRPCTotal.WithLabelValues(method, "error").Inc()
		return "", stderrors.NewDeviceRPCFailedError(method, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-respCh:
		if resp.Error != "" {
			metrics.DeviceRPCTotal.WithLabelValues(method, "error").Inc()
			return "", stderrors.NewDeviceRPCFailedError(method, fmt.Errorf("%s", resp.Error))
		}
		metrics.DeviceRPCTotal.WithLabelValues(method, "ok").Inc()
		return resp.Payload, nil
	case <-timer.C:
		metrics.DeviceRPCTotal.WithLabelValues(method, "timeout").Inc()
		return "", stderrors.NewDeviceRPCTimeoutError(method)
	case <-r.done:
		return "", stderrors.NewDeviceRPCFailedError(method, fmt.Errorf("room connection closed"))
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// PublishState announces the agent lifecycle state to the room.
func (r *Room) PublishState(state string) error {
	return r.send(MsgAgentState, AgentStatePayload{State: state})
}

// Close tears down the room connection.
func (r *Room) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	conn := r.conn
	r.mu.Unlock()
	return conn.Close()
}

func (r *Room) readLoop() {
	defer close(r.done)
	for {
		_, raw, err := r.conn.ReadMessage()
		if err != nil {
			r.mu.Lock()
			closed := r.closed
			r.mu.Unlock()
			if !closed {
				r.log.WithError(err).Debug("Room socket closed", map[string]interface{}{"room": r.name})
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			r.log.WithError(err).Warn("Malformed room message", nil)
			continue
		}

		switch env.Type {
		case MsgParticipantJoined:
			var p ParticipantPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				continue
			}
			participant := &Participant{
				Identity:   p.Identity,
				Name:       p.Name,
				Attributes: p.Attributes,
			}
			r.mu.Lock()
			r.participants[p.Identity] = participant
			r.mu.Unlock()
			select {
			case r.joined <- participant:
			default:
			}

		case MsgParticipantLeft:
			var p ParticipantPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				continue
			}
			r.mu.Lock()
			delete(r.participants, p.Identity)
			r.mu.Unlock()

		case MsgRPCResponse:
			var p RPCResponsePayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				continue
			}
			r.mu.Lock()
			ch, ok := r.pendingRPC[p.RequestID]
			r.mu.Unlock()
			if ok {
				select {
				case ch <- p:
				default:
				}
			}
		}
	}
}

func (r *Room) send(msgType string, payload interface{}) error {
	raw, err := encode(msgType, payload)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("room connection closed")
	}
	r.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return r.conn.WriteMessage(websocket.TextMessage, raw)
}

func roomEndpoint(base, room string) (string, error) {
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
	u.Path = strings.TrimSuffix(u.Path, "/") + "/rtc"
	q := u.Query()
	q.Set("room", room)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
