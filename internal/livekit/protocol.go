package livekit

import "encoding/json"

// Message types exchanged on the worker and room sockets.
const (
	MsgRegister             = "register"
	MsgRegistered           = "registered"
	MsgAvailability         = "availability"
	MsgAvailabilityResponse = "availability_response"
	MsgJobAssignment        = "job_assignment"
	MsgJobUpdate            = "job_update"
	MsgWorkerStatus         = "worker_status"
	MsgPing                 = "ping"
	MsgPong                 = "pong"

	MsgParticipantJoined = "participant_joined"
	MsgParticipantLeft   = "participant_left"
	MsgRPCRequest        = "rpc_request"
	MsgRPCResponse       = "rpc_response"
	MsgAgentState        = "agent_state"
)

// Envelope is the outer frame for every socket message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RegisterPayload announces the worker to the server.
type RegisterPayload struct {
	AgentName string `json:"agent_name"`
	Version   string `json:"version"`
	JobType   string `json:"job_type"`
}

// RegisteredPayload acknowledges registration.
type RegisteredPayload struct {
	WorkerID string `json:"worker_id"`
}

// AvailabilityPayload asks whether the worker can take a job.
type AvailabilityPayload struct {
	JobID string `json:"job_id"`
	Room  string `json:"room"`
}

// AvailabilityResponsePayload answers an availability request.
type AvailabilityResponsePayload struct {
	JobID     string `json:"job_id"`
	Available bool   `json:"available"`
}

// JobAssignmentPayload carries a room job to the worker.
type JobAssignmentPayload struct {
	JobID string `json:"job_id"`
	Room  string `json:"room"`
	Token string `json:"token,omitempty"`
	URL   string `json:"url,omitempty"`
}

// JobUpdatePayload reports job progress back to the server.
type JobUpdatePayload struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"` // running, success, failed
	Error  string `json:"error,omitempty"`
}

// WorkerStatusPayload reports load for dispatch decisions.
type WorkerStatusPayload struct {
	ActiveJobs int     `json:"active_jobs"`
	Load       float64 `json:"load"`
}

// ParticipantPayload describes a remote participant in a room.
type ParticipantPayload struct {
	Identity   string            `json:"identity"`
	Name       string            `json:"name,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// RPCRequestPayload invokes a method on a participant's device.
type RPCRequestPayload struct {
	RequestID           string `json:"request_id"`
	DestinationIdentity string `json:"destination_identity"`
	Method              string `json:"method"`
	Payload             string `json:"payload"`
	ResponseTimeoutMS   int    `json:"response_timeout_ms"`
}

// RPCResponsePayload answers an RPC request.
type RPCResponsePayload struct {
	RequestID string `json:"request_id"`
	Payload   string `json:"payload,omitempty"`
	Error     string `json:"error,omitempty"`
}

// AgentStatePayload publishes the agent lifecycle state to the room.
type AgentStatePayload struct {
	State string `json:"state"` // initializing, listening, thinking, speaking
}

func encode(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}
