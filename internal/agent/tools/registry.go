// Package tools implements the function tools the realtime model can
// invoke during a call. Tools always return a string for the model;
// failures degrade to polite fallback messages instead of errors so the
// conversation keeps flowing.
package tools

import (
	"context"
	"encoding/json"
	"time"

	"companion-agent/internal/common/logger"
	"companion-agent/internal/common/metrics"
	"companion-agent/internal/media"
	"companion-agent/internal/realtime"
	"companion-agent/internal/search"
	"companion-agent/internal/workflow"
)

// RPCCaller performs an RPC against a participant's device.
type RPCCaller interface {
	PerformRPC(ctx context.Context, identity, method, payload string, timeout time.Duration) (string, error)
}

// Responder lets a tool ask the model to speak an interstitial while the
// tool is still working.
type Responder interface {
	Respond(instructions string) error
}

// Deps carries the per-session services and caller facts tools run with.
type Deps struct {
	Search   *search.Client
	Media    *media.Client
	Workflow *workflow.Client
	RPC      RPCCaller
	Session  Responder
	Log      logger.Logger

	// ParticipantIdentity is the remote participant's identity; it is the
	// RPC destination and the key scheduled workflows are filed under.
	ParticipantIdentity string
	// UserPhoneNumber is the primary user's number, dialed by scheduled
	// calls.
	UserPhoneNumber string
	// SIPCaller marks phone callers: they have no app device, so search
	// results are returned inline instead of over RPC.
	SIPCaller bool
}

// Outcome labels how a tool run ended: "ok" for the real result,
// "fallback" when the reply degraded to a substitute.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeFallback Outcome = "fallback"
)

// Tool is a named function tool with its model-facing definition.
type Tool struct {
	Def realtime.ToolDef
	Run func(ctx context.Context, args json.RawMessage) (string, Outcome)
}

// Registry maps tool names to implementations.
type Registry struct {
	tools map[string]Tool
	log   logger.Logger
}

// NewRegistry builds the full tool set for a companion session.
func NewRegistry(deps Deps) *Registry {
	r := &Registry{tools: make(map[string]Tool), log: deps.Log}
	r.add(webSearchTool(deps))
	r.add(localTimeTool(deps))
	r.add(reminderNotificationTool(deps))
	r.add(scheduleTaskTool(deps))
	r.add(scheduledTasksTool(deps))
	r.add(deleteScheduledTaskTool(deps))
	r.add(movieRecommendationTool(deps))
	return r
}

func (r *Registry) add(t Tool) {
	r.tools[t.Def.Name] = t
}

// Defs returns the tool definitions advertised to the model.
func (r *Registry) Defs() []realtime.ToolDef {
	defs := make([]realtime.ToolDef, 0, len(r.tools))
	for _, name := range []string{
		"web_search",
		"get_local_time",
		"schedule_reminder_notification",
		"schedule_task",
		"get_scheduled_tasks",
		"delete_scheduled_task",
		"movie_recommendation",
	} {
		if t, ok := r.tools[name]; ok {
			defs = append(defs, t.Def)
		}
	}
	return defs
}

// Dispatch runs the named tool and returns its output for the model.
// Unknown tools return a fallback string rather than failing the session.
func (r *Registry) Dispatch(ctx context.Context, name string, args json.RawMessage) string {
	tool, ok := r.tools[name]
	if !ok {
		r.log.Warn("Model requested unknown tool", map[string]interface{}{"tool": name})
		metrics.ToolInvocationsTotal.WithLabelValues(name, "unknown").Inc()
		return "That capability is not available right now."
	}

	start := time.Now()
	out, outcome := tool.Run(ctx, args)
	metrics.RecordToolInvocation(name, string(outcome), time.Since(start).Seconds())
	return out
}
