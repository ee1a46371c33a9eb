package tools

import (
	"context"
	"encoding/json"
	"time"

	"companion-agent/internal/realtime"
)

const localTimeRPCTimeout = 10 * time.Second

func localTimeTool(deps Deps) Tool {
	return Tool{
		Def: realtime.ToolDef{
			Type:        "function",
			Name:        "get_local_time",
			Description: "Get the current local time of the user.",
			Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
		},
		Run: func(ctx context.Context, args json.RawMessage) (string, Outcome) {
			result, err := deps.RPC.PerformRPC(ctx, deps.ParticipantIdentity, "get_local_time", "{}", localTimeRPCTimeout)
			if err != nil {
				deps.Log.WithError(err).Error("Local time lookup failed", nil)
				return "I encountered an error while trying to get the local time. Please try again later.", OutcomeFallback
			}
			return result, OutcomeOK
		},
	}
}
