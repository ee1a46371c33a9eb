package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"companion-agent/internal/realtime"
)

const webSearchRPCTimeout = 25 * time.Second

func webSearchTool(deps Deps) Tool {
	return Tool{
		Def: realtime.ToolDef{
			Type:        "function",
			Name:        "web_search",
			Description: "Search the web for information. Use this tool when the user asks for information that requires up-to-date knowledge.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {
						"type": "string",
						"description": "The search query to look up information for. Be specific and concise."
					}
				},
				"required": ["query"]
			}`),
		},
		Run: func(ctx context.Context, args json.RawMessage) (string, Outcome) {
			var params struct {
				Query string `json:"query"`
			}
			if err := json.Unmarshal(args, &params); err != nil || params.Query == "" {
				return "Error searching the web", OutcomeFallback
			}

			// The search plus device round-trip can take tens of seconds;
			// keep the user in the loop while they wait.
			if deps.Session != nil {
				_ = deps.Session.Respond(fmt.Sprintf(
					`Tell the user very briefly (one short sentence in Dutch) that you're looking up "%s".`,
					params.Query,
				))
			}

			result, err := deps.Search.Ask(ctx, params.Query)
			if err != nil {
				deps.Log.WithError(err).Error("Web search failed", map[string]interface{}{
					"query": params.Query,
				})
				return "Error searching the web", OutcomeFallback
			}

			// Phone callers have no app to render results; read them inline.
			if deps.SIPCaller {
				return string(result.Raw), OutcomeOK
			}

			rpcResult, err := deps.RPC.PerformRPC(ctx, deps.ParticipantIdentity, "web_search", string(result.Raw), webSearchRPCTimeout)
			if err != nil {
				deps.Log.WithError(err).Error("Forwarding search results to device failed", nil)
				return "Error searching the web", OutcomeFallback
			}
			return rpcResult, OutcomeOK
		},
	}
}
