package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"companion-agent/internal/media"
	"companion-agent/internal/realtime"
)

func movieRecommendationTool(deps Deps) Tool {
	return Tool{
		Def: realtime.ToolDef{
			Type: "function",
			Name: "movie_recommendation",
			Description: "Search for movies and TV shows available on streaming platforms in the Netherlands. " +
				"Use this tool when the user asks for something to watch, mentions movies or series they like, " +
				"wants entertainment recommendations, or during calm evening conversations.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "What to search for. Can be a title, topic, or description like 'Dutch thriller' or 'nature documentary'."},
					"genre": {"type": "string", "description": "Optional genre filter like 'drama', 'comedy', 'documentary', 'thriller', 'romance', 'animation'."},
					"media_type": {"type": "string", "enum": ["movie", "tv", "both"], "description": "Type of content."}
				},
				"required": ["query"]
			}`),
		},
		Run: func(ctx context.Context, args json.RawMessage) (string, Outcome) {
			var params struct {
				Query     string `json:"query"`
				Genre     string `json:"genre"`
				MediaType string `json:"media_type"`
			}
			if err := json.Unmarshal(args, &params); err != nil || params.Query == "" {
				return "I couldn't find entertainment recommendations right now. Try asking me later!", OutcomeFallback
			}
			if params.MediaType == "" {
				params.MediaType = "both"
			}

			// Looking up providers takes a few seconds; keep the user in
			// the loop while they wait.
			if deps.Session != nil {
				_ = deps.Session.Respond(fmt.Sprintf(
					`Tell the user briefly (one short sentence in Dutch) that you're checking what's available for "%s".`,
					params.Query,
				))
			}

			if !deps.Media.Configured() {
				deps.Log.Warn("Media catalogue not configured, using web search fallback", nil)
				return movieSearchFallback(ctx, deps, params.Query, params.Genre), OutcomeFallback
			}

			recs, err := deps.Media.Recommend(ctx, params.Query, params.MediaType)
			if err != nil {
				deps.Log.WithError(err).Error("Media catalogue lookup failed", map[string]interface{}{
					"query": params.Query,
				})
				return movieSearchFallback(ctx, deps, params.Query, params.Genre), OutcomeFallback
			}
			return media.FormatRecommendations(params.Query, recs), OutcomeOK
		},
	}
}

func movieSearchFallback(ctx context.Context, deps Deps, query, genre string) string {
	result, err := deps.Search.Ask(ctx, media.FallbackQuery(query, genre))
	if err != nil || result.Content == "" {
		return "I couldn't find entertainment recommendations right now. Try asking me later!"
	}
	return "Entertainment search results (web):\n" + result.Content
}
