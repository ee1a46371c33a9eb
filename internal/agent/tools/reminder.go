package tools

import (
	"context"
	"encoding/json"
	"time"

	"companion-agent/internal/realtime"
)

const reminderRPCTimeout = 10 * time.Second

// reminderPayload is the shape the device expects. weekDay runs 1=Sunday
// through 7=Saturday, matching the platform's calendar components.
type reminderPayload struct {
	Repeats        bool `json:"repeats"`
	DateComponents struct {
		WeekDay int `json:"weekDay"`
		Day     int `json:"day"`
		Year    int `json:"year"`
		Hour    int `json:"hour"`
		Minute  int `json:"minute"`
		Month   int `json:"month"`
	} `json:"dateComponents"`
	Message string `json:"message"`
	Title   string `json:"title"`
}

func reminderNotificationTool(deps Deps) Tool {
	return Tool{
		Def: realtime.ToolDef{
			Type:        "function",
			Name:        "schedule_reminder_notification",
			Description: "Schedule a reminder notification as a push notification. Use schedule_task for phone call reminders. Always use get_local_time first to get the user's current time.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"repeats": {"type": "boolean", "description": "Whether the notification should repeat."},
					"weekDay": {"type": "integer", "description": "Day of the week (1=Sunday, 7=Saturday)."},
					"day": {"type": "integer", "description": "Day of the month."},
					"year": {"type": "integer", "description": "Year."},
					"hour": {"type": "integer", "description": "Hour (0-23)."},
					"minute": {"type": "integer", "description": "Minute (0-59)."},
					"month": {"type": "integer", "description": "Month (1-12)."},
					"message": {"type": "string", "description": "The reminder message."},
					"title": {"type": "string", "description": "The notification title."}
				},
				"required": ["repeats", "weekDay", "day", "year", "hour", "minute", "month", "message", "title"]
			}`),
		},
		Run: func(ctx context.Context, args json.RawMessage) (string, Outcome) {
			var params struct {
				Repeats bool   `json:"repeats"`
				WeekDay int    `json:"weekDay"`
				Day     int    `json:"day"`
				Year    int    `json:"year"`
				Hour    int    `json:"hour"`
				Minute  int    `json:"minute"`
				Month   int    `json:"month"`
				Message string `json:"message"`
				Title   string `json:"title"`
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return "I encountered an error while trying to schedule the reminder notification. Please try again later.", OutcomeFallback
			}

			var payload reminderPayload
			payload.Repeats = params.Repeats
			payload.DateComponents.WeekDay = params.WeekDay
			payload.DateComponents.Day = params.Day
			payload.DateComponents.Year = params.Year
			payload.DateComponents.Hour = params.Hour
			payload.DateComponents.Minute = params.Minute
			payload.DateComponents.Month = params.Month
			payload.Message = params.Message
			payload.Title = params.Title

			raw, err := json.Marshal(payload)
			if err != nil {
				return "I encountered an error while trying to schedule the reminder notification. Please try again later.", OutcomeFallback
			}

			result, err := deps.RPC.PerformRPC(ctx, deps.ParticipantIdentity, "schedule_reminder_notification", string(raw), reminderRPCTimeout)
			if err != nil {
				deps.Log.WithError(err).Error("Scheduling reminder notification failed", nil)
				return "I encountered an error while trying to schedule the reminder notification. Please try again later.", OutcomeFallback
			}
			return result, OutcomeOK
		},
	}
}
