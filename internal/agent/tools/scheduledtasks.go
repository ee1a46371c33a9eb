package tools

import (
	"context"
	"encoding/json"

	"companion-agent/internal/realtime"
	"companion-agent/internal/workflow"
)

func scheduleTaskTool(deps Deps) Tool {
	return Tool{
		Def: realtime.ToolDef{
			Type:        "function",
			Name:        "schedule_task",
			Description: "Schedule a phone call at a specific time to discuss a topic.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"cron_expression": {"type": "string", "description": "Cron expression for when to trigger."},
					"title": {"type": "string", "description": "Title of the task."},
					"message": {"type": "string", "description": "Topic to discuss during the call."}
				},
				"required": ["cron_expression", "message", "title"]
			}`),
		},
		Run: func(ctx context.Context, args json.RawMessage) (string, Outcome) {
			var params struct {
				CronExpression string `json:"cron_expression"`
				Message        string `json:"message"`
				Title          string `json:"title"`
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return "I encountered an error while trying to schedule the call. Please try again later.", OutcomeFallback
			}

			_, err := deps.Workflow.CreateScheduled(ctx, workflow.ScheduledCall{
				Cron:        params.CronExpression,
				PhoneNumber: deps.UserPhoneNumber,
				UserID:      deps.ParticipantIdentity,
				Message:     params.Message,
				Title:       params.Title,
			})
			if err != nil {
				deps.Log.WithError(err).Error("Scheduling call workflow failed", map[string]interface{}{
					"title": params.Title,
				})
				return "I encountered an error while trying to schedule the call. Please try again later.", OutcomeFallback
			}
			return "I've scheduled the call for you. You'll receive a call at the specified time.", OutcomeOK
		},
	}
}

// scheduledTask is the projection read back to the model.
type scheduledTask struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
}

func scheduledTasksTool(deps Deps) Tool {
	return Tool{
		Def: realtime.ToolDef{
			Type:        "function",
			Name:        "get_scheduled_tasks",
			Description: "Get all scheduled tasks for the current user.",
			Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
		},
		Run: func(ctx context.Context, args json.RawMessage) (string, Outcome) {
			workflows, err := deps.Workflow.UserWorkflows(ctx, deps.ParticipantIdentity)
			if err != nil {
				deps.Log.WithError(err).Error("Listing scheduled tasks failed", nil)
				return "I encountered an error while trying to get your scheduled tasks. Please try again later.", OutcomeFallback
			}

			tasks := make([]scheduledTask, 0, len(workflows))
			for _, wf := range workflows {
				tasks = append(tasks, scheduledTask{
					ID:        wf.ID,
					Name:      wf.Name,
					Active:    wf.Active,
					CreatedAt: wf.CreatedAt,
				})
			}

			raw, err := json.Marshal(tasks)
			if err != nil {
				return "I encountered an error while trying to get your scheduled tasks. Please try again later.", OutcomeFallback
			}
			return string(raw), OutcomeOK
		},
	}
}

func deleteScheduledTaskTool(deps Deps) Tool {
	return Tool{
		Def: realtime.ToolDef{
			Type:        "function",
			Name:        "delete_scheduled_task",
			Description: "Delete a scheduled task by its workflow ID.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"workflow_id": {"type": "string", "description": "The ID of the workflow to delete."}
				},
				"required": ["workflow_id"]
			}`),
		},
		Run: func(ctx context.Context, args json.RawMessage) (string, Outcome) {
			var params struct {
				WorkflowID string `json:"workflow_id"`
			}
			if err := json.Unmarshal(args, &params); err != nil || params.WorkflowID == "" {
				return "I encountered an error while trying to delete the scheduled task. Please try again later.", OutcomeFallback
			}

			owned, err := deps.Workflow.BelongsToUser(ctx, params.WorkflowID, deps.ParticipantIdentity)
			if err != nil {
				deps.Log.WithError(err).Error("Ownership check failed", map[string]interface{}{
					"workflowId": params.WorkflowID,
				})
				return "I encountered an error while trying to delete the scheduled task. Please try again later.", OutcomeFallback
			}
			if !owned {
				return "I couldn't find that scheduled task. Please make sure you're trying to delete one of your own tasks.", OutcomeOK
			}

			if err := deps.Workflow.DeleteScheduled(ctx, params.WorkflowID); err != nil {
				deps.Log.WithError(err).Error("Deleting scheduled task failed", map[string]interface{}{
					"workflowId": params.WorkflowID,
				})
				return "I encountered an error while trying to delete the scheduled task. Please try again later.", OutcomeFallback
			}
			return "I've successfully deleted the scheduled task.", OutcomeOK
		},
	}
}
