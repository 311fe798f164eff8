package alert

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return json.Marshal(event)
	}
}

func formatSlack(event Event) ([]byte, error) {
	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("toolwarden: %s %s", event.ToolID, event.Outcome),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Tool:* %s", event.ToolID)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Event:* %s", event.EventKind)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Layer:* %s", event.Layer)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", event.Reason)},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event Event) ([]byte, error) {
	severity := "info"
	switch event.Tier {
	case "blocked":
		severity = "critical"
	case "owner_only":
		severity = "error"
	case "approval_required":
		severity = "warning"
	}
	if event.EventKind == "tamper" || event.EventKind == "killswitch" {
		severity = "critical"
	}

	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("toolwarden %s: %s", event.Outcome, event.ToolID),
			"severity": severity,
			"source":   "toolwarden",
			"custom_details": map[string]any{
				"tool":   event.ToolID,
				"event":  event.EventKind,
				"layer":  event.Layer,
				"risk":   event.Risk,
				"reason": event.Reason,
			},
		},
	}
	return json.Marshal(payload)
}
