package alert

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event Event) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event Event) ([]byte, error) {
	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("factorwatch: %s", event.Outcome),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Request:* %s", event.RequestID)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Factors:* %s", strings.Join(event.Factors, ", "))},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Solutions:* %d (%d excluded)", event.Solutions, event.Excluded)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", event.Reason)},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event Event) ([]byte, error) {
	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("factorwatch %s: %s", event.Outcome, event.Reason),
			"severity": severityFor(event.Outcome),
			"source":   "factorwatch",
			"custom_details": map[string]any{
				"request_id":  event.RequestID,
				"factors":     event.Factors,
				"excluded":    event.Excluded,
				"solutions":   event.Solutions,
				"policy_hash": event.PolicyHash,
			},
		},
	}
	return json.Marshal(payload)
}

func severityFor(outcome string) string {
	switch outcome {
	case "failed":
		return "error"
	case "no_eligible_factor":
		return "critical"
	case "truncated":
		return "warning"
	default:
		return "info"
	}
}
