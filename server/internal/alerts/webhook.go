package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// deliver posts a to every webhook with a resolvable URL. Failures are
// logged per target and never retried.
func (e *Engine) deliver(a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}
		if err := e.send(url, wh.Type, a); err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type, "rule", a.RuleName, "sensor_id", a.SensorID, "err", err)
			continue
		}
		slog.Debug("alerts: webhook delivered",
			"type", wh.Type, "rule", a.RuleName, "state", a.State)
	}
}

// send encodes a in the format expected by kind and posts it to url.
func (e *Engine) send(url, kind string, a *Alert) error {
	var payload interface{}
	switch kind {
	case "slack":
		payload = slackPayload(a)
	case "teams":
		payload = teamsPayload(a)
	case "http":
		payload = map[string]interface{}{"alert": a}
	default:
		return fmt.Errorf("unknown webhook type %q", kind)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", kind, err)
	}

	resp, err := e.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post %s webhook: %w", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s webhook returned HTTP %d", kind, resp.StatusCode)
	}
	return nil
}

// summary is the one-line human text shared by the chat formats.
func summary(a *Alert) string {
	if a.State == StateResolved {
		return fmt.Sprintf("[RESOLVED] %s on %s", a.RuleName, a.SensorID)
	}
	return fmt.Sprintf("[%s] %s", severityTag(a.Severity), a.Message)
}

func slackPayload(a *Alert) map[string]interface{} {
	return map[string]interface{}{
		"text": "*" + summary(a) + "*",
		"attachments": []map[string]interface{}{{
			"color": "#" + themeColor(a),
			"fields": []map[string]interface{}{
				{"title": "Sensor", "value": a.SensorID, "short": true},
				{"title": "Value", "value": a.Value, "short": true},
			},
			"ts": a.FiredAt.Unix(),
		}},
	}
}

func teamsPayload(a *Alert) map[string]interface{} {
	facts := []map[string]string{
		{"name": "Sensor", "value": a.SensorID},
		{"name": "Severity", "value": a.Severity},
		{"name": "Value", "value": a.Value},
		{"name": "Fired", "value": a.FiredAt.UTC().Format(time.RFC3339)},
	}
	return map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": themeColor(a),
		"summary":    a.RuleName,
		"title":      "Sensor alert: " + summary(a),
		"sections":   []map[string]interface{}{{"facts": facts}},
	}
}

func severityTag(s string) string {
	switch s {
	case "critical":
		return "CRITICAL"
	case "warning":
		return "WARNING"
	default:
		return "INFO"
	}
}

func themeColor(a *Alert) string {
	if a.State == StateResolved {
		return "2EB67D"
	}
	switch a.Severity {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
