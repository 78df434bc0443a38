package events

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// ParseEnvelope extracts the injected event_id/event_type from a raw
// published message and unmarshals the payload into out. The
// header fields are read with gjson first so a consumer can reject a
// malformed or id-less message before paying for a full document decode —
// the consumer's dedup check only needs event_id.
func ParseEnvelope(body []byte, out any) (eventID, eventType string, err error) {
	if !gjson.ValidBytes(body) {
		return "", "", fmt.Errorf("events: message is not valid JSON")
	}
	eventID = gjson.GetBytes(body, "event_id").String()
	if eventID == "" {
		return "", "", fmt.Errorf("events: message carries no event_id")
	}
	eventType = gjson.GetBytes(body, "event_type").String()

	if out != nil {
		payload := gjson.GetBytes(body, "payload")
		if !payload.Exists() {
			return eventID, eventType, fmt.Errorf("events: message carries no payload")
		}
		if err := json.Unmarshal([]byte(payload.Raw), out); err != nil {
			return eventID, eventType, fmt.Errorf("events: decode payload: %w", err)
		}
	}
	return eventID, eventType, nil
}
