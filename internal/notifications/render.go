package notifications

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// Render builds the message for event. Unknown events report false.
func Render(event Event, payload Payload) (Message, bool) {
	name := payloadString(payload, "name")
	if name == "" {
		name = payloadString(payload, "url")
	}

	msg := Message{Event: event, Payload: payload}
	switch event {
	case EventMissionCreated:
		msg.Title = "shuttle - Mission Queued"
		msg.Body = fmt.Sprintf("Queued: %s", name)
		if status := payloadString(payload, "status"); status != "" {
			msg.Body += fmt.Sprintf(" (%s)", status)
		}
		msg.Tags = []string{"shuttle", "mission", "created"}
		msg.Priority = "low"
	case EventMissionCompleted:
		msg.Title = "shuttle - Download Complete"
		var b strings.Builder
		fmt.Fprintf(&b, "Downloaded: %s", name)
		if size, ok := payloadInt64(payload, "sizeBytes"); ok && size > 0 {
			fmt.Fprintf(&b, " (%s)", humanize.Bytes(uint64(size)))
		}
		if output := payloadString(payload, "output"); output != "" {
			fmt.Fprintf(&b, "\nFile: %s", output)
		}
		if skipped, ok := payload["skipped"].([]int); ok && len(skipped) > 0 {
			fmt.Fprintf(&b, "\nSkipped segments: %d", len(skipped))
		}
		msg.Body = b.String()
		msg.Tags = []string{"shuttle", "mission", "completed"}
	case EventMissionFailed:
		msg.Title = "shuttle - Download Failed"
		var b strings.Builder
		fmt.Fprintf(&b, "Failed: %s", name)
		if reason := payloadString(payload, "error"); reason != "" {
			fmt.Fprintf(&b, "\nError: %s", reason)
		}
		msg.Body = b.String()
		msg.Tags = []string{"shuttle", "mission", "failed"}
		msg.Priority = "high"
	case EventTest:
		msg.Title = "shuttle - Test"
		msg.Body = "Notification system test"
		msg.Tags = []string{"shuttle", "test"}
		msg.Priority = "low"
	default:
		return Message{}, false
	}
	return msg, true
}

func payloadString(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	switch v := payload[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return ""
	}
}

func payloadInt64(payload Payload, key string) (int64, bool) {
	if payload == nil {
		return 0, false
	}
	switch v := payload[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}
