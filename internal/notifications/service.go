package notifications

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"shuttle/internal/config"
)

const userAgent = "shuttle-notify/0.1"

// Event identifies a notification type.
type Event string

const (
	EventMissionCreated   Event = "mission.created"
	EventMissionCompleted Event = "mission.completed"
	EventMissionFailed    Event = "mission.failed"
	EventTest             Event = "test"
)

// Payload carries event-specific fields such as "name", "url", "uid",
// "output", "sizeBytes", "skipped", "error".
type Payload map[string]any

// Message is a rendered notification handed to a channel.
type Message struct {
	Event    Event
	Title    string
	Body     string
	Tags     []string
	Priority string
	Payload  Payload
}

// Channel delivers a rendered message to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Service exposes the notification surface used by the scheduler.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService returns a dispatcher over every configured channel, or a noop
// service when none is configured.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	n := cfg.Notifications
	timeout := n.NotifyTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	var channels []Channel
	if topic := strings.TrimSpace(n.NtfyTopic); topic != "" {
		channels = append(channels, NewNtfyChannel(topic, client))
	}
	if hook := strings.TrimSpace(n.WebhookURL); hook != "" {
		channels = append(channels, NewWebhookChannel(hook, client))
	}
	if len(channels) == 0 {
		return noopService{}
	}
	return NewDispatcher(channels, map[Event]bool{
		EventMissionCreated:   n.Created,
		EventMissionCompleted: n.Completed,
		EventMissionFailed:    n.Failed,
		EventTest:             true,
	})
}

// Dispatcher fans a published event out to every channel.
type Dispatcher struct {
	channels []Channel
	enabled  map[Event]bool
}

// NewDispatcher builds a dispatcher. A nil enabled map allows every event.
func NewDispatcher(channels []Channel, enabled map[Event]bool) *Dispatcher {
	return &Dispatcher{channels: channels, enabled: enabled}
}

// Publish renders the event and sends it to each channel. Channel failures
// are joined; one failing channel does not stop the others.
func (d *Dispatcher) Publish(ctx context.Context, event Event, payload Payload) error {
	if d == nil || len(d.channels) == 0 {
		return nil
	}
	if d.enabled != nil && !d.enabled[event] {
		return nil
	}
	msg, ok := Render(event, payload)
	if !ok {
		return nil
	}
	var errs []error
	for _, ch := range d.channels {
		if err := ch.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
