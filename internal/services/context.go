package services

import "context"

type contextKey string

const (
	missionUIDKey contextKey = "mission_uid"
	requestIDKey  contextKey = "request_id"
)

// WithMissionUID annotates context with the mission identifier.
func WithMissionUID(ctx context.Context, uid string) context.Context {
	if uid == "" {
		return ctx
	}
	return context.WithValue(ctx, missionUIDKey, uid)
}

// MissionUIDFromContext extracts the mission identifier if present.
func MissionUIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(missionUIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
