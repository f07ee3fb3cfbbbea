// Package api defines the wire-format types exchanged between the daemon's
// HTTP API and its consumers, plus the client the CLI uses to reach it.
//
// # Key Types
//
// Mission: transport representation of a mission with progress, output, and
// skipped segment indices.
//
// CreateMissionRequest: body accepted by POST /api/missions.
//
// DaemonStatus: runtime information, mission counts, and dependency health.
//
// # Converters
//
// FromMission: queue.Mission -> Mission with RFC3339 timestamps.
//
// FromPage: queue.Page -> MissionListResponse.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Statuses are exposed as lowercase strings.
// Timestamps use RFC3339 with milliseconds. Client errors carry the HTTP
// status and unwrap to the matching services marker so callers can branch
// with errors.Is.
package api
