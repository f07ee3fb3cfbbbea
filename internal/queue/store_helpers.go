package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

const missionColumns = "id, uid, name, url, output_path, output_format, preset, user_agent, headers_json, options_json, work_dir, status, percent, speed, size_bytes, timemark, message, skipped_json, created_at, updated_at"

// timeLayout is fixed width so text ordering in SQLite matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func scanMission(scanner interface{ Scan(dest ...any) error }) (*Mission, error) {
	var (
		m            Mission
		outputFormat sql.NullString
		preset       sql.NullString
		userAgent    sql.NullString
		headersRaw   sql.NullString
		optionsRaw   sql.NullString
		workDir      sql.NullString
		statusStr    string
		speed        sql.NullString
		timemark     sql.NullString
		message      sql.NullString
		skippedRaw   sql.NullString
		createdRaw   string
		updatedRaw   string
	)

	if err := scanner.Scan(
		&m.ID,
		&m.UID,
		&m.Name,
		&m.URL,
		&m.OutputPath,
		&outputFormat,
		&preset,
		&userAgent,
		&headersRaw,
		&optionsRaw,
		&workDir,
		&statusStr,
		&m.Percent,
		&speed,
		&m.SizeBytes,
		&timemark,
		&message,
		&skippedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	m.OutputFormat = outputFormat.String
	m.Preset = preset.String
	m.UserAgent = userAgent.String
	m.WorkDir = workDir.String
	m.Status = Status(statusStr)
	m.Speed = speed.String
	m.Timemark = timemark.String
	m.Message = message.String

	if headersRaw.Valid && headersRaw.String != "" {
		if err := json.Unmarshal([]byte(headersRaw.String), &m.Headers); err != nil {
			return nil, err
		}
	}
	if optionsRaw.Valid && optionsRaw.String != "" {
		if err := json.Unmarshal([]byte(optionsRaw.String), &m.Options); err != nil {
			return nil, err
		}
	}
	if skippedRaw.Valid && skippedRaw.String != "" {
		if err := json.Unmarshal([]byte(skippedRaw.String), &m.Skipped); err != nil {
			return nil, err
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		m.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		m.UpdatedAt = updated
	}
	return &m, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableJSON(value any, empty bool) (any, error) {
	if empty {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}

func statusArgs(statuses []Status) []any {
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = string(status)
	}
	return args
}

var sortColumns = map[string]string{
	"":           "created_at",
	"createdat":  "created_at",
	"created_at": "created_at",
	"updatedat":  "updated_at",
	"updated_at": "updated_at",
	"name":       "name",
	"status":     "status",
	"percent":    "percent",
}

func sortClause(field, order string) (string, bool) {
	column, ok := sortColumns[strings.ToLower(strings.TrimSpace(field))]
	if !ok {
		return "", false
	}
	direction := "DESC"
	switch strings.ToLower(strings.TrimSpace(order)) {
	case "", "desc", "descend", "descending":
	case "asc", "ascend", "ascending":
		direction = "ASC"
	default:
		return "", false
	}
	return column + " " + direction + ", id " + direction, true
}
