package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"shuttle/internal/services"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// Create inserts a new mission. CreatedAt and UpdatedAt are stamped when zero.
func (s *Store) Create(ctx context.Context, m *Mission) error {
	if m == nil {
		return services.Wrap(services.ErrValidation, "queue", "create", "mission is nil", nil)
	}
	if strings.TrimSpace(m.UID) == "" || strings.TrimSpace(m.URL) == "" {
		return services.Wrap(services.ErrValidation, "queue", "create", "uid and url are required", nil)
	}
	if _, ok := statusSet[m.Status]; !ok {
		return services.Wrap(services.ErrValidation, "queue", "create", fmt.Sprintf("unknown status %q", m.Status), nil)
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}

	headers, err := nullableJSON(m.Headers, len(m.Headers) == 0)
	if err != nil {
		return storeError("encode headers", err)
	}
	options, err := nullableJSON(m.Options, m.Options == (Options{}))
	if err != nil {
		return storeError("encode options", err)
	}
	skipped, err := nullableJSON(m.Skipped, len(m.Skipped) == 0)
	if err != nil {
		return storeError("encode skipped", err)
	}

	res, err := s.execWithRetry(ctx,
		`INSERT INTO missions (
            uid, name, url, output_path, output_format, preset, user_agent,
            headers_json, options_json, work_dir, status, percent, speed,
            size_bytes, timemark, message, skipped_json, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.UID,
		m.Name,
		m.URL,
		m.OutputPath,
		nullableString(m.OutputFormat),
		nullableString(m.Preset),
		nullableString(m.UserAgent),
		headers,
		options,
		nullableString(m.WorkDir),
		string(m.Status),
		m.Percent,
		nullableString(m.Speed),
		m.SizeBytes,
		nullableString(m.Timemark),
		nullableString(m.Message),
		skipped,
		formatTime(m.CreatedAt),
		formatTime(m.UpdatedAt),
	)
	if err != nil {
		return storeError("insert mission", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		m.ID = id
	}
	return nil
}

// Get returns the mission with uid, or nil when it does not exist.
func (s *Store) Get(ctx context.Context, uid string) (*Mission, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+missionColumns+" FROM missions WHERE uid = ?", uid)
	m, err := scanMission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("get mission", err)
	}
	return m, nil
}

// Update writes the non-nil patch fields and refreshes updated_at. A missing
// uid yields an ErrNotFound-marked error.
func (s *Store) Update(ctx context.Context, uid string, patch Patch) error {
	sets := make([]string, 0, 9)
	args := make([]any, 0, 10)

	if patch.Status != nil {
		if _, ok := statusSet[*patch.Status]; !ok {
			return services.Wrap(services.ErrValidation, "queue", "update", fmt.Sprintf("unknown status %q", *patch.Status), nil)
		}
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.Percent != nil {
		sets = append(sets, "percent = ?")
		args = append(args, clampPercent(*patch.Percent))
	}
	if patch.Speed != nil {
		sets = append(sets, "speed = ?")
		args = append(args, nullableString(*patch.Speed))
	}
	if patch.SizeBytes != nil {
		sets = append(sets, "size_bytes = ?")
		args = append(args, *patch.SizeBytes)
	}
	if patch.Timemark != nil {
		sets = append(sets, "timemark = ?")
		args = append(args, nullableString(*patch.Timemark))
	}
	if patch.Message != nil {
		sets = append(sets, "message = ?")
		args = append(args, nullableString(*patch.Message))
	}
	if patch.Skipped != nil {
		skipped, err := nullableJSON(*patch.Skipped, len(*patch.Skipped) == 0)
		if err != nil {
			return storeError("encode skipped", err)
		}
		sets = append(sets, "skipped_json = ?")
		args = append(args, skipped)
	}
	if patch.OutputPath != nil {
		sets = append(sets, "output_path = ?")
		args = append(args, *patch.OutputPath)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(time.Now()), uid)

	res, err := s.execWithRetry(ctx, "UPDATE missions SET "+strings.Join(sets, ", ")+" WHERE uid = ?", args...)
	if err != nil {
		return storeError("update mission", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return services.Wrap(services.ErrNotFound, "queue", "update mission", uid, nil)
	}
	return nil
}

// Delete removes the mission. The boolean reports whether a row existed.
func (s *Store) Delete(ctx context.Context, uid string) (bool, error) {
	res, err := s.execWithRetry(ctx, "DELETE FROM missions WHERE uid = ?", uid)
	if err != nil {
		return false, storeError("delete mission", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, storeError("delete mission", err)
	}
	return affected > 0, nil
}

// ListPage returns one page of missions with the total match count.
func (s *Store) ListPage(ctx context.Context, q PageQuery) (Page, error) {
	ctx = ensureContext(ctx)
	page := q.Page
	if page < 1 {
		page = 1
	}
	size := q.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	order, ok := sortClause(q.SortField, q.SortOrder)
	if !ok {
		return Page{}, services.Wrap(services.ErrValidation, "queue", "list", fmt.Sprintf("unsupported sort %q %q", q.SortField, q.SortOrder), nil)
	}

	where := ""
	var args []any
	if q.Status != "" {
		if _, ok := statusSet[q.Status]; !ok {
			return Page{}, services.Wrap(services.ErrValidation, "queue", "list", fmt.Sprintf("unknown status %q", q.Status), nil)
		}
		where = " WHERE status = ?"
		args = append(args, string(q.Status))
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM missions"+where, args...).Scan(&count); err != nil {
		return Page{}, storeError("count missions", err)
	}

	rows, err := s.queryMissions(ctx,
		"SELECT "+missionColumns+" FROM missions"+where+" ORDER BY "+order+" LIMIT ? OFFSET ?",
		append(args, size, (page-1)*size)...,
	)
	if err != nil {
		return Page{}, err
	}

	totalPages := 0
	if count > 0 {
		totalPages = (count + size - 1) / size
	}
	return Page{Rows: rows, Count: count, TotalPages: totalPages, Page: page, PageSize: size}, nil
}

// ByStatusGroup returns the group's missions oldest first.
func (s *Store) ByStatusGroup(ctx context.Context, group StatusGroup) ([]*Mission, error) {
	statuses := group.Statuses()
	if len(statuses) == 0 {
		return nil, services.Wrap(services.ErrValidation, "queue", "status group", fmt.Sprintf("unknown group %q", group), nil)
	}
	return s.queryMissions(ensureContext(ctx),
		"SELECT "+missionColumns+" FROM missions WHERE status IN ("+makePlaceholders(len(statuses))+") ORDER BY created_at ASC, id ASC",
		statusArgs(statuses)...,
	)
}

// CountByStatus returns how many missions currently hold status.
func (s *Store) CountByStatus(ctx context.Context, status Status) (int, error) {
	var count int
	err := s.db.QueryRowContext(ensureContext(ctx), "SELECT COUNT(1) FROM missions WHERE status = ?", string(status)).Scan(&count)
	if err != nil {
		return 0, storeError("count by status", err)
	}
	return count, nil
}

// Stats returns mission counts keyed by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT status, COUNT(1) FROM missions GROUP BY status")
	if err != nil {
		return nil, storeError("stats", err)
	}
	defer rows.Close()

	stats := make(map[Status]int, len(allStatuses))
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, storeError("stats scan", err)
		}
		stats[Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("stats rows", err)
	}
	return stats, nil
}

// UIDs returns the uid of every stored mission.
func (s *Store) UIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT uid FROM missions")
	if err != nil {
		return nil, storeError("list uids", err)
	}
	defer rows.Close()

	var uids []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, storeError("scan uid", err)
		}
		uids = append(uids, uid)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate uids", err)
	}
	return uids, nil
}

// ResetInterrupted returns missions left downloading by a previous process to waiting.
func (s *Store) ResetInterrupted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		"UPDATE missions SET status = ?, updated_at = ? WHERE status = ?",
		string(StatusWaiting), formatTime(time.Now()), string(StatusDownloading),
	)
	if err != nil {
		return 0, storeError("reset interrupted", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storeError("reset interrupted", err)
	}
	return affected, nil
}

func (s *Store) queryMissions(ctx context.Context, query string, args ...any) ([]*Mission, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("query missions", err)
	}
	defer rows.Close()

	var missions []*Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, storeError("scan mission", err)
		}
		missions = append(missions, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate missions", err)
	}
	return missions, nil
}

func clampPercent(value int) int {
	switch {
	case value < 0:
		return 0
	case value > 100:
		return 100
	default:
		return value
	}
}

// OutputPathTaken reports whether any stored mission writes to path.
func (s *Store) OutputPathTaken(ctx context.Context, path string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ensureContext(ctx), "SELECT COUNT(1) FROM missions WHERE output_path = ?", path).Scan(&count)
	if err != nil {
		return false, storeError("check output path", err)
	}
	return count > 0, nil
}
