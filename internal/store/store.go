// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/verte-zerg/solvefeed/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Sentinel errors for empty lookups.
var (
	ErrNoSnapshot = errors.New("no recommendation snapshot")
	ErrNoSyncJob  = errors.New("no sync job")
	ErrNoProfile  = errors.New("no stored profile")
)

// ErrSyncInProgress is returned when a handle already has an active sync job.
var ErrSyncInProgress = errors.New("sync already in progress")

// SyncJobTimeout is how long a PENDING or RUNNING job blocks new ones. Older
// active jobs are treated as abandoned by a crashed run.
const SyncJobTimeout = time.Hour

// timeLayout is fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps SQLite access for problems, solves and generated feeds.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS problems (
			id INTEGER PRIMARY KEY,
			title TEXT NOT NULL,
			level INTEGER NOT NULL,
			tags_json TEXT NOT NULL,
			accepted_user_count INTEGER NOT NULL,
			average_tries REAL NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS solves (
			handle TEXT NOT NULL,
			problem_id INTEGER NOT NULL,
			solved_at TEXT NOT NULL,
			synthetic INTEGER NOT NULL,
			PRIMARY KEY (handle, problem_id)
		);`,
		`CREATE TABLE IF NOT EXISTS tag_stats (
			handle TEXT NOT NULL,
			snapshot_at TEXT NOT NULL,
			tag TEXT NOT NULL,
			total_score REAL NOT NULL,
			details_json TEXT NOT NULL,
			analysis_json TEXT NOT NULL,
			PRIMARY KEY (handle, snapshot_at, tag)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id TEXT PRIMARY KEY,
			handle TEXT NOT NULL,
			generated_at TEXT NOT NULL,
			criteria_json TEXT NOT NULL,
			items_json TEXT NOT NULL,
			stats_json TEXT NOT NULL,
			total_count INTEGER NOT NULL,
			avg_score REAL NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sync_jobs (
			id INTEGER PRIMARY KEY,
			handle TEXT NOT NULL,
			status TEXT NOT NULL,
			progress INTEGER NOT NULL,
			message TEXT NOT NULL,
			created_at TEXT NOT NULL,
			started_at TEXT,
			ended_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS profiles (
			handle TEXT PRIMARY KEY,
			tier INTEGER NOT NULL,
			rating INTEGER NOT NULL,
			solved_count INTEGER NOT NULL,
			class INTEGER NOT NULL,
			fetched_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tag_stats_tag ON tag_stats(handle, tag, snapshot_at);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_handle ON snapshots(handle, generated_at);`,
		`CREATE INDEX IF NOT EXISTS idx_sync_jobs_handle ON sync_jobs(handle, id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func parseOptionalTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func optionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// withTx runs fn in a transaction, rolling back when fn fails.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// UpsertProblems inserts or refreshes catalog problems.
func (s *Store) UpsertProblems(ctx context.Context, problems []model.SolvedProblem) error {
	if len(problems) == 0 {
		return nil
	}
	now := formatTime(time.Now())
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO problems (id, title, level, tags_json, accepted_user_count, average_tries, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				level = excluded.level,
				tags_json = excluded.tags_json,
				accepted_user_count = excluded.accepted_user_count,
				average_tries = excluded.average_tries,
				updated_at = excluded.updated_at`)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for _, p := range problems {
			tags, err := json.Marshal(p.Tags)
			if err != nil {
				return fmt.Errorf("failed to encode tags of %d: %w", p.ProblemID, err)
			}
			if _, err := stmt.ExecContext(ctx, p.ProblemID, p.Title, p.Level, string(tags), p.AcceptedUserCount, p.AverageTries, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// Problems returns stored problems for ids. Unknown IDs are skipped.
func (s *Store) Problems(ctx context.Context, ids []int) (map[int]model.SolvedProblem, error) {
	result := make(map[int]model.SolvedProblem, len(ids))
	for start := 0; start < len(ids); start += 500 {
		chunk := ids[start:min(start+500, len(ids))]
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		query := fmt.Sprintf(`SELECT id, title, level, tags_json, accepted_user_count, average_tries
			FROM problems WHERE id IN (%s)`, placeholders(len(chunk)))
		if err := s.scanProblems(ctx, query, args, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// SolvedProblems returns the stored catalog rows of every problem the
// handle has solved, ordered by ID.
func (s *Store) SolvedProblems(ctx context.Context, handle string) ([]model.SolvedProblem, error) {
	result := map[int]model.SolvedProblem{}
	err := s.scanProblems(ctx, `SELECT p.id, p.title, p.level, p.tags_json, p.accepted_user_count, p.average_tries
		FROM problems p JOIN solves s ON s.problem_id = p.id
		WHERE s.handle = ?`, []any{handle}, result)
	if err != nil {
		return nil, err
	}
	ids, err := s.ListSolvedIDs(ctx, handle)
	if err != nil {
		return nil, err
	}
	out := make([]model.SolvedProblem, 0, len(result))
	for _, id := range ids {
		if p, ok := result[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) scanProblems(ctx context.Context, query string, args []any, into map[int]model.SolvedProblem) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()
	for rows.Next() {
		var p model.SolvedProblem
		var tags string
		if err := rows.Scan(&p.ProblemID, &p.Title, &p.Level, &tags, &p.AcceptedUserCount, &p.AverageTries); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
			return fmt.Errorf("failed to decode tags of %d: %w", p.ProblemID, err)
		}
		into[p.ProblemID] = p
	}
	return rows.Err()
}

// ReplaceSolves replaces every solve record of handle.
func (s *Store) ReplaceSolves(ctx context.Context, handle string, records []model.SolveRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM solves WHERE handle = ?`, handle); err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO solves (handle, problem_id, solved_at, synthetic) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for _, r := range records {
			synthetic := 0
			if r.Synthetic {
				synthetic = 1
			}
			if _, err := stmt.ExecContext(ctx, handle, r.ProblemID, formatTime(r.SolvedAt), synthetic); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListSolvedIDs returns the solved problem IDs of handle in ascending order.
func (s *Store) ListSolvedIDs(ctx context.Context, handle string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT problem_id FROM solves WHERE handle = ? ORDER BY problem_id ASC`, handle)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// ListSolves returns the solve records of handle ordered by problem ID.
func (s *Store) ListSolves(ctx context.Context, handle string) ([]model.SolveRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT problem_id, solved_at, synthetic FROM solves WHERE handle = ? ORDER BY problem_id ASC`, handle)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var records []model.SolveRecord
	for rows.Next() {
		var r model.SolveRecord
		var solvedAt string
		var synthetic int
		if err := rows.Scan(&r.ProblemID, &solvedAt, &synthetic); err != nil {
			return nil, err
		}
		parsed, err := parseTime(solvedAt)
		if err != nil {
			return nil, err
		}
		r.SolvedAt = parsed
		r.Synthetic = synthetic != 0
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// SaveTagStats appends one dated set of weakness scores for handle.
func (s *Store) SaveTagStats(ctx context.Context, handle string, at time.Time, scores []model.WeaknessScore) error {
	if len(scores) == 0 {
		return nil
	}
	stamp := formatTime(at)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO tag_stats (handle, snapshot_at, tag, total_score, details_json, analysis_json)
			 VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for _, sc := range scores {
			details, err := json.Marshal(sc.Details)
			if err != nil {
				return err
			}
			analysis, err := json.Marshal(sc.Analysis)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, handle, stamp, sc.Tag, sc.TotalScore, string(details), string(analysis)); err != nil {
				return err
			}
		}
		return nil
	})
}

// LatestTagStats returns the most recent set of weakness scores for handle,
// weakest first, and the time it was saved. An empty result has a zero time.
func (s *Store) LatestTagStats(ctx context.Context, handle string) ([]model.WeaknessScore, time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT snapshot_at, tag, total_score, details_json, analysis_json
		 FROM tag_stats
		 WHERE handle = ? AND snapshot_at = (SELECT MAX(snapshot_at) FROM tag_stats WHERE handle = ?)
		 ORDER BY total_score DESC, tag ASC`, handle, handle)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var scores []model.WeaknessScore
	var at time.Time
	for rows.Next() {
		var sc model.WeaknessScore
		var stamp, details, analysis string
		if err := rows.Scan(&stamp, &sc.Tag, &sc.TotalScore, &details, &analysis); err != nil {
			return nil, time.Time{}, err
		}
		if at, err = parseTime(stamp); err != nil {
			return nil, time.Time{}, err
		}
		if err := json.Unmarshal([]byte(details), &sc.Details); err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to decode details of %s: %w", sc.Tag, err)
		}
		if err := json.Unmarshal([]byte(analysis), &sc.Analysis); err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to decode analysis of %s: %w", sc.Tag, err)
		}
		scores = append(scores, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, err
	}
	return scores, at, nil
}

// TagScoreHistory returns up to limit most recent weakness observations of
// one tag, oldest first.
func (s *Store) TagScoreHistory(ctx context.Context, handle, tag string, limit int) ([]model.TagScorePoint, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT snapshot_at, total_score FROM (
			SELECT snapshot_at, total_score FROM tag_stats
			WHERE handle = ? AND tag = ?
			ORDER BY snapshot_at DESC
			LIMIT ?
		) ORDER BY snapshot_at ASC`, handle, tag, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var points []model.TagScorePoint
	for rows.Next() {
		var pt model.TagScorePoint
		var stamp string
		if err := rows.Scan(&stamp, &pt.Score); err != nil {
			return nil, err
		}
		if pt.SnapshotAt, err = parseTime(stamp); err != nil {
			return nil, err
		}
		points = append(points, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

// SaveSnapshot stores a generated feed. Snapshots are never updated.
func (s *Store) SaveSnapshot(ctx context.Context, snap model.Snapshot) error {
	criteria, err := json.Marshal(snap.Criteria)
	if err != nil {
		return err
	}
	items := snap.Items
	if items == nil {
		items = []model.RecommendationItem{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return err
	}
	stats, err := json.Marshal(snap.Stats)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, handle, generated_at, criteria_json, items_json, stats_json, total_count, avg_score)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.UserID, formatTime(snap.GeneratedAt),
		string(criteria), string(itemsJSON), string(stats),
		snap.Stats.TotalCount, snap.Stats.AvgScore,
	)
	return err
}

// LatestSnapshot returns the most recently generated snapshot of handle.
func (s *Store) LatestSnapshot(ctx context.Context, handle string) (model.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, generated_at, criteria_json, items_json, stats_json
		 FROM snapshots WHERE handle = ?
		 ORDER BY generated_at DESC, rowid DESC LIMIT 1`, handle)
	snap := model.Snapshot{UserID: handle}
	var generatedAt, criteria, items, stats string
	if err := row.Scan(&snap.ID, &generatedAt, &criteria, &items, &stats); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Snapshot{}, ErrNoSnapshot
		}
		return model.Snapshot{}, err
	}
	var err error
	if snap.GeneratedAt, err = parseTime(generatedAt); err != nil {
		return model.Snapshot{}, err
	}
	if err := json.Unmarshal([]byte(criteria), &snap.Criteria); err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to decode criteria: %w", err)
	}
	if err := json.Unmarshal([]byte(items), &snap.Items); err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to decode items: %w", err)
	}
	if err := json.Unmarshal([]byte(stats), &snap.Stats); err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to decode stats: %w", err)
	}
	return snap, nil
}

// ListSnapshots returns up to limit snapshot summaries of handle, newest first.
func (s *Store) ListSnapshots(ctx context.Context, handle string, limit int) ([]model.SnapshotSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, generated_at, total_count, avg_score FROM snapshots
		 WHERE handle = ?
		 ORDER BY generated_at DESC, rowid DESC LIMIT ?`, handle, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.SnapshotSummary
	for rows.Next() {
		var sum model.SnapshotSummary
		var generatedAt string
		if err := rows.Scan(&sum.ID, &generatedAt, &sum.TotalCount, &sum.AvgScore); err != nil {
			return nil, err
		}
		if sum.GeneratedAt, err = parseTime(generatedAt); err != nil {
			return nil, err
		}
		result = append(result, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateSyncJob records a PENDING job for handle. It fails with
// ErrSyncInProgress while another job of handle created within
// SyncJobTimeout of at is still PENDING or RUNNING.
func (s *Store) CreateSyncJob(ctx context.Context, handle string, at time.Time) (model.SyncJob, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var active int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM sync_jobs WHERE handle = ? AND status IN (?, ?) AND created_at > ?
			 ORDER BY id DESC LIMIT 1`,
			handle, string(model.SyncPending), string(model.SyncRunning), formatTime(at.Add(-SyncJobTimeout))).Scan(&active)
		switch {
		case err == nil:
			return fmt.Errorf("sync job %d: %w", active, ErrSyncInProgress)
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO sync_jobs (handle, status, progress, message, created_at) VALUES (?, ?, 0, '', ?)`,
			handle, string(model.SyncPending), formatTime(at))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return model.SyncJob{}, err
	}
	return model.SyncJob{ID: id, Handle: handle, Status: model.SyncPending, CreatedAt: at.UTC()}, nil
}

// UpdateSyncJob writes the mutable fields of job.
func (s *Store) UpdateSyncJob(ctx context.Context, job model.SyncJob) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_jobs SET status = ?, progress = ?, message = ?, started_at = ?, ended_at = ? WHERE id = ?`,
		string(job.Status), job.Progress, job.Message, optionalTime(job.StartedAt), optionalTime(job.EndedAt), job.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("sync job %d: %w", job.ID, ErrNoSyncJob)
	}
	return nil
}

// LatestSyncJob returns the newest job of handle.
func (s *Store) LatestSyncJob(ctx context.Context, handle string) (model.SyncJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, handle, status, progress, message, created_at, started_at, ended_at
		 FROM sync_jobs WHERE handle = ? ORDER BY id DESC LIMIT 1`, handle)
	var job model.SyncJob
	var status, createdAt string
	var startedAt, endedAt sql.NullString
	if err := row.Scan(&job.ID, &job.Handle, &status, &job.Progress, &job.Message, &createdAt, &startedAt, &endedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.SyncJob{}, ErrNoSyncJob
		}
		return model.SyncJob{}, err
	}
	job.Status = model.SyncStatus(status)
	var err error
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.SyncJob{}, err
	}
	if job.StartedAt, err = parseOptionalTime(startedAt); err != nil {
		return model.SyncJob{}, err
	}
	if job.EndedAt, err = parseOptionalTime(endedAt); err != nil {
		return model.SyncJob{}, err
	}
	return job, nil
}

// SaveProfile inserts or replaces the stored profile of p.Handle.
func (s *Store) SaveProfile(ctx context.Context, p model.Profile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO profiles (handle, tier, rating, solved_count, class, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.Handle, p.Tier, p.Rating, p.SolvedCount, p.Class, formatTime(p.FetchedAt))
	return err
}

// Profile returns the stored profile of handle.
func (s *Store) Profile(ctx context.Context, handle string) (model.Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT handle, tier, rating, solved_count, class, fetched_at FROM profiles WHERE handle = ?`, handle)
	var p model.Profile
	var fetchedAt string
	if err := row.Scan(&p.Handle, &p.Tier, &p.Rating, &p.SolvedCount, &p.Class, &fetchedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Profile{}, ErrNoProfile
		}
		return model.Profile{}, err
	}
	var err error
	if p.FetchedAt, err = parseTime(fetchedAt); err != nil {
		return model.Profile{}, err
	}
	return p, nil
}
