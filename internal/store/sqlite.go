package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"xpost/internal/content"
	"xpost/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Store is the SQLite-backed persistence layer. All mutations go through
// its narrow operation surface; SQLite serializes concurrent writers via
// the single connection below.
type Store struct {
	db  *sql.DB
	log logx.Logger
}

func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("store path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &Store{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- drafts ----

func (s *Store) CreateDraft(ctx context.Context, unit content.ContentUnit) (string, error) {
	if err := unit.ValidateDraft(); err != nil {
		return "", err
	}
	now := time.Now()
	id := content.NewDraftID(unit.Kind, now)
	payload, err := json.Marshal(unit)
	if err != nil {
		return "", err
	}

	query, args, err := sq.Insert("drafts").
		Columns("id", "unit", "created_at").
		Values(id, string(payload), now.UnixMilli()).
		ToSql()
	if err != nil {
		return "", err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return "", err
	}
	s.log.Debug("draft created", logx.String("id", id), logx.String("kind", string(unit.Kind)))
	return id, nil
}

func (s *Store) ListDrafts(ctx context.Context) ([]Draft, error) {
	query, args, err := sq.Select("id", "unit", "created_at").
		From("drafts").
		OrderBy("created_at").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) GetDraft(ctx context.Context, id string) (Draft, error) {
	query, args, err := sq.Select("id", "unit", "created_at").
		From("drafts").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return Draft{}, err
	}
	d, err := scanDraft(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Draft{}, fmt.Errorf("draft %s: %w", id, ErrNotFound)
	}
	return d, err
}

func (s *Store) DeleteDraft(ctx context.Context, id string) error {
	query, args, err := sq.Delete("drafts").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("draft %s: %w", id, ErrNotFound)
	}
	return nil
}

// ---- scheduled ----

// CreateScheduled persists a time-triggered item. The due time must be
// strictly in the future at creation.
func (s *Store) CreateScheduled(ctx context.Context, unit content.ContentUnit, dueAt time.Time) (string, error) {
	if err := unit.Validate(); err != nil {
		return "", err
	}
	now := time.Now()
	if !dueAt.After(now) {
		return "", fmt.Errorf("due time %s is not in the future: %w", dueAt.Format(time.RFC3339), content.ErrValidation)
	}
	id := content.NewScheduleID(unit.Kind, now)
	payload, err := json.Marshal(unit)
	if err != nil {
		return "", err
	}

	query, args, err := sq.Insert("scheduled").
		Columns("id", "unit", "due_at", "created_at", "published_count", "current_index").
		Values(id, string(payload), dueAt.UnixMilli(), now.UnixMilli(), 0, 0).
		ToSql()
	if err != nil {
		return "", err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return "", err
	}
	s.log.Debug("scheduled item created",
		logx.String("id", id),
		logx.String("kind", string(unit.Kind)),
		logx.Time("due_at", dueAt))
	return id, nil
}

func (s *Store) ListScheduled(ctx context.Context) ([]ScheduledItem, error) {
	return s.queryScheduled(ctx, sq.Select(scheduledCols...).From("scheduled").OrderBy("due_at"))
}

// ListDue returns unclaimed items whose due time has passed.
func (s *Store) ListDue(ctx context.Context, now time.Time) ([]ScheduledItem, error) {
	return s.queryScheduled(ctx, sq.Select(scheduledCols...).
		From("scheduled").
		Where(sq.And{sq.LtOrEq{"due_at": now.UnixMilli()}, sq.Eq{"claimed": 0}}).
		OrderBy("due_at"))
}

func (s *Store) GetScheduled(ctx context.Context, id string) (ScheduledItem, error) {
	query, args, err := sq.Select(scheduledCols...).
		From("scheduled").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return ScheduledItem{}, err
	}
	it, err := scanScheduled(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return ScheduledItem{}, fmt.Errorf("scheduled item %s: %w", id, ErrNotFound)
	}
	return it, err
}

// UpdateScheduled persists recurring-series progress (and the next due
// time), releasing any claim on the row.
func (s *Store) UpdateScheduled(ctx context.Context, item ScheduledItem) error {
	payload, err := json.Marshal(item.Unit)
	if err != nil {
		return err
	}
	query, args, err := sq.Update("scheduled").
		Set("unit", string(payload)).
		Set("due_at", item.DueAt.UnixMilli()).
		Set("published_count", item.PublishedCount).
		Set("current_index", item.CurrentIndex).
		Set("claimed", 0).
		Where(sq.Eq{"id": item.ID}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("scheduled item %s: %w", item.ID, ErrNotFound)
	}
	return nil
}

func (s *Store) RemoveScheduled(ctx context.Context, id string) error {
	query, args, err := sq.Delete("scheduled").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("scheduled item %s: %w", id, ErrNotFound)
	}
	return nil
}

// Claim marks an item as owned by the current tick so an overlapping tick
// cannot pick it up. Claiming an already-claimed (or removed) item reports
// ErrNotFound.
func (s *Store) Claim(ctx context.Context, id string) (ScheduledItem, error) {
	query, args, err := sq.Update("scheduled").
		Set("claimed", 1).
		Where(sq.Eq{"id": id, "claimed": 0}).
		ToSql()
	if err != nil {
		return ScheduledItem{}, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return ScheduledItem{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ScheduledItem{}, fmt.Errorf("claim %s: %w", id, ErrNotFound)
	}
	return s.GetScheduled(ctx, id)
}

// Release drops the claim without touching item state. Used when a
// recurring tick fails: the same element is retried on a later tick.
func (s *Store) Release(ctx context.Context, id string) error {
	query, args, err := sq.Update("scheduled").
		Set("claimed", 0).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// ResetClaims clears stale claims left behind by a crash mid-publish, so
// those items become due again after a restart.
func (s *Store) ResetClaims(ctx context.Context) (int64, error) {
	query, args, err := sq.Update("scheduled").
		Set("claimed", 0).
		Where(sq.Eq{"claimed": 1}).
		ToSql()
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// MoveToFailed moves a scheduled item verbatim into the failed holding
// area. The delete and insert happen in one transaction.
func (s *Store) MoveToFailed(ctx context.Context, id, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := sq.Select(scheduledCols...).
		From("scheduled").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	it, err := scanScheduled(tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("scheduled item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return err
	}

	query, args, err = sq.Delete("scheduled").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return err
	}

	payload, err := json.Marshal(it.Unit)
	if err != nil {
		return err
	}
	query, args, err = sq.Insert("failed").
		Columns("id", "unit", "due_at", "created_at", "published_count", "current_index", "failed_at", "reason").
		Values(it.ID, string(payload), it.DueAt.UnixMilli(), it.CreatedAt.UnixMilli(),
			it.PublishedCount, it.CurrentIndex, time.Now().UnixMilli(), nullStr(reason)).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	return tx.Commit()
}

// CancelScheduled removes a live item before it triggers and returns it for
// confirmation messaging.
func (s *Store) CancelScheduled(ctx context.Context, id string) (ScheduledItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ScheduledItem{}, err
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := sq.Select(scheduledCols...).
		From("scheduled").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return ScheduledItem{}, err
	}
	it, err := scanScheduled(tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return ScheduledItem{}, fmt.Errorf("scheduled item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ScheduledItem{}, err
	}

	query, args, err = sq.Delete("scheduled").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return ScheduledItem{}, err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return ScheduledItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return ScheduledItem{}, err
	}
	return it, nil
}

func (s *Store) ListFailed(ctx context.Context) ([]FailedItem, error) {
	query, args, err := sq.Select("id", "unit", "due_at", "created_at", "published_count", "current_index", "failed_at", "reason").
		From("failed").
		OrderBy("failed_at").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FailedItem
	for rows.Next() {
		var (
			f        FailedItem
			unitJSON string
			dueMS    int64
			createMS int64
			failMS   int64
			reason   sql.NullString
		)
		if err := rows.Scan(&f.ID, &unitJSON, &dueMS, &createMS, &f.PublishedCount, &f.CurrentIndex, &failMS, &reason); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(unitJSON), &f.Unit); err != nil {
			return nil, fmt.Errorf("failed item %s: %w", f.ID, err)
		}
		f.DueAt = time.UnixMilli(dueMS)
		f.CreatedAt = time.UnixMilli(createMS)
		f.FailedAt = time.UnixMilli(failMS)
		f.Reason = reason.String
		out = append(out, f)
	}
	return out, rows.Err()
}

// Counts reports live and due scheduled items for status snapshots. No
// mutation.
func (s *Store) Counts(ctx context.Context, now time.Time) (live, due int, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scheduled`)
	if err := row.Scan(&live); err != nil {
		return 0, 0, err
	}
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scheduled WHERE due_at <= ? AND claimed = 0`, now.UnixMilli())
	if err := row.Scan(&due); err != nil {
		return 0, 0, err
	}
	return live, due, nil
}

// ---- helpers ----

var scheduledCols = []string{"id", "unit", "due_at", "created_at", "published_count", "current_index"}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDraft(r rowScanner) (Draft, error) {
	var (
		d        Draft
		unitJSON string
		createMS int64
	)
	if err := r.Scan(&d.ID, &unitJSON, &createMS); err != nil {
		return Draft{}, err
	}
	if err := json.Unmarshal([]byte(unitJSON), &d.Unit); err != nil {
		return Draft{}, fmt.Errorf("draft %s: %w", d.ID, err)
	}
	d.CreatedAt = time.UnixMilli(createMS)
	return d, nil
}

func scanScheduled(r rowScanner) (ScheduledItem, error) {
	var (
		it       ScheduledItem
		unitJSON string
		dueMS    int64
		createMS int64
	)
	if err := r.Scan(&it.ID, &unitJSON, &dueMS, &createMS, &it.PublishedCount, &it.CurrentIndex); err != nil {
		return ScheduledItem{}, err
	}
	if err := json.Unmarshal([]byte(unitJSON), &it.Unit); err != nil {
		return ScheduledItem{}, fmt.Errorf("scheduled item %s: %w", it.ID, err)
	}
	it.DueAt = time.UnixMilli(dueMS)
	it.CreatedAt = time.UnixMilli(createMS)
	return it, nil
}

func (s *Store) queryScheduled(ctx context.Context, b sq.SelectBuilder) ([]ScheduledItem, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScheduledItem
	for rows.Next() {
		it, err := scanScheduled(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
