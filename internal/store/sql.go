package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"dvsmart-go/internal/dvs"
	"dvsmart-go/internal/store/migrations"
)

const (
	filesTable = "files_index"
	jobsTable  = "job_executions_audit"
)

// SQLStore implements dvs.RecordStore on SQLite or PostgreSQL.
// Every lifecycle write is a single UPDATE guarded by the record version.
type SQLStore struct {
	db      *sqlx.DB
	qb      sq.StatementBuilderType
	dialect string
}

var _ Store = (*SQLStore)(nil)

func newSQLStore(db *sqlx.DB, dialect string) *SQLStore {
	var placeholder sq.PlaceholderFormat = sq.Question
	if dialect == migrations.Postgres {
		placeholder = sq.Dollar
	}
	return &SQLStore{
		db:      db,
		qb:      sq.StatementBuilder.PlaceholderFormat(placeholder),
		dialect: dialect,
	}
}

// DB returns the underlying connection.
func (s *SQLStore) DB() *sql.DB {
	return s.db.DB
}

// Dialect returns "sqlite" or "postgres".
func (s *SQLStore) Dialect() string {
	return s.dialect
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLStore) CheckMigrations() error {
	return migrations.Check(s.db.DB, s.dialect)
}

// Migrate applies all pending migrations.
func (s *SQLStore) Migrate() error {
	return migrations.Up(s.db.DB, s.dialect)
}

// File records

func (s *SQLStore) InsertFile(ctx context.Context, rec *dvs.FileRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	query, args, err := s.qb.Insert(filesTable).
		SetMap(fileValues(rec)).
		Suffix("RETURNING seq, version").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	var seq, version int64
	if err := s.db.QueryRowxContext(ctx, query, args...).Scan(&seq, &version); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("inserting file %s: %w", rec.ID, dvs.ErrDuplicate)
		}
		return fmt.Errorf("inserting file %s: %w", rec.ID, err)
	}
	rec.Seq = seq
	rec.Version = version
	return nil
}

func (s *SQLStore) UpsertFile(ctx context.Context, rec *dvs.FileRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	values := fileValues(rec)
	var updates []string
	for _, col := range fileColumns {
		if _, ok := values[col]; !ok || col == "id" {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", col, col))
	}
	updates = append(updates, fmt.Sprintf("version = %s.version + 1", filesTable))

	query, args, err := s.qb.Insert(filesTable).
		SetMap(values).
		Suffix("ON CONFLICT (id) DO UPDATE SET " + strings.Join(updates, ", ") + " RETURNING seq, version").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	var seq, version int64
	if err := s.db.QueryRowxContext(ctx, query, args...).Scan(&seq, &version); err != nil {
		return fmt.Errorf("upserting file %s: %w", rec.ID, err)
	}
	rec.Seq = seq
	rec.Version = version
	return nil
}

func (s *SQLStore) UpdateFile(ctx context.Context, rec *dvs.FileRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	values := fileValues(rec)
	delete(values, "id")
	values["version"] = rec.Version + 1

	query, args, err := s.qb.Update(filesTable).
		SetMap(values).
		Where(sq.Eq{"id": rec.ID, "version": rec.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating file %s: %w", rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating file %s: %w", rec.ID, err)
	}
	if n == 0 {
		existing, err := s.GetFile(ctx, rec.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("updating file %s: %w", rec.ID, dvs.ErrNotFound)
		}
		return fmt.Errorf("updating file %s at version %d: %w", rec.ID, rec.Version, dvs.ErrConflict)
	}
	rec.Version++
	return nil
}

func (s *SQLStore) GetFile(ctx context.Context, id string) (*dvs.FileRecord, error) {
	query, args, err := s.qb.Select(fileColumns...).
		From(filesTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row fileRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting file %s: %w", id, err)
	}
	return row.toRecord()
}

func (s *SQLStore) FindFilesByReorgStatus(ctx context.Context, status dvs.ReorgStatus, cursor int64, limit int) ([]*dvs.FileRecord, error) {
	cond := sq.Eq{"reorg_status": string(status)}
	if status == dvs.ReorgSuccess {
		// Rows written by older schema versions.
		cond = sq.Eq{"reorg_status": []string{string(dvs.ReorgSuccess), "COMPLETED"}}
	}
	return s.selectFiles(ctx, s.qb.Select(fileColumns...).
		From(filesTable).
		Where(cond).
		Where(sq.Gt{"seq": cursor}).
		OrderBy("seq"), limit)
}

func (s *SQLStore) FindFilesByIndexingStatus(ctx context.Context, status dvs.IndexingStatus, cursor int64, limit int) ([]*dvs.FileRecord, error) {
	return s.selectFiles(ctx, s.qb.Select(fileColumns...).
		From(filesTable).
		Where(sq.Eq{"indexing_status": string(status)}).
		Where(sq.Gt{"seq": cursor}).
		OrderBy("seq"), limit)
}

func (s *SQLStore) FindCleanupCandidates(ctx context.Context, cursor int64, limit int) ([]*dvs.FileRecord, error) {
	return s.selectFiles(ctx, s.qb.Select(fileColumns...).
		From(filesTable).
		Where(sq.Eq{"reorg_status": []string{string(dvs.ReorgSuccess), "COMPLETED"}, "deleted_from_source": false}).
		Where(sq.Gt{"seq": cursor}).
		OrderBy("seq"), limit)
}

func (s *SQLStore) FindStaleProcessing(ctx context.Context, olderThan time.Time, limit int) ([]*dvs.FileRecord, error) {
	return s.selectFiles(ctx, s.qb.Select(fileColumns...).
		From(filesTable).
		Where(sq.Eq{"reorg_status": string(dvs.ReorgProcessing)}).
		Where(sq.Lt{"reorg_last_attempt_at": olderThan.UTC()}).
		OrderBy("reorg_last_attempt_at", "seq"), limit)
}

func (s *SQLStore) FindRetryableFailed(ctx context.Context, maxAttempts int, cursor int64, limit int) ([]*dvs.FileRecord, error) {
	return s.selectFiles(ctx, s.qb.Select(fileColumns...).
		From(filesTable).
		Where(sq.Eq{"reorg_status": string(dvs.ReorgFailed)}).
		Where(sq.Lt{"reorg_attempts": maxAttempts}).
		Where(sq.Gt{"seq": cursor}).
		OrderBy("seq"), limit)
}

// selectFiles runs b with an optional limit (limit <= 0 means unlimited).
func (s *SQLStore) selectFiles(ctx context.Context, b sq.SelectBuilder, limit int) ([]*dvs.FileRecord, error) {
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []fileRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("finding files: %w", err)
	}

	result := make([]*dvs.FileRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toRecord()
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, nil
}

func (s *SQLStore) CountFilesByReorgStatus(ctx context.Context) (map[dvs.ReorgStatus]int64, error) {
	query, args, err := s.qb.Select("reorg_status", "COUNT(*) AS n").
		From(filesTable).
		GroupBy("reorg_status").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []struct {
		Status string `db:"reorg_status"`
		N      int64  `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("counting files: %w", err)
	}

	counts := make(map[dvs.ReorgStatus]int64, len(rows))
	for _, r := range rows {
		status, err := dvs.ParseReorgStatus(r.Status)
		if err != nil {
			return nil, err
		}
		counts[status] += r.N
	}
	return counts, nil
}

// Job execution records

func (s *SQLStore) NextJobExecutionID(ctx context.Context) (int64, error) {
	query, args, err := s.qb.Select("COALESCE(MAX(job_execution_id), 0)").
		From(jobsTable).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var maxID int64
	if err := s.db.GetContext(ctx, &maxID, query, args...); err != nil {
		return 0, fmt.Errorf("getting max job execution ID: %w", err)
	}
	return maxID + 1, nil
}

func (s *SQLStore) RecordJobExecution(ctx context.Context, job *dvs.JobExecutionRecord) error {
	if err := job.Counters.Validate(); err != nil {
		return fmt.Errorf("recording job %s: %w", job.AuditID, err)
	}
	values, err := jobValues(job)
	if err != nil {
		return err
	}
	values["version"] = 1

	query, args, err := s.qb.Insert(jobsTable).SetMap(values).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("recording job %s: %w", job.AuditID, dvs.ErrDuplicate)
		}
		return fmt.Errorf("recording job %s: %w", job.AuditID, err)
	}
	job.Version = 1
	return nil
}

func (s *SQLStore) UpdateJobExecution(ctx context.Context, auditID string, patch dvs.JobPatch) error {
	for attempt := 1; ; attempt++ {
		job, err := s.GetJobExecution(ctx, auditID)
		if err != nil {
			return err
		}
		if job == nil {
			return fmt.Errorf("updating job %s: %w", auditID, dvs.ErrNotFound)
		}
		if job.Status.IsFinal() {
			return fmt.Errorf("updating job %s: %w", auditID, dvs.ErrJobFinalized)
		}

		job.Apply(patch)
		if err := job.Counters.Validate(); err != nil {
			return fmt.Errorf("updating job %s: %w", auditID, err)
		}
		values, err := jobValues(job)
		if err != nil {
			return err
		}
		delete(values, "audit_id")
		values["version"] = job.Version + 1

		query, args, err := s.qb.Update(jobsTable).
			SetMap(values).
			Where(sq.Eq{"audit_id": auditID, "version": job.Version}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}

		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("updating job %s: %w", auditID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("updating job %s: %w", auditID, err)
		}
		if n == 1 {
			return nil
		}
		if attempt >= 3 {
			return fmt.Errorf("updating job %s: %w", auditID, dvs.ErrConflict)
		}
	}
}

func (s *SQLStore) GetJobExecution(ctx context.Context, auditID string) (*dvs.JobExecutionRecord, error) {
	query, args, err := s.qb.Select(jobColumns...).
		From(jobsTable).
		Where(sq.Eq{"audit_id": auditID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row jobRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting job %s: %w", auditID, err)
	}
	return row.toRecord()
}

func (s *SQLStore) ListJobExecutions(ctx context.Context, limit int) ([]*dvs.JobExecutionRecord, error) {
	b := s.qb.Select(jobColumns...).
		From(jobsTable).
		OrderBy("job_execution_id DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}

	result := make([]*dvs.JobExecutionRecord, 0, len(rows))
	for i := range rows {
		job, err := rows[i].toRecord()
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	return result, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// isUniqueViolation reports whether err is a unique or primary key violation
// from either driver.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
